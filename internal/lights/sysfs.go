package lights

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Sink receives computed intensities for one channel
type Sink interface {
	Write(value int) error
	Close() error
}

// SysfsSink writes to a sysfs brightness file held open for its lifetime
type SysfsSink struct {
	path string
	file *os.File
}

// OpenSysfsSink opens path for writing
func OpenSysfsSink(path string) (*SysfsSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, ioError("open", path, err)
	}
	return &SysfsSink{path: path, file: f}, nil
}

// Write serializes value as ASCII decimal plus newline at offset 0. One shot, no retry.
func (s *SysfsSink) Write(value int) error {
	buf := strconv.AppendInt(nil, int64(value), 10)
	buf = append(buf, '\n')
	if _, err := s.file.WriteAt(buf, 0); err != nil {
		return ioError("write", s.path, err)
	}
	return nil
}

func (s *SysfsSink) Close() error {
	if err := s.file.Close(); err != nil {
		return ioError("close", s.path, err)
	}
	return nil
}

// ReadInt reads an ASCII integer file such as max_brightness
func ReadInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, ioError("read", path, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, ioError("parse", path, err)
	}
	return v, nil
}

// ReadMaxBrightness reads path, returning fallback when the file is missing,
// unreadable or not a positive integer.
func ReadMaxBrightness(path string, fallback int) int {
	if path == "" {
		return fallback
	}
	v, err := ReadInt(path)
	if err != nil {
		log.Warn().Err(err).Int("fallback", fallback).Msg("Failed to read max brightness, using default")
		return fallback
	}
	if v <= 0 {
		log.Warn().Str("path", path).Int("value", v).Int("fallback", fallback).Msg("Non-positive max brightness, using default")
		return fallback
	}
	return v
}
