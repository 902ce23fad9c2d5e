package lights

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrNoSupportedDevice is returned by the resolver when no backlight candidate qualifies
	ErrNoSupportedDevice = errors.New("no supported backlight device")
	// ErrDeviceUnavailable is returned by SetLight on a backlight handle without a resolved device
	ErrDeviceUnavailable = errors.New("backlight device unavailable")
	// ErrInvalidRange is returned when the device maximum is at or below the min-visible floor
	ErrInvalidRange = errors.New("invalid brightness range")
	// ErrInvalidArgument is returned for unknown light identifiers
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrClosed is returned by operations on a closed handle
	ErrClosed = errors.New("light device closed")
)

// IoError wraps an open/read/write failure on a sysfs or input path
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// Code returns the underlying OS error number, or 0 when there is none
func (e *IoError) Code() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

func ioError(op, path string, err error) error {
	return &IoError{Op: op, Path: path, Err: err}
}
