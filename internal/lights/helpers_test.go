package lights

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// fakeProber answers from fixed path sets
type fakeProber struct {
	writable map[string]bool
	readable map[string]bool
}

func (p *fakeProber) Writable(path string) bool { return p.writable[path] }
func (p *fakeProber) Readable(path string) bool { return p.readable[path] }

// recordingSink collects written values
type recordingSink struct {
	mu      sync.Mutex
	values  []int
	failN   int // fail this many writes before succeeding
	closed  bool
	written chan int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{written: make(chan int, 64)}
}

func (s *recordingSink) Write(value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return &IoError{Op: "write", Path: "fake", Err: errors.New("boom")}
	}
	s.values = append(s.values, value)
	s.written <- value
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.values...)
}

func (s *recordingSink) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// expectWrite waits for the next write and checks its value
func expectWrite(t *testing.T, s *recordingSink, want int, within time.Duration) {
	t.Helper()
	select {
	case got := <-s.written:
		if got != want {
			t.Fatalf("wrote %d, want %d (all writes: %v)", got, want, s.Values())
		}
	case <-time.After(within):
		t.Fatalf("no write of %d within %s (all writes: %v)", want, within, s.Values())
	}
}

// expectNoWrite fails if anything is written during d
func expectNoWrite(t *testing.T, s *recordingSink, d time.Duration) {
	t.Helper()
	select {
	case got := <-s.written:
		t.Fatalf("unexpected write of %d (all writes: %v)", got, s.Values())
	case <-time.After(d):
	}
}

// fakeReader feeds events from a channel; Close unblocks ReadOne
type fakeReader struct {
	events    chan *evdev.InputEvent
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		events: make(chan *evdev.InputEvent, 16),
		done:   make(chan struct{}),
	}
}

func (r *fakeReader) ReadOne() (*evdev.InputEvent, error) {
	select {
	case ev, ok := <-r.events:
		if !ok {
			return nil, errors.New("device gone")
		}
		return ev, nil
	case <-r.done:
		return nil, os.ErrClosed
	}
}

func (r *fakeReader) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
	})
	return nil
}

func (r *fakeReader) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// pipeReader reads events from a pipe the way *evdev.InputDevice reads its
// device file: Fd() has been called on it, so the fd is in blocking mode and
// Close wakes a pending ReadOne only after NonBlock.
type pipeReader struct {
	r, w *os.File
}

func newPipeReader(t *testing.T) *pipeReader {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	_ = r.Fd() // evdev.Open does this for its version ioctl
	p := &pipeReader{r: r, w: w}
	t.Cleanup(func() {
		p.r.Close()
		p.w.Close()
	})
	return p
}

func (p *pipeReader) ReadOne() (*evdev.InputEvent, error) {
	var ev evdev.InputEvent
	if err := binary.Read(p.r, binary.LittleEndian, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (p *pipeReader) NonBlock() error {
	return syscall.SetNonblock(int(p.r.Fd()), true)
}

func (p *pipeReader) Close() error {
	return p.r.Close()
}

// send writes ev to the pipe as the kernel would
func (p *pipeReader) send(t *testing.T, ev *evdev.InputEvent) {
	t.Helper()
	if err := binary.Write(p.w, binary.LittleEndian, ev); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

func keyEvent(code evdev.EvCode) *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: 1}
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
