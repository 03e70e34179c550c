package ipc

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Channel is the supervisor's end of a per-worker duplex channel. It
// is single use: one command frame out, one envelope frame in.
type Channel struct {
	fd   int
	file *os.File

	closeOnce sync.Once
	closeErr  error
}

// NewPair creates a connected channel pair. The returned file is the
// worker's end, to be handed to the worker process (e.g. through
// exec.Cmd.ExtraFiles) and closed in the parent once it has started.
func NewPair() (*Channel, *os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: socketpair: %w", err)
	}

	ch := &Channel{
		fd:   fds[0],
		file: os.NewFile(uintptr(fds[0]), "procpool-supervisor"),
	}

	return ch, os.NewFile(uintptr(fds[1]), "procpool-worker"), nil
}

// FromFile wraps an inherited channel end, as seen by the worker.
func FromFile(f *os.File) *Channel {
	return &Channel{fd: int(f.Fd()), file: f}
}

// Fd returns the underlying descriptor, used for readiness polling.
func (c *Channel) Fd() int {
	return c.fd
}

// SetReadTimeout bounds each individual read on the channel, so a
// worker that stalls in the middle of a frame can not block the
// reader forever. A zero timeout disables the bound.
func (c *Channel) SetReadTimeout(timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("ipc: set read timeout: %w", err)
	}

	return nil
}

func (c *Channel) Read(p []byte) (int, error) {
	return c.file.Read(p)
}

func (c *Channel) Write(p []byte) (int, error) {
	return c.file.Write(p)
}

// CloseWrite shuts down the sending direction. The peer observes
// end-of-file after it has consumed all pending data.
func (c *Channel) CloseWrite() error {
	if err := unix.Shutdown(c.fd, unix.SHUT_WR); err != nil {
		return fmt.Errorf("ipc: shutdown: %w", err)
	}

	return nil
}

// Close closes the channel. It is safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.file.Close()
	})

	return c.closeErr
}
