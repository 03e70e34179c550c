package ipc

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// readyEvents are the poll events that make a channel worth reading:
// data, or a hang-up that the reader must observe as a closed channel.
const readyEvents = unix.POLLIN | unix.POLLHUP | unix.POLLERR

// Poll waits up to timeout for any of the channels to become readable
// and returns the ready ones, in the order they were given. It never
// blocks longer than timeout; an interrupted wait reports no channels.
func Poll(channels []*Channel, timeout time.Duration) ([]*Channel, error) {
	if len(channels) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}

	fds := make([]unix.PollFd, len(channels))
	for i, ch := range channels {
		fds[i] = unix.PollFd{Fd: int32(ch.Fd()), Events: unix.POLLIN}
	}

	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if errors.Is(err, unix.EINTR) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ipc: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]*Channel, 0, n)
	for i, fd := range fds {
		if fd.Revents&readyEvents != 0 {
			ready = append(ready, channels[i])
		}
	}

	return ready, nil
}
