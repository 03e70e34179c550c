package control

import (
	"context"
	"errors"
	"sync"
)

// ErrInboxClosed is returned by Submit once the owner stopped
// accepting administrative commands.
var ErrInboxClosed = errors.New("control inbox closed")

type reply struct {
	applied bool
	err     error
}

type request struct {
	line  string
	reply chan reply
}

// Inbox hands administrative lines from transport goroutines to the
// single goroutine that owns the configuration. Lines are applied only
// when the owner calls Drain.
type Inbox struct {
	requests chan request

	closeOnce sync.Once
	done      chan struct{}
}

func NewInbox(size int) *Inbox {
	return &Inbox{
		requests: make(chan request, size),
		done:     make(chan struct{}),
	}
}

// Submit queues line and waits until the owner applied it.
func (i *Inbox) Submit(ctx context.Context, line string) (bool, error) {
	req := request{line: line, reply: make(chan reply, 1)}

	select {
	case i.requests <- req:
	case <-i.done:
		return false, ErrInboxClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.applied, res.err
	case <-i.done:
		return false, ErrInboxClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Post queues line without waiting for it to be applied. It reports
// false if the inbox is full or closed.
func (i *Inbox) Post(line string) bool {
	select {
	case <-i.done:
		return false
	default:
	}

	select {
	case i.requests <- request{line: line, reply: make(chan reply, 1)}:
		return true
	default:
		return false
	}
}

// Drain applies all queued lines with r, without blocking.
func (i *Inbox) Drain(r *Registry) int {
	n := 0
	for {
		select {
		case req := <-i.requests:
			applied, err := r.Exec(req.line)
			req.reply <- reply{applied: applied, err: err}
			n++
		default:
			return n
		}
	}
}

// Close stops accepting lines and releases waiting submitters.
func (i *Inbox) Close() {
	i.closeOnce.Do(func() {
		close(i.done)
	})
}
