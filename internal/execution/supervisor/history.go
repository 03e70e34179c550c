package supervisor

import (
	"sync"

	"github.com/lambda-feedback/procpool/internal/execution/models"
)

// History is a bounded FIFO of lifecycle events. Once full, each
// append evicts the oldest event.
type History struct {
	mu     sync.Mutex
	events []models.Event
	head   int
	full   bool
}

func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}

	return &History{events: make([]models.Event, size)}
}

func (h *History) Append(e models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events[h.head] = e
	h.head = (h.head + 1) % len(h.events)
	if h.head == 0 {
		h.full = true
	}
}

// Events returns the retained events, oldest first.
func (h *History) Events() []models.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		return append([]models.Event(nil), h.events[:h.head]...)
	}

	out := make([]models.Event, 0, len(h.events))
	out = append(out, h.events[h.head:]...)
	return append(out, h.events[:h.head]...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.full {
		return len(h.events)
	}
	return h.head
}
