// Package dispatch provides result dispatchers, the consumers of
// completed worker results.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/lambda-feedback/procpool/internal/execution/models"
)

// Dispatcher consumes one completed result. Errors and panics are
// caught and logged by the supervisor.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd models.Command, result models.Result) error
}

// Func adapts a plain function to a Dispatcher.
type Func func(ctx context.Context, cmd models.Command, result models.Result) error

func (f Func) Dispatch(ctx context.Context, cmd models.Command, result models.Result) error {
	return f(ctx, cmd, result)
}

// Multi dispatches to every dispatcher in order. All dispatchers are
// called, even if an earlier one fails; the errors are joined.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, cmd models.Command, result models.Result) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, cmd, result); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// JSONLines writes every result as one JSON envelope per line.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ Dispatcher = (*JSONLines)(nil)

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

func (j *JSONLines) Dispatch(_ context.Context, cmd models.Command, result models.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.enc.Encode(models.Envelope{Command: cmd, Result: result}); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	return nil
}

// Collector keeps every dispatched result in memory.
type Collector struct {
	mu        sync.Mutex
	envelopes []models.Envelope
}

var _ Dispatcher = (*Collector)(nil)

func (c *Collector) Dispatch(_ context.Context, cmd models.Command, result models.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.envelopes = append(c.envelopes, models.Envelope{Command: cmd, Result: result})

	return nil
}

// Envelopes returns a copy of the collected results in dispatch order.
func (c *Collector) Envelopes() []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]models.Envelope(nil), c.envelopes...)
}
