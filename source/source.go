// Package source provides command sources the supervisor pulls from.
package source

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/lambda-feedback/procpool/internal/execution/models"
)

// ErrEndOfWork is returned by Next once a source is exhausted.
var ErrEndOfWork = errors.New("end of work")

// Source supplies commands. Next may block until a command is
// available. Any error other than ErrEndOfWork is treated as end of
// work by the supervisor, after logging it.
type Source interface {
	Next(ctx context.Context) (models.Command, error)
}

// Func adapts a plain function to a Source.
type Func func(ctx context.Context) (models.Command, error)

func (f Func) Next(ctx context.Context) (models.Command, error) {
	return f(ctx)
}

// Slice yields a fixed list of commands, then ErrEndOfWork.
type Slice struct {
	mu   sync.Mutex
	cmds []models.Command
	next int
}

var _ Source = (*Slice)(nil)

func NewSlice(cmds ...models.Command) *Slice {
	return &Slice{cmds: cmds}
}

func (s *Slice) Next(ctx context.Context) (models.Command, error) {
	if err := ctx.Err(); err != nil {
		return models.Command{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.cmds) {
		return models.Command{}, ErrEndOfWork
	}

	cmd := withID(s.cmds[s.next])
	s.next++

	return cmd, nil
}

// withID assigns a random id to commands that came without one.
func withID(cmd models.Command) models.Command {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	return cmd
}
