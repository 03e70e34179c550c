package control_test

import (
	"context"
	"testing"
	"time"

	"github.com/lambda-feedback/procpool/internal/execution/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInbox_Submit_WaitsForDrain(t *testing.T) {
	inbox := control.NewInbox(4)
	defer inbox.Close()

	r := control.NewRegistry(zap.NewNop())

	var capacity int
	r.Register(control.Handler{Name: "capacity", Params: []control.Kind{control.Int}, Fn: func(args []any) error {
		capacity = args[0].(int)
		return nil
	}})

	done := make(chan struct{})
	go func() {
		defer close(done)

		applied, err := inbox.Submit(context.Background(), "capacity 5")
		assert.NoError(t, err)
		assert.True(t, applied)
	}()

	require.Eventually(t, func() bool {
		return inbox.Drain(r) == 1
	}, time.Second, time.Millisecond)

	<-done
	assert.Equal(t, 5, capacity)
}

func TestInbox_Submit_FailsWhenClosed(t *testing.T) {
	inbox := control.NewInbox(0)
	inbox.Close()

	_, err := inbox.Submit(context.Background(), "capacity 5")
	assert.ErrorIs(t, err, control.ErrInboxClosed)
	assert.False(t, inbox.Post("capacity 5"))
}

func TestInbox_Submit_HonoursContext(t *testing.T) {
	inbox := control.NewInbox(1)
	defer inbox.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// queued, but nobody drains
	_, err := inbox.Submit(ctx, "capacity 5")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInbox_Post_DoesNotBlockWhenFull(t *testing.T) {
	inbox := control.NewInbox(1)
	defer inbox.Close()

	assert.True(t, inbox.Post("a"))
	assert.False(t, inbox.Post("b"))
	assert.Equal(t, 1, inbox.Drain(control.NewRegistry(zap.NewNop())))
}
