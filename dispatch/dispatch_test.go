package dispatch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/lambda-feedback/procpool/dispatch"
	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, cmd models.Command, result models.Result) error {
	return m.Called(ctx, cmd, result).Error(0)
}

func TestJSONLines_WritesOneEnvelopePerLine(t *testing.T) {
	var buf bytes.Buffer
	d := dispatch.NewJSONLines(&buf)

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, models.Command{ID: "a", Op: "echo"}, models.Result{Value: json.RawMessage(`"x"`)}))
	require.NoError(t, d.Dispatch(ctx, models.Command{ID: "b", Op: "fail"}, models.Result{
		Error: &models.ResultError{Kind: models.ErrorKindCommandFailed, Message: "boom"},
	}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"command":{"id":"a","op":"echo"},"result":{"value":"x"}}`, string(lines[0]))
	assert.JSONEq(t, `{"command":{"id":"b","op":"fail"},"result":{"error":{"kind":"command_failed","message":"boom"}}}`, string(lines[1]))
}

func TestMulti_CallsAllAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	cmd := models.Command{ID: "a", Op: "echo"}
	res := models.Result{Value: json.RawMessage(`1`)}

	failing := &mockDispatcher{}
	failing.On("Dispatch", ctx, cmd, res).Return(assert.AnError)

	collector := &dispatch.Collector{}

	err := dispatch.Multi{failing, collector}.Dispatch(ctx, cmd, res)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Len(t, collector.Envelopes(), 1)

	failing.AssertExpectations(t)
}

func TestFunc(t *testing.T) {
	var got string
	d := dispatch.Func(func(_ context.Context, cmd models.Command, _ models.Result) error {
		got = cmd.ID
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), models.Command{ID: "z"}, models.Result{}))
	assert.Equal(t, "z", got)
}
