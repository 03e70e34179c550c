package operation_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lambda-feedback/procpool/operation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Default_HasBuiltins(t *testing.T) {
	r := operation.Default()

	assert.Equal(t, []string{
		"alloc", "echo", "fail", "pid", "repeat", "sha256", "sleep", "spin",
	}, r.Names())
}

func TestRegistry_Execute_UnknownOperation(t *testing.T) {
	r := operation.NewRegistry()

	_, err := r.Execute(context.Background(), "eval", nil)
	assert.ErrorIs(t, err, operation.ErrUnknownOperation)
}

func TestRegistry_Execute_RecoversPanics(t *testing.T) {
	r := operation.NewRegistry()
	r.Register("boom", func(context.Context, json.RawMessage) (any, error) {
		panic("boom")
	})

	res, err := r.Execute(context.Background(), "boom", nil)
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "boom")
}

func TestEcho_ReturnsArgs(t *testing.T) {
	res, err := operation.Default().Execute(context.Background(), operation.OpEcho, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, json.RawMessage(`{"a":1}`), res)
}

func TestSha256_HashesData(t *testing.T) {
	res, err := operation.Default().Execute(context.Background(), operation.OpSha256, json.RawMessage(`{"data":"abc"}`))
	require.NoError(t, err)

	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", res)
}

func TestFail_ReturnsError(t *testing.T) {
	_, err := operation.Default().Execute(context.Background(), operation.OpFail, json.RawMessage(`{"message":"nope"}`))
	assert.EqualError(t, err, "nope")
}

func TestSleep_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := operation.Default().Execute(ctx, operation.OpSleep, json.RawMessage(`{"duration":"1m"}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSleep_InvalidDuration(t *testing.T) {
	_, err := operation.Default().Execute(context.Background(), operation.OpSleep, json.RawMessage(`{"duration":"soon"}`))
	assert.ErrorIs(t, err, operation.ErrInvalidArguments)
}

func TestRepeat_BuildsString(t *testing.T) {
	res, err := operation.Default().Execute(context.Background(), operation.OpRepeat, json.RawMessage(`{"text":"ab","count":3}`))
	require.NoError(t, err)

	assert.Equal(t, "ababab", res)
}

func TestDecodeArgs_EmptyIsZero(t *testing.T) {
	type args struct{ N int }

	v, err := operation.DecodeArgs[args](nil)
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = operation.DecodeArgs[args](json.RawMessage("null"))
	require.NoError(t, err)
	assert.Zero(t, v)
}
