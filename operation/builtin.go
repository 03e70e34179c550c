package operation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	OpEcho   = "echo"
	OpSleep  = "sleep"
	OpSha256 = "sha256"
	OpFail   = "fail"
	OpAlloc  = "alloc"
	OpSpin   = "spin"
	OpRepeat = "repeat"
	OpPid    = "pid"
)

func registerBuiltins(r *Registry) {
	r.Register(OpEcho, echo)
	r.Register(OpSleep, sleep)
	r.Register(OpSha256, digest)
	r.Register(OpFail, fail)
	r.Register(OpAlloc, alloc)
	r.Register(OpSpin, spin)
	r.Register(OpRepeat, repeat)
	r.Register(OpPid, pid)
}

// Duration is a time.Duration encoded as a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func echo(_ context.Context, args json.RawMessage) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}

	return args, nil
}

type sleepArgs struct {
	Duration Duration `json:"duration"`
}

func sleep(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := DecodeArgs[sleepArgs](raw)
	if err != nil {
		return nil, err
	}

	select {
	case <-time.After(time.Duration(args.Duration)):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return map[string]any{"slept": args.Duration}, nil
}

type digestArgs struct {
	Data string `json:"data"`
}

func digest(_ context.Context, raw json.RawMessage) (any, error) {
	args, err := DecodeArgs[digestArgs](raw)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(args.Data))

	return hex.EncodeToString(sum[:]), nil
}

type failArgs struct {
	Message string `json:"message"`
}

func fail(_ context.Context, raw json.RawMessage) (any, error) {
	args, err := DecodeArgs[failArgs](raw)
	if err != nil {
		return nil, err
	}

	if args.Message == "" {
		args.Message = "failed on request"
	}

	return nil, errors.New(args.Message)
}

type allocArgs struct {
	Bytes int64 `json:"bytes"`
}

func alloc(_ context.Context, raw json.RawMessage) (any, error) {
	args, err := DecodeArgs[allocArgs](raw)
	if err != nil {
		return nil, err
	}

	if args.Bytes < 0 {
		return nil, fmt.Errorf("%w: negative size", ErrInvalidArguments)
	}

	buf := make([]byte, args.Bytes)

	// touch every page so the memory is actually committed
	for i := 0; i < len(buf); i += os.Getpagesize() {
		buf[i] = 1
	}

	return map[string]any{"allocated": len(buf)}, nil
}

type spinArgs struct {
	Duration Duration `json:"duration"`
}

func spin(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := DecodeArgs[spinArgs](raw)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(time.Duration(args.Duration))

	var n uint64
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for i := 0; i < 1<<16; i++ {
			n += uint64(i)
		}
	}

	return map[string]any{"iterations": n}, nil
}

type repeatArgs struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

func repeat(_ context.Context, raw json.RawMessage) (any, error) {
	args, err := DecodeArgs[repeatArgs](raw)
	if err != nil {
		return nil, err
	}

	if args.Count < 0 {
		return nil, fmt.Errorf("%w: negative count", ErrInvalidArguments)
	}

	return strings.Repeat(args.Text, args.Count), nil
}

func pid(context.Context, json.RawMessage) (any, error) {
	return os.Getpid(), nil
}
