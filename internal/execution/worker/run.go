package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lambda-feedback/procpool/internal/execution/ipc"
	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/lambda-feedback/procpool/internal/execution/rlimit"
	"github.com/lambda-feedback/procpool/operation"
	"go.uber.org/zap"
)

// resetSignals are the signals the supervisor handles itself. A worker
// restores their default disposition before doing anything else.
var resetSignals = []os.Signal{
	syscall.SIGTERM,
	syscall.SIGINT,
	syscall.SIGCHLD,
	syscall.SIGUSR1,
}

type Params struct {
	// Channel is the worker's end of the ipc channel
	Channel *os.File

	// Registry holds the operations the worker may execute
	Registry *operation.Registry

	// Limits are applied before the command runs. If nil,
	// the limits are read from the environment.
	Limits *rlimit.Limits

	// MaxResultSize caps the serialized envelope
	MaxResultSize int

	// Log is the logger to use for the worker
	Log *zap.Logger
}

// Run executes the single command received over the channel and writes
// back exactly one envelope. It does not exit the process, see Main.
func Run(ctx context.Context, params Params) error {
	log := params.Log.Named("worker").With(zap.Int("pid", os.Getpid()))

	signal.Reset(resetSignals...)

	if params.Channel == nil {
		return ErrNoChannel
	}

	ch := ipc.FromFile(params.Channel)
	defer ch.Close()

	limits := params.Limits
	if limits == nil {
		l, err := rlimit.FromEnv()
		if err != nil {
			return err
		}
		limits = &l
	}

	if err := rlimit.Apply(*limits); err != nil {
		return err
	}

	var cmd models.Command
	if err := ipc.Decode(ch, &cmd, ipc.DefaultMaxCommandSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	log = log.With(zap.Stringer("command", cmd))
	log.Debug("executing command")

	registry := params.Registry
	if registry == nil {
		registry = operation.Default()
	}

	maxSize := params.MaxResultSize
	if maxSize <= 0 {
		maxSize = ipc.DefaultMaxResultSize
	}

	envelope := Execute(ctx, registry, cmd)

	payload, err := EncodeEnvelope(envelope, maxSize)
	if err != nil {
		return err
	}

	if err := ipc.WriteFrame(ch, payload); err != nil {
		return err
	}

	log.Debug("result sent", zap.Int("size", len(payload)))

	return nil
}

// Main runs the worker and terminates the process with an explicit
// exit, so no deferred cleanup of the caller runs twice.
func Main(ctx context.Context, params Params) {
	code := 0

	if err := Run(ctx, params); err != nil {
		params.Log.Error("worker failed", zap.Error(err))
		code = 1
	}

	_ = params.Log.Sync()

	os.Exit(code)
}

// Execute runs cmd and converts any failure into a tagged error
// result. It never panics and never returns an error.
func Execute(ctx context.Context, registry *operation.Registry, cmd models.Command) models.Envelope {
	value, err := registry.Execute(ctx, cmd.Op, cmd.Args)
	if err != nil {
		return models.NewErrorEnvelope(cmd, errorKind(err), err.Error())
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return models.NewErrorEnvelope(cmd, models.ErrorKindSerializationFailed, err.Error())
	}

	return models.Envelope{
		Command: cmd,
		Result:  models.Result{Value: raw},
	}
}

// EncodeEnvelope serializes the envelope. An envelope above max is
// discarded and replaced by a "result too large" error envelope; a
// result is never truncated.
func EncodeEnvelope(envelope models.Envelope, max int) ([]byte, error) {
	payload, err := ipc.Marshal(envelope, max)
	if err == nil {
		return payload, nil
	}

	kind := models.ErrorKindSerializationFailed
	if errors.Is(err, ipc.ErrFrameTooLarge) {
		kind = models.ErrorKindResultTooLarge
	}

	replacement := models.NewErrorEnvelope(envelope.Command, kind, err.Error())

	payload, err = ipc.Marshal(replacement, max)
	if err == nil {
		return payload, nil
	}

	// the command itself is too large to echo back, keep its identity only
	replacement.Command.Args = nil

	return ipc.Marshal(replacement, max)
}

func errorKind(err error) models.ErrorKind {
	switch {
	case errors.Is(err, operation.ErrUnknownOperation):
		return models.ErrorKindUnknownOperation
	case errors.Is(err, operation.ErrInvalidArguments):
		return models.ErrorKindInvalidArguments
	default:
		return models.ErrorKindCommandFailed
	}
}
