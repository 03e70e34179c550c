package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Command is a single unit of work executed by exactly one worker.
type Command struct {
	// ID identifies the command. It is assigned by the command source.
	ID string `json:"id" yaml:"id"`

	// Op selects one of the registered operations.
	Op string `json:"op" yaml:"op"`

	// Args is the opaque, operation specific argument document.
	Args json.RawMessage `json:"args,omitempty" yaml:"-"`
}

func (c Command) String() string {
	return fmt.Sprintf("%s(%s)", c.Op, c.ID)
}

// ErrorKind tags a failed result. The kinds are part of the wire format.
type ErrorKind string

const (
	ErrorKindCommandFailed       ErrorKind = "command_failed"
	ErrorKindUnknownOperation    ErrorKind = "unknown_operation"
	ErrorKindInvalidArguments    ErrorKind = "invalid_arguments"
	ErrorKindResultTooLarge      ErrorKind = "result_too_large"
	ErrorKindSerializationFailed ErrorKind = "serialization_failed"
)

// ResultError is the tagged error half of a result.
type ResultError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

func (e *ResultError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Result is either a value or a tagged error, never both.
type Result struct {
	Value json.RawMessage `json:"value,omitempty"`
	Error *ResultError    `json:"error,omitempty"`
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Error != nil
}

// Envelope is the (command, result) pair a worker sends back.
type Envelope struct {
	Command Command `json:"command"`
	Result  Result  `json:"result"`
}

// NewErrorEnvelope builds an envelope carrying a tagged error for cmd.
func NewErrorEnvelope(cmd Command, kind ErrorKind, msg string) Envelope {
	return Envelope{
		Command: cmd,
		Result: Result{
			Error: &ResultError{Kind: kind, Message: msg},
		},
	}
}

// ExitStatus describes how a worker process terminated. Exactly one
// of Code and Signal is set.
type ExitStatus struct {
	// Code is the exit code of the process
	Code *int `json:"code,omitempty"`

	// Signal is the signal that caused the process to exit
	Signal *int `json:"signal,omitempty"`
}

// Abnormal reports whether the process exited with a non-zero
// code or was terminated by a signal.
func (s ExitStatus) Abnormal() bool {
	return s.Signal != nil || (s.Code != nil && *s.Code != 0)
}

func (s ExitStatus) String() string {
	switch {
	case s.Signal != nil:
		return fmt.Sprintf("signal %d", *s.Signal)
	case s.Code != nil:
		return fmt.Sprintf("exit %d", *s.Code)
	default:
		return "unknown"
	}
}

// WorkerInfo is a read-only snapshot of a live worker record.
type WorkerInfo struct {
	Pid     int       `json:"pid"`
	Command Command   `json:"command"`
	Start   time.Time `json:"start"`
}
