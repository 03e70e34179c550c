// Package control implements the out-of-band administrative channel:
// a line based command syntax, a registry of named handlers and the
// transports delivering lines to the supervisor while it runs.
package control

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrArity   = errors.New("wrong number of arguments")
	ErrArgType = errors.New("invalid argument")
)

// Kind is the expected type of a positional handler argument.
type Kind int

const (
	String Kind = iota
	Int
	Uint
	Duration
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Duration:
		return "duration"
	default:
		return "string"
	}
}

// Message is one parsed administrative line.
type Message struct {
	Name string
	Args []string
}

// Parse splits line on whitespace. The first token names the handler,
// the rest are its positional arguments. ok is false for blank lines.
func Parse(line string) (msg Message, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}, false
	}

	return Message{Name: fields[0], Args: fields[1:]}, true
}

// Handler is a named administrative command. Args are coerced to
// Params before Fn is called: int, uint64, time.Duration or string.
type Handler struct {
	Name   string
	Params []Kind
	Usage  string
	Fn     func(args []any) error
}

// Registry is the explicit mapping from command name to handler.
type Registry struct {
	handlers map[string]Handler
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		log:      log.Named("control"),
	}
}

// Register adds h, replacing any handler with the same name.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Name] = h
}

// Names returns the sorted names of all registered handlers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Usage returns one usage line per registered handler.
func (r *Registry) Usage() []string {
	lines := make([]string, 0, len(r.handlers))
	for _, name := range r.Names() {
		h := r.handlers[name]
		line := name
		for _, p := range h.Params {
			line += " <" + p.String() + ">"
		}
		if h.Usage != "" {
			line += "  " + h.Usage
		}
		lines = append(lines, line)
	}

	return lines
}

// Apply runs the handler selected by msg. Unknown names are ignored and
// reported as not applied. Coercion failures, handler errors and
// handler panics are returned, never propagated as panics.
func (r *Registry) Apply(msg Message) (applied bool, err error) {
	h, ok := r.handlers[msg.Name]
	if !ok {
		return false, nil
	}

	args, err := coerce(h.Params, msg.Args)
	if err != nil {
		return false, fmt.Errorf("%s: %w", msg.Name, err)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: handler panicked: %v", msg.Name, p)
		}
	}()

	if err := h.Fn(args); err != nil {
		return true, fmt.Errorf("%s: %w", msg.Name, err)
	}

	return true, nil
}

// Exec parses and applies one line, logging the outcome.
func (r *Registry) Exec(line string) (bool, error) {
	msg, ok := Parse(line)
	if !ok {
		return false, nil
	}

	log := r.log.With(zap.String("name", msg.Name), zap.Strings("args", msg.Args))

	applied, err := r.Apply(msg)
	switch {
	case err != nil:
		log.Error("control command failed", zap.Error(err))
	case !applied:
		log.Debug("ignoring unknown control command")
	default:
		log.Info("control command applied")
	}

	return applied, err
}

func coerce(params []Kind, raw []string) ([]any, error) {
	if len(params) != len(raw) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrArity, len(params), len(raw))
	}

	args := make([]any, len(raw))
	for i, kind := range params {
		v, err := coerceOne(kind, raw[i])
		if err != nil {
			return nil, fmt.Errorf("%w %d (%s): %q", ErrArgType, i+1, kind, raw[i])
		}
		args[i] = v
	}

	return args, nil
}

func coerceOne(kind Kind, raw string) (any, error) {
	switch kind {
	case Int:
		return strconv.Atoi(raw)
	case Uint:
		return strconv.ParseUint(raw, 10, 64)
	case Duration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}
