package source

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidCommand is returned for input lines that are not a valid
// command document.
var ErrInvalidCommand = errors.New("invalid command")

//go:embed schema/command.json
var commandSchema json.RawMessage
var commandSchemaLoader = gojsonschema.NewBytesLoader(commandSchema)

// maxLineSize bounds a single command line.
const maxLineSize = 1024 * 1024

// Reader reads one JSON command per line. An empty line or the end of
// the input ends the work.
type Reader struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	schema  *gojsonschema.Schema
	done    bool
}

var _ Source = (*Reader)(nil)

func NewReader(r io.Reader) (*Reader, error) {
	schema, err := gojsonschema.NewSchema(commandSchemaLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to load command schema: %w", err)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	return &Reader{
		scanner: scanner,
		schema:  schema,
	}, nil
}

func (r *Reader) Next(ctx context.Context) (models.Command, error) {
	if err := ctx.Err(); err != nil {
		return models.Command{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return models.Command{}, ErrEndOfWork
	}

	if !r.scanner.Scan() {
		r.done = true

		if err := r.scanner.Err(); err != nil {
			return models.Command{}, fmt.Errorf("failed to read command: %w", err)
		}

		return models.Command{}, ErrEndOfWork
	}

	line := bytes.TrimSpace(r.scanner.Bytes())
	if len(line) == 0 {
		r.done = true
		return models.Command{}, ErrEndOfWork
	}

	cmd, err := parseCommand(r.schema, line)
	if err != nil {
		return models.Command{}, err
	}

	return withID(cmd), nil
}

func parseCommand(schema *gojsonschema.Schema, data []byte) (models.Command, error) {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return models.Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}

		return models.Command{}, fmt.Errorf("%w: %s", ErrInvalidCommand, strings.Join(msgs, "; "))
	}

	var cmd models.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return models.Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	return cmd, nil
}
