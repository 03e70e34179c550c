package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jackc/puddle/v2"
)

// Decoder reads frames into a bounded set of reusable buffers, so the
// supervisor does not allocate a fresh buffer for every envelope.
type Decoder struct {
	pool *puddle.Pool[[]byte]
	max  int
}

// NewDecoder creates a decoder accepting payloads of up to max bytes,
// backed by at most buffers reusable buffers.
func NewDecoder(max, buffers int) (*Decoder, error) {
	if buffers < 1 {
		buffers = 1
	}

	pool, err := puddle.NewPool(&puddle.Config[[]byte]{
		Constructor: func(context.Context) ([]byte, error) {
			return make([]byte, max), nil
		},
		Destructor: func([]byte) {},
		MaxSize:    int32(buffers),
	})
	if err != nil {
		return nil, fmt.Errorf("ipc: create buffer pool: %w", err)
	}

	return &Decoder{pool: pool, max: max}, nil
}

// Decode reads one frame from r and unmarshals its payload into v.
// The buffer is returned to the pool before Decode returns, so v must
// not retain references into it; json.Unmarshal copies RawMessages.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, v any) error {
	res, err := d.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("ipc: acquire buffer: %w", err)
	}
	defer res.Release()

	n, err := ReadFrameInto(r, res.Value())
	if err != nil {
		return err
	}

	if err := json.Unmarshal(res.Value()[:n], v); err != nil {
		return fmt.Errorf("ipc: unmarshal: %w", err)
	}

	return nil
}

// Max returns the largest payload the decoder accepts.
func (d *Decoder) Max() int {
	return d.max
}

// Close releases all pooled buffers.
func (d *Decoder) Close() {
	d.pool.Close()
}
