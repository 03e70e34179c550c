package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderSize is the size of the fixed frame header: the payload
// length as a big-endian uint32.
const HeaderSize = 4

const (
	// DefaultMaxResultSize caps the serialized result envelope.
	DefaultMaxResultSize = 16 * 1024

	// DefaultMaxCommandSize caps the serialized command frame.
	DefaultMaxCommandSize = 1024 * 1024
)

var (
	// ErrClosed is returned if the channel was closed before a
	// complete header could be read.
	ErrClosed = errors.New("ipc: channel closed prematurely")

	// ErrShortFrame is returned if the channel was closed, or a read
	// failed, before the declared payload length was satisfied.
	ErrShortFrame = errors.New("ipc: short frame")

	// ErrFrameTooLarge is returned if a payload exceeds the limit.
	ErrFrameTooLarge = errors.New("ipc: frame too large")
)

// WriteFrame writes payload prefixed with its length. The header and
// payload are written with a single call, so a frame is never
// interleaved with another writer's frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return ErrFrameTooLarge
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("ipc: write frame: %w", err)
	}

	return nil
}

// ReadFrame reads exactly one frame from r and returns its payload.
// Frames with a declared length above max are rejected.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	size, err := readHeader(r, max)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, size)
	if err := readPayload(r, payload); err != nil {
		return nil, err
	}

	return payload, nil
}

// ReadFrameInto reads exactly one frame from r into buf and returns the
// payload length. len(buf) is the maximum accepted payload size.
func ReadFrameInto(r io.Reader, buf []byte) (int, error) {
	size, err := readHeader(r, len(buf))
	if err != nil {
		return 0, err
	}

	if err := readPayload(r, buf[:size]); err != nil {
		return 0, err
	}

	return size, nil
}

// Encode marshals v as json and writes it as one frame. It fails with
// ErrFrameTooLarge without writing anything if the encoded form
// exceeds max bytes.
func Encode(w io.Writer, v any, max int) error {
	payload, err := Marshal(v, max)
	if err != nil {
		return err
	}

	return WriteFrame(w, payload)
}

// Marshal encodes v as json, enforcing the size limit.
func Marshal(v any, max int) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal: %w", err)
	}

	if len(payload) > max {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(payload), max)
	}

	return payload, nil
}

// Decode reads one frame from r and unmarshals it into v.
func Decode(r io.Reader, v any, max int) error {
	payload, err := ReadFrame(r, max)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("ipc: unmarshal: %w", err)
	}

	return nil
}

// MARK: - helpers

func readHeader(r io.Reader, max int) (int, error) {
	var header [HeaderSize]byte

	// io.ReadFull loops until the header is complete, the transport
	// may deliver it in several chunks
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("ipc: read header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(max) {
		return 0, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, size, max)
	}

	return int(size), nil
}

func readPayload(r io.Reader, payload []byte) error {
	n, err := io.ReadFull(r, payload)
	if err == nil {
		return nil
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrShortFrame, len(payload), n)
	}

	return fmt.Errorf("%w: %w", ErrShortFrame, err)
}
