package ipc_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/lambda-feedback/procpool/internal/execution/ipc"
	"github.com/lambda-feedback/procpool/internal/execution/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	err := ipc.WriteFrame(&buf, []byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, ipc.HeaderSize+5, buf.Len())
	assert.Equal(t, uint32(5), binary.BigEndian.Uint32(buf.Bytes()[:4]))

	payload, err := ipc.ReadFrame(&buf, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, ipc.WriteFrame(&buf, nil))

	payload, err := ipc.ReadFrame(&buf, 16)
	assert.NoError(t, err)
	assert.Empty(t, payload)
}

func TestFrame_ReadsInSmallChunks(t *testing.T) {
	var buf bytes.Buffer

	data := strings.Repeat("x", 1000)
	require.NoError(t, ipc.WriteFrame(&buf, []byte(data)))

	payload, err := ipc.ReadFrame(iotest.OneByteReader(&buf), 4096)
	require.NoError(t, err)
	assert.Equal(t, data, string(payload))
}

func TestFrame_ReadsHalfReads(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, ipc.WriteFrame(&buf, []byte("partial reads")))

	payload, err := ipc.ReadFrame(iotest.HalfReader(&buf), 4096)
	require.NoError(t, err)
	assert.Equal(t, "partial reads", string(payload))
}

func TestFrame_EmptyChannel_IsClosed(t *testing.T) {
	_, err := ipc.ReadFrame(bytes.NewReader(nil), 16)
	assert.ErrorIs(t, err, ipc.ErrClosed)
}

func TestFrame_PartialHeader_IsClosed(t *testing.T) {
	_, err := ipc.ReadFrame(bytes.NewReader([]byte{0, 0}), 16)
	assert.ErrorIs(t, err, ipc.ErrClosed)
}

func TestFrame_PartialPayload_IsShort(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ipc.WriteFrame(&buf, []byte("truncated")))

	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := ipc.ReadFrame(bytes.NewReader(truncated), 16)
	assert.ErrorIs(t, err, ipc.ErrShortFrame)
}

func TestFrame_RejectsOversizedHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ipc.WriteFrame(&buf, make([]byte, 32)))

	_, err := ipc.ReadFrame(&buf, 16)
	assert.ErrorIs(t, err, ipc.ErrFrameTooLarge)
}

func TestFrame_ReadError_IsReported(t *testing.T) {
	_, err := ipc.ReadFrame(iotest.ErrReader(assert.AnError), 16)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestEncode_RoundTripsEnvelope(t *testing.T) {
	envelope := models.Envelope{
		Command: models.Command{ID: "a", Op: "echo", Args: json.RawMessage(`{"x":1}`)},
		Result:  models.Result{Value: json.RawMessage(`"done"`)},
	}

	var buf bytes.Buffer
	require.NoError(t, ipc.Encode(&buf, envelope, ipc.DefaultMaxResultSize))

	var decoded models.Envelope
	require.NoError(t, ipc.Decode(&buf, &decoded, ipc.DefaultMaxResultSize))

	assert.Equal(t, envelope, decoded)
}

func TestEncode_RoundTripsAtTheCap(t *testing.T) {
	envelope := models.Envelope{
		Command: models.Command{ID: "a", Op: "echo"},
	}

	// grow the value until the encoded envelope is exactly at the cap
	base, err := json.Marshal(envelope.Command)
	require.NoError(t, err)
	overhead := len(`{"command":`) + len(base) + len(`,"result":{"value":""}}`)
	envelope.Result.Value = json.RawMessage(`"` + strings.Repeat("y", ipc.DefaultMaxResultSize-overhead) + `"`)

	var buf bytes.Buffer
	require.NoError(t, ipc.Encode(&buf, envelope, ipc.DefaultMaxResultSize))
	assert.Equal(t, ipc.HeaderSize+ipc.DefaultMaxResultSize, buf.Len())

	var decoded models.Envelope
	require.NoError(t, ipc.Decode(&buf, &decoded, ipc.DefaultMaxResultSize))
	assert.Equal(t, envelope, decoded)
}

func TestEncode_TooLarge_WritesNothing(t *testing.T) {
	value := json.RawMessage(`"` + strings.Repeat("z", 1024*1024) + `"`)

	var buf bytes.Buffer
	err := ipc.Encode(&buf, models.Result{Value: value}, ipc.DefaultMaxResultSize)

	assert.ErrorIs(t, err, ipc.ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}

func TestDecoder_DecodesWithPooledBuffers(t *testing.T) {
	d, err := ipc.NewDecoder(ipc.DefaultMaxResultSize, 2)
	require.NoError(t, err)
	defer d.Close()

	for i := 0; i < 5; i++ {
		var buf bytes.Buffer
		cmd := models.Command{ID: strings.Repeat("i", i+1), Op: "echo"}
		require.NoError(t, ipc.Encode(&buf, cmd, d.Max()))

		var decoded models.Command
		require.NoError(t, d.Decode(context.Background(), &buf, &decoded))
		assert.Equal(t, cmd, decoded)
	}
}

func TestDecoder_RejectsOversizedFrame(t *testing.T) {
	d, err := ipc.NewDecoder(8, 1)
	require.NoError(t, err)
	defer d.Close()

	var buf bytes.Buffer
	require.NoError(t, ipc.WriteFrame(&buf, []byte(`"0123456789"`)))

	var s string
	err = d.Decode(context.Background(), &buf, &s)
	assert.ErrorIs(t, err, ipc.ErrFrameTooLarge)
}
