package ipc_test

import (
	"testing"
	"time"

	"github.com/lambda-feedback/procpool/internal/execution/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_Pair_TransfersFrames(t *testing.T) {
	ch, peer, err := ipc.NewPair()
	require.NoError(t, err)
	defer ch.Close()

	worker := ipc.FromFile(peer)
	defer worker.Close()

	// supervisor -> worker
	require.NoError(t, ipc.WriteFrame(ch, []byte("command")))
	require.NoError(t, ch.CloseWrite())

	payload, err := ipc.ReadFrame(worker, 64)
	require.NoError(t, err)
	assert.Equal(t, "command", string(payload))

	// worker -> supervisor
	require.NoError(t, ipc.WriteFrame(worker, []byte("result")))
	require.NoError(t, worker.Close())

	payload, err = ipc.ReadFrame(ch, 64)
	require.NoError(t, err)
	assert.Equal(t, "result", string(payload))

	// single use: the next read observes the closed peer
	_, err = ipc.ReadFrame(ch, 64)
	assert.ErrorIs(t, err, ipc.ErrClosed)
}

func TestChannel_Close_IsIdempotent(t *testing.T) {
	ch, peer, err := ipc.NewPair()
	require.NoError(t, err)
	defer peer.Close()

	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
}

func TestPoll_ReturnsOnlyReadyChannels(t *testing.T) {
	idle, idlePeer, err := ipc.NewPair()
	require.NoError(t, err)
	defer idle.Close()
	defer idlePeer.Close()

	busy, busyPeer, err := ipc.NewPair()
	require.NoError(t, err)
	defer busy.Close()
	defer busyPeer.Close()

	require.NoError(t, ipc.WriteFrame(busyPeer, []byte("ready")))

	ready, err := ipc.Poll([]*ipc.Channel{idle, busy}, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Same(t, busy, ready[0])
}

func TestPoll_IsBoundedByTimeout(t *testing.T) {
	ch, peer, err := ipc.NewPair()
	require.NoError(t, err)
	defer ch.Close()
	defer peer.Close()

	start := time.Now()
	ready, err := ipc.Poll([]*ipc.Channel{ch}, 20*time.Millisecond)
	require.NoError(t, err)

	assert.Empty(t, ready)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPoll_ReportsHangUp(t *testing.T) {
	ch, peer, err := ipc.NewPair()
	require.NoError(t, err)
	defer ch.Close()

	// a worker that dies without writing hangs up its end
	require.NoError(t, peer.Close())

	ready, err := ipc.Poll([]*ipc.Channel{ch}, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, ready, 1)

	_, err = ipc.ReadFrame(ch, 64)
	assert.ErrorIs(t, err, ipc.ErrClosed)
}

func TestChannel_ReadTimeout_BoundsStalledReads(t *testing.T) {
	ch, peer, err := ipc.NewPair()
	require.NoError(t, err)
	defer ch.Close()
	defer peer.Close()

	require.NoError(t, ch.SetReadTimeout(20*time.Millisecond))

	// a header promising more bytes than are ever sent
	_, err = peer.Write([]byte{0, 0, 0, 10, 'a'})
	require.NoError(t, err)

	_, err = ipc.ReadFrame(ch, 64)
	assert.ErrorIs(t, err, ipc.ErrShortFrame)
}
