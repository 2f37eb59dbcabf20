package channel

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libp2p/go-notifengine/types"
)

func TestBackendRoundTrip(t *testing.T) {
	b := NewBackend(4)
	ids := types.NewSubstreamIDAllocator()

	sid := ids.Next()
	sub, deliver := b.Substream(sid)

	require.True(t, deliver([]byte("inbound")))
	data, err := sub.ReadFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("inbound"), data)

	require.NoError(t, sub.WriteFrame(context.Background(), []byte("outbound")))
	out := <-b.Out()
	require.Equal(t, sid, out.ID)
	require.Equal(t, []byte("outbound"), out.Data)
}

func TestBackendMultiplexesOutbound(t *testing.T) {
	b := NewBackend(4)
	ids := types.NewSubstreamIDAllocator()

	firstID := ids.Next()
	first, _ := b.Substream(firstID)
	secondID := ids.Next()
	second, _ := b.Substream(secondID)

	require.NoError(t, first.WriteFrame(context.Background(), []byte("a")))
	require.NoError(t, second.WriteFrame(context.Background(), []byte("b")))

	outA := <-b.Out()
	outB := <-b.Out()
	require.Equal(t, firstID, outA.ID)
	require.Equal(t, secondID, outB.ID)
}

func TestClosedSubstreamRefusesIO(t *testing.T) {
	b := NewBackend(4)
	sub, deliver := b.Substream(types.SubstreamId(0))
	require.NoError(t, sub.Close())

	require.False(t, deliver([]byte("late")))
	require.ErrorIs(t, sub.WriteFrame(context.Background(), []byte("x")), io.ErrClosedPipe)
	_, err := sub.ReadFrame(context.Background())
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestReadFrameHonorsContext(t *testing.T) {
	b := NewBackend(4)
	sub, _ := b.Substream(types.SubstreamId(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sub.ReadFrame(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
