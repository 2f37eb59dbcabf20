package handshake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	dialer, err := GenerateKeypair()
	require.NoError(t, err)
	listener, err := GenerateKeypair()
	require.NoError(t, err)

	sealed, err := Seal(dialer, []byte("notif-hello"))
	require.NoError(t, err)

	payload, remoteStatic, err := Open(listener, sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("notif-hello"), payload)
	require.Equal(t, dialer.Public, remoteStatic)
}

func TestOpenRejectsTruncatedMessage(t *testing.T) {
	listener, err := GenerateKeypair()
	require.NoError(t, err)

	_, _, err = Open(listener, []byte{1, 2, 3})
	require.Error(t, err)
}
