package msmux

import (
	"testing"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/require"
)

func delimToken(s string) []byte {
	buf := varint.ToUvarint(uint64(len(s) + 1))
	buf = append(buf, s...)
	return append(buf, '\n')
}

func TestNegotiateSelectsRegisteredProtocol(t *testing.T) {
	req := append(delimToken("/multistream/1.0.0"), delimToken("/notif/1")...)

	selected, response, err := Negotiate([]string{"/notif/0", "/notif/1"}, req)
	require.NoError(t, err)
	require.Equal(t, "/notif/1", selected)
	// The listener echoes the header and the agreed protocol.
	require.Equal(t, append(delimToken("/multistream/1.0.0"), delimToken("/notif/1")...), response)
}

func TestNegotiateRejectsUnregisteredProtocol(t *testing.T) {
	req := append(delimToken("/multistream/1.0.0"), delimToken("/other/1")...)
	_, _, err := Negotiate([]string{"/notif/1"}, req)
	require.Error(t, err)
}

func TestNegotiateRejectsGarbageInput(t *testing.T) {
	_, _, err := Negotiate([]string{"/notif/1"}, []byte("not a multistream-select frame at all"))
	require.Error(t, err)
}

func TestNegotiateRejectsEmptyInput(t *testing.T) {
	_, _, err := Negotiate([]string{"/notif/1"}, nil)
	require.Error(t, err)
}
