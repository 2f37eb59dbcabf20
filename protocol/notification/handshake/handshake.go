// Package handshake builds the opaque payload a notification protocol
// exchanges when a substream opens. The payload is the first message of a
// Noise IX handshake carrying the caller's application bytes, which binds
// the exchange to a static keypair so the receiver learns a stable identity
// for the dialer alongside the application data.
package handshake

import (
	"crypto/rand"

	"github.com/flynn/noise"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// GenerateKeypair creates a fresh static Noise keypair for use with Seal and
// Open.
func GenerateKeypair() (noise.DHKey, error) {
	return cipherSuite.GenerateKeypair(rand.Reader)
}

// Seal wraps payload in the initiator's first IX handshake message, which
// also carries local's static public key.
func Seal(local noise.DHKey, payload []byte) ([]byte, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeIX,
		Initiator:     true,
		StaticKeypair: local,
	})
	if err != nil {
		return nil, err
	}
	sealed, _, _, err := hs.WriteMessage(nil, payload)
	return sealed, err
}

// Open unwraps a message produced by Seal, returning the application payload
// and the remote's static public key.
func Open(local noise.DHKey, sealed []byte) (payload, remoteStatic []byte, err error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeIX,
		StaticKeypair: local,
	})
	if err != nil {
		return nil, nil, err
	}
	payload, _, _, err = hs.ReadMessage(nil, sealed)
	if err != nil {
		return nil, nil, err
	}
	return payload, hs.PeerStatic(), nil
}
