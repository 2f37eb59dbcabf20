// Package msmux adapts github.com/multiformats/go-multistream's
// listener-side negotiation to the WebRTC engine's one-frame-at-a-time
// channel data model: the whole client request arrives as a single data
// channel frame, and the response is collected into a single reply frame.
package msmux

import (
	"bytes"
	"io"

	ms "github.com/multiformats/go-multistream"
)

// Negotiate runs the listener side of multistream-select against request —
// the full payload of a channel's first data-channel frame — offering
// protocols. It returns the agreed protocol name and the bytes the engine
// must write back to the channel to complete the exchange.
func Negotiate(protocols []string, request []byte) (selected string, response []byte, err error) {
	mux := ms.NewMultistreamMuxer[string]()
	for _, p := range protocols {
		mux.AddHandler(p, nil)
	}

	rw := &frameRW{r: bytes.NewReader(request)}
	selected, _, err = mux.Negotiate(rw)
	if err != nil {
		return "", nil, err
	}
	return selected, rw.w.Bytes(), nil
}

// frameRW presents a single already-received frame as the Reader half of an
// io.ReadWriteCloser, and captures everything the negotiator writes in
// response; it never blocks since go-multistream's listener side here only
// needs to consume the bytes already on hand and produce its reply.
type frameRW struct {
	r *bytes.Reader
	w bytes.Buffer
}

func (f *frameRW) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF && n == 0 {
		return 0, io.EOF
	}
	return n, err
}

func (f *frameRW) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *frameRW) Close() error { return nil }
