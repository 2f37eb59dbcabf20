// Package substream defines the duplex, message-framed byte stream
// abstraction shared by the notification protocol and the WebRTC connection
// engine. Both the WebRTC channel-backend (substream/channel.Backend) and a
// raw-transport substream (FromConn) satisfy the same Substream interface,
// so callers never branch on the underlying transport.
package substream

import (
	"context"
	"io"

	"github.com/libp2p/go-msgio"
)

// Substream is a duplex byte stream that produces and consumes whole
// messages, each framed with an unsigned-varint length prefix on the wire (or
// delivered pre-framed, in the WebRTC channel-backend case).
type Substream interface {
	// ReadFrame blocks until one complete message is available, ctx is
	// cancelled, or the stream is closed.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteFrame sends one message. It blocks until the message is handed
	// off, ctx is cancelled, or the stream is closed.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close releases the substream. It is idempotent.
	Close() error
}

// rawSubstream adapts any io.ReadWriteCloser (a genuine transport-level
// substream, as opposed to a WebRTC data channel) to Substream using
// unsigned-varint length-prefixed framing.
type rawSubstream struct {
	conn   io.ReadWriteCloser
	reader msgio.ReadCloser
	writer msgio.WriteCloser
}

// FromConn wraps conn as a Substream. maxSize bounds a single frame; frames
// larger than maxSize surface as an error from ReadFrame. The returned
// Substream does not observe ctx: ReadFrame and WriteFrame block on conn
// until it completes the call or is closed.
func FromConn(conn io.ReadWriteCloser, maxSize int) Substream {
	return &rawSubstream{
		conn:   conn,
		reader: msgio.NewVarintReaderSize(conn, maxSize),
		writer: msgio.NewVarintWriter(conn),
	}
}

func (r *rawSubstream) ReadFrame(ctx context.Context) ([]byte, error) {
	return r.reader.ReadMsg()
}

func (r *rawSubstream) WriteFrame(_ context.Context, frame []byte) error {
	return r.writer.WriteMsg(frame)
}

func (r *rawSubstream) Close() error {
	r.reader.Close()
	r.writer.Close()
	return r.conn.Close()
}
