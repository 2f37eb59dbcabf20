package libp2pwebrtc

import "errors"

// Mapping lookup failures and frame decode failures are fatal for the
// connection. ErrInputRejected names input the lower layer refuses; no code
// path in this package returns it.
var (
	ErrChannelDoesntExist = errors.New("webrtc: channel doesn't exist")
	ErrInvalidData        = errors.New("webrtc: invalid frame data")
	ErrInputRejected      = errors.New("webrtc: input rejected")
	ErrDisconnected       = errors.New("webrtc: ice connection disconnected")
	ErrEngineClosed       = errors.New("webrtc: engine closed")
)
