// Package types holds the identifier types shared across the notification
// protocol and the WebRTC connection engine.
package types

import (
	"fmt"
	"sync/atomic"
)

// SubstreamId uniquely identifies a substream within this process. Values are
// handed out by a SubstreamIDAllocator and are never reused, which makes
// equality between two SubstreamId values meaningful only when they were
// captured from the same allocation rather than independently constructed.
type SubstreamId int64

func (s SubstreamId) String() string {
	return fmt.Sprintf("substream#%d", int64(s))
}

// ConnectionId uniquely identifies a transport connection within this process.
type ConnectionId int64

func (c ConnectionId) String() string {
	return fmt.Sprintf("connection#%d", int64(c))
}

// nextSubstreamID is the process-wide counter every SubstreamIDAllocator
// draws from, so ids stay unique across allocators.
var nextSubstreamID atomic.Int64

// SubstreamIDAllocator hands out monotonically increasing SubstreamId
// values.
type SubstreamIDAllocator struct{}

// NewSubstreamIDAllocator returns an allocator backed by the process-wide
// counter; the first Next() call in the process returns 0.
func NewSubstreamIDAllocator() *SubstreamIDAllocator {
	return &SubstreamIDAllocator{}
}

// Next allocates and returns the next SubstreamId.
func (a *SubstreamIDAllocator) Next() SubstreamId {
	return SubstreamId(nextSubstreamID.Add(1) - 1)
}

// nextConnectionID is the process-wide counter every ConnectionIDAllocator
// draws from, so ids stay unique across allocators.
var nextConnectionID atomic.Int64

// ConnectionIDAllocator hands out monotonically increasing ConnectionId
// values.
type ConnectionIDAllocator struct{}

// NewConnectionIDAllocator returns an allocator backed by the process-wide
// counter; the first Next() call in the process returns 0.
func NewConnectionIDAllocator() *ConnectionIDAllocator {
	return &ConnectionIDAllocator{}
}

// Next allocates and returns the next ConnectionId.
func (a *ConnectionIDAllocator) Next() ConnectionId {
	return ConnectionId(nextConnectionID.Add(1) - 1)
}
