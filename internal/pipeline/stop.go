package pipeline

import "sync/atomic"

// StopToken is polled between messages. Once it reports true the pass
// finishes the current message and returns what it has so far.
type StopToken interface {
	StopRequested() bool
}

// StopFlag is a StopToken that can be set from another goroutine
type StopFlag struct {
	requested atomic.Bool
}

// Request asks the pass to stop
func (f *StopFlag) Request() { f.requested.Store(true) }

// Clear withdraws a stop request
func (f *StopFlag) Clear() { f.requested.Store(false) }

// StopRequested implements StopToken
func (f *StopFlag) StopRequested() bool { return f.requested.Load() }
