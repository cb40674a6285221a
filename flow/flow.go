// Package flow implements the small state machines StreamSocket and
// ListenerSocket drive around watermark relaxation and the shutdown/detach
// sequence (spec.md §3, §4.F/§4.G, §8 invariant 6). As with package queue,
// nothing here is internally synchronized beyond what a sync.Once/channel
// pair needs for safe cross-goroutine signaling: ordinary field reads and
// writes are protected by the owning socket's mutex in package sock.
package flow

// ShutdownMode selects how a socket drains outstanding work when asked to
// close: Gentle lets queued sends/receives flush before the transport is
// torn down; Immediate discards them. Grounded on the teacher's
// client/server shutdown path (both just call conn.Close(), i.e. always
// immediate) generalized to the gentle option spec.md's shutdown(mode)
// operation calls for.
type ShutdownMode int

const (
	ShutdownModeGentle ShutdownMode = iota
	ShutdownModeImmediate
)

// FlowControlState tracks whether watermark enforcement has been relaxed,
// independently, for each direction of a stream — used while draining a
// gentle shutdown, when a direction's queue must be allowed to flush past
// its high watermark because no more data will ever be enqueued behind it.
type FlowControlState struct {
	sendRelaxed bool
	recvRelaxed bool
	mode        ShutdownMode
}

// NewFlowControlState returns a FlowControlState with both directions
// under normal (non-relaxed) enforcement and ShutdownModeGentle selected.
func NewFlowControlState() *FlowControlState { return &FlowControlState{} }

// RelaxSend disables high-watermark backpressure on the send direction.
func (f *FlowControlState) RelaxSend() { f.sendRelaxed = true }

// RelaxReceive disables high-watermark backpressure on the receive
// direction.
func (f *FlowControlState) RelaxReceive() { f.recvRelaxed = true }

func (f *FlowControlState) SendRelaxed() bool    { return f.sendRelaxed }
func (f *FlowControlState) ReceiveRelaxed() bool { return f.recvRelaxed }

// SetMode selects how future shutdowns on this socket behave.
func (f *FlowControlState) SetMode(m ShutdownMode) { f.mode = m }

func (f *FlowControlState) Mode() ShutdownMode { return f.mode }

// ShouldDrainSendQueue reports whether a shutdown in the current mode
// should let the send queue flush before the transport closes.
func (f *FlowControlState) ShouldDrainSendQueue() bool { return f.mode == ShutdownModeGentle }

// ShouldDrainReceiveQueue reports whether a shutdown in the current mode
// should let already-arrived receive bytes be delivered before the
// transport closes.
func (f *FlowControlState) ShouldDrainReceiveQueue() bool { return f.mode == ShutdownModeGentle }
