// Package session implements the client-side state machine for one
// interactive agent session: it consumes decoded protocol events,
// accumulates streamed output, maintains the append-only transcript,
// and mediates the single outstanding permission request.
package session

import (
	"errors"
	"sync"

	"github.com/traceline/traceline/internal/protocol"
)

// ErrNotConnected is returned when a user action arrives while the
// session has no transport.
var ErrNotConnected = errors.New("session: not connected")

// DisconnectNotice is the system transcript entry appended when the
// transport closes.
const DisconnectNotice = "Connection to the session backend was lost."

// Phase is the controller's top-level state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseIdle
	PhaseAgentBusy
	PhaseAwaitingPermission
)

// Sender carries outbound messages to the backend. The transport
// adapter implements it; tests substitute a recorder.
type Sender interface {
	Send(msg protocol.Outbound) error
}

// View is the derived, read-only state the presentation layer renders.
// It is recomputed from the controller's state after every processed
// event and never mutated in place.
type View struct {
	Transcript []Entry
	StreamText string
	Streaming  bool
	Pending    *Request
	Phase      Phase
	AgentBusy  bool
	Connected  bool
}

// Controller routes each decoded event to the stream buffer, transcript
// and permission mediator, derives the visible view, and emits outbound
// messages through the Sender.
//
// All transitions run to completion under one mutex: an inbound event
// or user action is fully applied before the next is processed. The
// transport delivers events in backend order on one connection, and no
// transition spans connections — a reconnect always starts with a fresh
// stream buffer and no pending permission.
type Controller struct {
	// OnChange, when set, is called with a fresh View after every
	// processed event or user action. Set it before the transport
	// starts delivering events; the callback must not call back into
	// the controller.
	OnChange func(View)

	mu         sync.Mutex
	sender     Sender
	phase      Phase
	live       bool
	stream     StreamBuffer
	transcript Transcript
	perm       Mediator
}

// New creates a controller that emits outbound messages via sender.
func New(sender Sender) *Controller {
	return &Controller{sender: sender}
}

// HandleConnected resets per-connection state for a fresh transport.
// live is false when the demo fallback responder is serving the
// session; the view's Connected flag is the only place the difference
// shows.
func (c *Controller) HandleConnected(live bool) {
	c.mu.Lock()
	c.stream.Discard()
	c.perm.Clear()
	c.phase = PhaseIdle
	c.live = live
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
}

// HandleDisconnected runs the transport-closed transition: any partial
// streamed text is discarded, a pending permission request is cleared,
// and exactly one system disconnect entry is appended. Safe to call
// multiple times per disconnect.
func (c *Controller) HandleDisconnected() {
	c.mu.Lock()
	if c.phase == PhaseDisconnected {
		c.mu.Unlock()
		return
	}
	c.stream.Discard()
	c.perm.Clear()
	c.transcript.Append(KindSystem, DisconnectNotice)
	c.phase = PhaseDisconnected
	c.live = false
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
}

// HandleEvent applies one inbound event.
func (c *Controller) HandleEvent(ev protocol.Event) {
	c.mu.Lock()
	c.applyLocked(ev)
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
}

func (c *Controller) applyLocked(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.TypingStart:
		c.stream.Start()
		c.markBusyLocked()

	case protocol.TypingEnd:
		if c.phase == PhaseAgentBusy {
			c.phase = PhaseIdle
		}

	case protocol.StreamChunk:
		if !c.stream.Active() {
			c.stream.Start()
		}
		c.stream.Append(e.Content)
		c.markBusyLocked()

	case protocol.ToolUse:
		// Flush in-flight narration first so the transcript keeps
		// causal order: narration, then the tool announcement.
		if text, ok := c.stream.Finalize(); ok {
			c.transcript.Append(KindAgent, text)
		}
		c.transcript.Append(KindAgent, e.Content)
		c.markBusyLocked()

	case protocol.ToolResult:
		c.transcript.Append(KindSystem, e.Content)

	case protocol.PermissionPrompt:
		c.perm.SetPending(e.Content)
		c.phase = PhaseAwaitingPermission

	case protocol.ResponseComplete:
		// The authoritative turn-end signal: flush any final streamed
		// fragment and clear stale permission state, whatever preceded.
		if text, ok := c.stream.Finalize(); ok {
			c.transcript.Append(KindAgent, text)
		}
		c.perm.Clear()
		c.phase = PhaseIdle

	case protocol.AIResponse:
		// Legacy non-streaming turn. A partial streamed prefix cannot
		// be assumed to match the full text, so it is discarded rather
		// than appended as a duplicate entry.
		c.stream.Discard()
		c.transcript.Append(KindAgent, e.Content)
		c.phase = PhaseIdle

	case protocol.Pong:
		// Liveness is the transport adapter's concern.
	}
}

// markBusyLocked marks the agent busy unless a permission request is
// pending: a pending decision blocks the thinking indication, so the
// two are never shown simultaneously.
func (c *Controller) markBusyLocked() {
	if c.perm.Pending() != nil {
		c.phase = PhaseAwaitingPermission
		return
	}
	c.phase = PhaseAgentBusy
}

// SubmitCommand records the user command in the transcript and sends it
// to the backend. While a prior turn is still streaming the command is
// simply the next outbound message; there is no abort-turn message in
// the protocol, so late events from the prior turn may still interleave
// on top of the new transcript position.
func (c *Controller) SubmitCommand(content string) error {
	c.mu.Lock()
	if c.phase == PhaseDisconnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.transcript.Append(KindUser, content)
	err := c.sender.Send(protocol.Command{Content: content})
	c.markBusyLocked()
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
	return err
}

// DecidePermission resolves the pending permission request. With no
// request pending it is a no-op: a stale double-submission must not
// send a second response.
func (c *Controller) DecidePermission(choice protocol.Choice) error {
	c.mu.Lock()
	decided, ok := c.perm.Decide(choice)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	err := c.sender.Send(protocol.PermissionResponse{Choice: decided})
	// The decision starts a fresh agent turn.
	c.stream.Start()
	c.markBusyLocked()
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
	return err
}

// ClearTranscript empties the transcript. Explicit user/demo reset
// only; no protocol event triggers it.
func (c *Controller) ClearTranscript() {
	c.mu.Lock()
	c.transcript.Clear()
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)
}

// View returns a snapshot of the derived session state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	return View{
		Transcript: c.transcript.Entries(),
		StreamText: c.stream.Text(),
		Streaming:  c.stream.Active(),
		Pending:    c.perm.Pending(),
		Phase:      c.phase,
		AgentBusy:  c.phase == PhaseAgentBusy,
		Connected:  c.live,
	}
}

func (c *Controller) notify(view View) {
	if c.OnChange != nil {
		c.OnChange(view)
	}
}
