package session

import "github.com/traceline/traceline/internal/protocol"

// Request is a single outstanding backend query requiring a user
// allow/deny decision before the agent proceeds.
type Request struct {
	Prompt string
}

// Mediator holds at most one pending permission request and accepts
// exactly one decision per request.
//
// A new prompt arriving while one is pending replaces it; the prior
// request is abandoned without an implicit deny. Whether the backend
// expects a deny in that case is unspecified upstream, so the client
// does not invent one.
type Mediator struct {
	pending *Request
}

// SetPending records a new pending request, replacing any existing one.
func (m *Mediator) SetPending(prompt string) {
	m.pending = &Request{Prompt: prompt}
}

// Decide consumes the pending request. It returns ok=false when no
// request is pending, which defends against stale UI double-submission:
// the second call is a no-op and must not send a second response.
func (m *Mediator) Decide(choice protocol.Choice) (protocol.Choice, bool) {
	if m.pending == nil {
		return "", false
	}
	m.pending = nil
	return choice, true
}

// Clear forces the mediator back to idle. Called on response_complete
// and on disconnect — a connection that ends while a prompt is pending
// must not leave the client stuck waiting forever.
func (m *Mediator) Clear() {
	m.pending = nil
}

// Pending returns a copy of the pending request, or nil.
func (m *Mediator) Pending() *Request {
	if m.pending == nil {
		return nil
	}
	req := *m.pending
	return &req
}
