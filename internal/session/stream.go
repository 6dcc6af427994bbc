package session

// StreamBuffer accumulates partial model output for the in-flight turn.
// It is owned by the Controller and never shared; the backend streams
// token-sized fragments, and batching them into one transcript entry at
// turn boundaries keeps the durable log at one entry per turn while the
// UI can still render the live text.
type StreamBuffer struct {
	text   string
	active bool
}

// Start begins a fresh turn, discarding any previous partial text.
func (b *StreamBuffer) Start() {
	b.text = ""
	b.active = true
}

// Append concatenates a fragment in arrival order. The transport
// guarantees in-order delivery per connection, so no reordering happens
// here. The caller must Start the buffer first.
func (b *StreamBuffer) Append(fragment string) {
	if !b.active {
		return
	}
	b.text += fragment
}

// Finalize returns the accumulated text and resets the buffer. It
// returns ok=false (and is a no-op) when the buffer is inactive or
// empty, so boundary events can call it unconditionally.
func (b *StreamBuffer) Finalize() (string, bool) {
	if !b.active || b.text == "" {
		b.text = ""
		b.active = false
		return "", false
	}
	text := b.text
	b.text = ""
	b.active = false
	return text, true
}

// Discard drops any partial text without producing it. Used on
// disconnect and on legacy ai_response, where the partial cannot be
// trusted to be a coherent prefix of the final answer.
func (b *StreamBuffer) Discard() {
	b.text = ""
	b.active = false
}

// Active reports whether a turn is currently streaming.
func (b *StreamBuffer) Active() bool { return b.active }

// Text returns the current partial text.
func (b *StreamBuffer) Text() string { return b.text }
