// Package demo provides a local synthetic session backend. When no
// live backend is reachable, the client runs against this responder
// instead of deadlocking the UI: it produces the same inbound event
// shapes over the same transport contract, so the session controller
// and presentation layer cannot tell the difference apart from the
// connection indicator.
package demo

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/traceline/traceline/internal/protocol"
)

const defaultChunkDelay = 25 * time.Millisecond

var cannedReplies = []string{
	"This is the Traceline demo responder. No backend is connected, so I am standing in for the agent. " +
		"Everything you see here — streaming, tool announcements, permission prompts — uses the live protocol shapes.",
	"Still in demo mode. Try a command containing \"delete\" to see a permission prompt, " +
		"or start the bridge with `traceline serve` and reconnect for a real session.",
	"Demo mode has no memory and no tools; it only exercises the session machinery end to end.",
}

// Responder is an in-memory loopback transport: frames written to it
// are interpreted as client messages, and synthetic backend events
// come back out of ReadFrame.
type Responder struct {
	events     chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	chunkDelay time.Duration

	mu      sync.Mutex
	pending string // prompt of the outstanding permission request
	turn    int
}

// NewResponder creates a responder ready to serve one session.
func NewResponder() *Responder {
	return &Responder{
		events:     make(chan []byte, 64),
		done:       make(chan struct{}),
		chunkDelay: defaultChunkDelay,
	}
}

// ReadFrame returns the next synthetic backend frame.
func (r *Responder) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-r.events:
		return frame, nil
	case <-r.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteFrame accepts a client message and schedules the scripted
// response.
func (r *Responder) WriteFrame(_ context.Context, data []byte) error {
	select {
	case <-r.done:
		return net.ErrClosed
	default:
	}

	msg, err := protocol.DecodeOutbound(data)
	if err != nil || msg == nil {
		// Mirror the live backend: bad or unknown frames are dropped.
		return nil
	}

	switch m := msg.(type) {
	case protocol.Ping:
		r.emit(protocol.Pong{})
	case protocol.Command:
		go r.respond(m.Content)
	case protocol.PermissionResponse:
		go r.resolvePermission(m.Choice)
	}
	return nil
}

// Close ends the session. Safe to call multiple times.
func (r *Responder) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

func (r *Responder) respond(command string) {
	r.emit(protocol.TypingStart{})

	// Commands that look destructive get the permission flow.
	lower := strings.ToLower(command)
	if strings.Contains(lower, "delete") || strings.Contains(lower, "rm ") {
		r.mu.Lock()
		r.pending = command
		r.mu.Unlock()
		r.emit(protocol.PermissionPrompt{Content: "Allow the demo agent to run: " + command + "?"})
		return
	}

	r.mu.Lock()
	reply := cannedReplies[r.turn%len(cannedReplies)]
	r.turn++
	r.mu.Unlock()

	r.stream(reply)
	r.emit(protocol.ResponseComplete{})
}

func (r *Responder) resolvePermission(choice protocol.Choice) {
	r.mu.Lock()
	command := r.pending
	r.pending = ""
	r.mu.Unlock()

	if command == "" {
		return
	}

	switch choice {
	case protocol.ChoiceAllow, protocol.ChoiceAllowAlways:
		r.emit(protocol.ToolUse{Content: "Bash: " + command})
		r.emit(protocol.ToolResult{Content: "(demo) command simulated, nothing was executed"})
		r.stream("Done. The demo responder pretended to run it.")
	case protocol.ChoiceDeny:
		r.stream("Understood — skipped it.")
	}
	r.emit(protocol.ResponseComplete{})
}

// stream emits text word by word so the UI shows a live cursor.
func (r *Responder) stream(text string) {
	words := strings.Fields(text)
	for i, w := range words {
		chunk := w
		if i < len(words)-1 {
			chunk += " "
		}
		if !r.emit(protocol.StreamChunk{Content: chunk}) {
			return
		}
		time.Sleep(r.chunkDelay)
	}
}

func (r *Responder) emit(ev protocol.Event) bool {
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		return false
	}
	select {
	case r.events <- frame:
		return true
	case <-r.done:
		return false
	}
}
