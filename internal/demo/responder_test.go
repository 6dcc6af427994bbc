package demo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceline/traceline/internal/protocol"
)

func newFastResponder() *Responder {
	r := NewResponder()
	r.chunkDelay = 0
	return r
}

// readEvents drains frames until an event satisfying stop arrives.
func readEvents(t *testing.T, r *Responder, stop func(protocol.Event) bool) []protocol.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []protocol.Event
	for {
		frame, err := r.ReadFrame(ctx)
		require.NoError(t, err)
		ev, err := protocol.Decode(frame)
		require.NoError(t, err)
		require.NotNil(t, ev)
		events = append(events, ev)
		if stop(ev) {
			return events
		}
	}
}

func send(t *testing.T, r *Responder, msg protocol.Outbound) {
	t.Helper()
	data, err := protocol.EncodeOutbound(msg)
	require.NoError(t, err)
	require.NoError(t, r.WriteFrame(context.Background(), data))
}

func TestResponder_PingPong(t *testing.T) {
	r := newFastResponder()
	defer func() { _ = r.Close() }()

	send(t, r, protocol.Ping{})

	events := readEvents(t, r, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.Pong)
		return ok
	})
	assert.Len(t, events, 1)
}

func TestResponder_CommandProducesStreamedTurn(t *testing.T) {
	r := newFastResponder()
	defer func() { _ = r.Close() }()

	send(t, r, protocol.Command{Content: "hello"})

	events := readEvents(t, r, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.ResponseComplete)
		return ok
	})

	_, ok := events[0].(protocol.TypingStart)
	assert.True(t, ok, "turn must open with typing_start")

	var text strings.Builder
	for _, ev := range events {
		if chunk, ok := ev.(protocol.StreamChunk); ok {
			text.WriteString(chunk.Content)
		}
	}
	assert.NotEmpty(t, text.String())
}

func TestResponder_DestructiveCommandPromptsForPermission(t *testing.T) {
	r := newFastResponder()
	defer func() { _ = r.Close() }()

	send(t, r, protocol.Command{Content: "delete everything"})

	events := readEvents(t, r, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.PermissionPrompt)
		return ok
	})
	prompt := events[len(events)-1].(protocol.PermissionPrompt)
	assert.Contains(t, prompt.Content, "delete everything")

	// Allowing it produces tool_use then tool_result, in causal order.
	send(t, r, protocol.PermissionResponse{Choice: protocol.ChoiceAllow})
	events = readEvents(t, r, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.ResponseComplete)
		return ok
	})

	var kinds []string
	for _, ev := range events {
		switch ev.(type) {
		case protocol.ToolUse:
			kinds = append(kinds, "tool_use")
		case protocol.ToolResult:
			kinds = append(kinds, "tool_result")
		}
	}
	assert.Equal(t, []string{"tool_use", "tool_result"}, kinds)
}

func TestResponder_DenyskipsTool(t *testing.T) {
	r := newFastResponder()
	defer func() { _ = r.Close() }()

	send(t, r, protocol.Command{Content: "rm -rf /"})
	readEvents(t, r, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.PermissionPrompt)
		return ok
	})

	send(t, r, protocol.PermissionResponse{Choice: protocol.ChoiceDeny})
	events := readEvents(t, r, func(ev protocol.Event) bool {
		_, ok := ev.(protocol.ResponseComplete)
		return ok
	})

	for _, ev := range events {
		_, isToolUse := ev.(protocol.ToolUse)
		assert.False(t, isToolUse, "denied command must not produce a tool_use")
	}
}

func TestResponder_StaleDecisionIgnored(t *testing.T) {
	r := newFastResponder()
	defer func() { _ = r.Close() }()

	send(t, r, protocol.PermissionResponse{Choice: protocol.ChoiceAllow})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.ReadFrame(ctx)
	assert.Error(t, err, "a decision with no pending prompt produces no events")
}

func TestResponder_CloseIsIdempotent(t *testing.T) {
	r := newFastResponder()
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.ReadFrame(context.Background())
	assert.Error(t, err)

	err = r.WriteFrame(context.Background(), []byte(`{"type":"ping"}`))
	assert.Error(t, err)
}
