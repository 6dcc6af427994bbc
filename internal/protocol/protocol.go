// Package protocol defines the chat session wire format: JSON text
// frames with a `type` discriminator, exchanged over one WebSocket
// connection. The package owns both directions — the client decodes
// inbound events and encodes outbound messages, while the serve side
// and the demo responder use the mirror halves.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Event is an inbound message from the session backend. It is a closed
// set: the type switch in the session controller covers every variant.
type Event interface {
	isEvent()
}

// StreamChunk carries one fragment of in-flight model output.
type StreamChunk struct {
	Content string
}

// ToolUse announces a tool invocation by the agent.
type ToolUse struct {
	Content string
}

// ToolResult carries the output of a completed tool invocation.
type ToolResult struct {
	Content string
}

// PermissionPrompt asks the user to allow or deny a tool invocation.
type PermissionPrompt struct {
	Content string
}

// ResponseComplete marks the end of the agent's turn.
type ResponseComplete struct{}

// TypingStart signals the agent has begun producing a response.
type TypingStart struct{}

// TypingEnd signals the agent is no longer producing a response.
type TypingEnd struct{}

// AIResponse is the legacy non-streaming response: the whole turn's
// text in one event. Emitted by backends that predate stream_chunk.
type AIResponse struct {
	Content string
}

// Pong is the liveness reply to a ping.
type Pong struct{}

func (StreamChunk) isEvent()      {}
func (ToolUse) isEvent()          {}
func (ToolResult) isEvent()       {}
func (PermissionPrompt) isEvent() {}
func (ResponseComplete) isEvent() {}
func (TypingStart) isEvent()      {}
func (TypingEnd) isEvent()        {}
func (AIResponse) isEvent()       {}
func (Pong) isEvent()             {}

// Outbound is a client-to-backend message.
type Outbound interface {
	isOutbound()
}

// Command submits a user command to the agent.
type Command struct {
	Content string
}

// Choice is a permission decision.
type Choice string

const (
	ChoiceAllow       Choice = "y" // allow once
	ChoiceAllowAlways Choice = "a"
	ChoiceDeny        Choice = "n"
)

// PermissionResponse answers a pending permission prompt.
type PermissionResponse struct {
	Choice Choice
}

// Ping is the liveness probe.
type Ping struct{}

func (Command) isOutbound()            {}
func (PermissionResponse) isOutbound() {}
func (Ping) isOutbound()               {}

// envelope is the on-wire shape shared by every frame.
type envelope struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Choice  string `json:"choice,omitempty"`
}

// Wire type discriminators.
const (
	typeStreamChunk        = "stream_chunk"
	typeToolUse            = "tool_use"
	typeToolResult         = "tool_result"
	typePermissionPrompt   = "permission_prompt"
	typeResponseComplete   = "response_complete"
	typeTypingStart        = "typing_start"
	typeTypingEnd          = "typing_end"
	typeAIResponse         = "ai_response"
	typePong               = "pong"
	typeCommand            = "command"
	typePermissionResponse = "permission_response"
	typePing               = "ping"
)

// Decode parses one inbound frame. Malformed JSON returns an error; the
// caller logs it and drops the frame, nothing propagates further. An
// unrecognized type returns (nil, nil) so newer backends keep working
// against older clients.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Type {
	case typeStreamChunk:
		return StreamChunk{Content: env.Content}, nil
	case typeToolUse:
		return ToolUse{Content: env.Content}, nil
	case typeToolResult:
		return ToolResult{Content: env.Content}, nil
	case typePermissionPrompt:
		return PermissionPrompt{Content: env.Content}, nil
	case typeResponseComplete:
		return ResponseComplete{}, nil
	case typeTypingStart:
		return TypingStart{}, nil
	case typeTypingEnd:
		return TypingEnd{}, nil
	case typeAIResponse:
		return AIResponse{Content: env.Content}, nil
	case typePong:
		return Pong{}, nil
	default:
		return nil, nil
	}
}

// EncodeEvent marshals an inbound-direction event. Used by the serve
// side and the demo responder, which produce the same shapes the
// backend does.
func EncodeEvent(ev Event) ([]byte, error) {
	var env envelope
	switch e := ev.(type) {
	case StreamChunk:
		env = envelope{Type: typeStreamChunk, Content: e.Content}
	case ToolUse:
		env = envelope{Type: typeToolUse, Content: e.Content}
	case ToolResult:
		env = envelope{Type: typeToolResult, Content: e.Content}
	case PermissionPrompt:
		env = envelope{Type: typePermissionPrompt, Content: e.Content}
	case ResponseComplete:
		env = envelope{Type: typeResponseComplete}
	case TypingStart:
		env = envelope{Type: typeTypingStart}
	case TypingEnd:
		env = envelope{Type: typeTypingEnd}
	case AIResponse:
		env = envelope{Type: typeAIResponse, Content: e.Content}
	case Pong:
		env = envelope{Type: typePong}
	default:
		return nil, fmt.Errorf("encode event: unknown type %T", ev)
	}
	return json.Marshal(env)
}

// EncodeOutbound marshals a client-to-backend message.
func EncodeOutbound(msg Outbound) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case Command:
		env = envelope{Type: typeCommand, Content: m.Content}
	case PermissionResponse:
		env = envelope{Type: typePermissionResponse, Choice: string(m.Choice)}
	case Ping:
		env = envelope{Type: typePing}
	default:
		return nil, fmt.Errorf("encode outbound: unknown type %T", msg)
	}
	return json.Marshal(env)
}

// DecodeOutbound parses one client frame on the serve side. The same
// forward-compatibility rule applies: unknown types return (nil, nil).
func DecodeOutbound(frame []byte) (Outbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode outbound: %w", err)
	}

	switch env.Type {
	case typeCommand:
		return Command{Content: env.Content}, nil
	case typePermissionResponse:
		return PermissionResponse{Choice: Choice(env.Choice)}, nil
	case typePing:
		return Ping{}, nil
	default:
		return nil, nil
	}
}
