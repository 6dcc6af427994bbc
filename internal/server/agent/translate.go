package agent

import (
	"encoding/json"
	"fmt"

	"github.com/traceline/traceline/internal/protocol"
	"github.com/traceline/traceline/internal/sanitize"
)

// maxSummaryLen caps one-line tool and permission summaries.
const maxSummaryLen = 200

// Translator converts the agent CLI's stream-json NDJSON output into
// wire events. It is stateful: it tracks the CLI session id and the
// request id of an outstanding can_use_tool control request.
type Translator struct {
	sessionID        string
	pendingControlID string
}

// SessionID returns the CLI session id seen so far, or "".
func (t *Translator) SessionID() string {
	return t.sessionID
}

// PendingControlID returns the request id of the outstanding permission
// request, or "".
func (t *Translator) PendingControlID() string {
	return t.pendingControlID
}

// ndjsonLine covers the fields Translate inspects across all line
// types. Unknown lines translate to no events.
type ndjsonLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
	Message   struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
	Request struct {
		Subtype  string          `json:"subtype"`
		ToolName string          `json:"tool_name"`
		Input    json.RawMessage `json:"input"`
	} `json:"request"`
}

type contentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Content json.RawMessage `json:"content"`
}

// Translate parses one NDJSON line and returns the wire events it
// implies. Malformed or unrecognized lines return nil.
func (t *Translator) Translate(line []byte) []protocol.Event {
	var msg ndjsonLine
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil
	}

	switch msg.Type {
	case "system":
		if msg.Subtype == "init" && msg.SessionID != "" {
			t.sessionID = msg.SessionID
		}
		return nil

	case "assistant":
		var events []protocol.Event
		for _, block := range msg.Message.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					events = append(events, protocol.StreamChunk{Content: sanitize.Text(block.Text)})
				}
			case "tool_use":
				events = append(events, protocol.ToolUse{Content: toolSummary(block.Name, block.Input)})
			}
		}
		return events

	case "user":
		var events []protocol.Event
		for _, block := range msg.Message.Content {
			if block.Type != "tool_result" {
				continue
			}
			events = append(events, protocol.ToolResult{Content: resultText(block.Content)})
		}
		return events

	case "result":
		if msg.SessionID != "" {
			t.sessionID = msg.SessionID
		}
		return []protocol.Event{protocol.ResponseComplete{}}

	case "control_request":
		if msg.Request.Subtype != "can_use_tool" {
			return nil
		}
		t.pendingControlID = msg.RequestID
		return []protocol.Event{protocol.PermissionPrompt{
			Content: toolSummary(msg.Request.ToolName, msg.Request.Input),
		}}
	}

	return nil
}

// ControlResponse builds the control_response line that answers a
// can_use_tool request. The translator's pending request id is consumed.
func (t *Translator) ControlResponse(choice protocol.Choice) ([]byte, error) {
	if t.pendingControlID == "" {
		return nil, fmt.Errorf("no pending permission request")
	}
	requestID := t.pendingControlID
	t.pendingControlID = ""

	behavior := "deny"
	if choice == protocol.ChoiceAllow || choice == protocol.ChoiceAllowAlways {
		behavior = "allow"
	}

	resp := map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   map[string]any{"behavior": behavior},
		},
	}
	return json.Marshal(resp)
}

// toolSummary renders a one-line description of a tool invocation.
func toolSummary(name string, input json.RawMessage) string {
	if name == "" {
		name = "tool"
	}
	if len(input) == 0 || string(input) == "null" {
		return name
	}
	return sanitize.Line(name+" "+string(input), maxSummaryLen)
}

// resultText extracts displayable text from a tool_result content
// field, which may be a plain string or an array of content blocks.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return sanitize.Text(s)
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			if b.Type == "text" {
				if out != "" {
					out += "\n"
				}
				out += b.Text
			}
		}
		return sanitize.Text(out)
	}

	return sanitize.Line(string(raw), maxSummaryLen)
}
