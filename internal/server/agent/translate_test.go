package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceline/traceline/internal/protocol"
)

func TestTranslate_InitCapturesSessionID(t *testing.T) {
	var tr Translator
	events := tr.Translate([]byte(`{"type":"system","subtype":"init","session_id":"sess-42"}`))
	assert.Empty(t, events)
	assert.Equal(t, "sess-42", tr.SessionID())
}

func TestTranslate_AssistantTextBecomesStreamChunks(t *testing.T) {
	var tr Translator
	events := tr.Translate([]byte(`{"type":"assistant","message":{"content":[
		{"type":"text","text":"Hello "},
		{"type":"text","text":"world"}
	]}}`))
	require.Len(t, events, 2)
	assert.Equal(t, protocol.StreamChunk{Content: "Hello "}, events[0])
	assert.Equal(t, protocol.StreamChunk{Content: "world"}, events[1])
}

func TestTranslate_ToolUseBlock(t *testing.T) {
	var tr Translator
	events := tr.Translate([]byte(`{"type":"assistant","message":{"content":[
		{"type":"tool_use","name":"Bash","input":{"command":"ls"}}
	]}}`))
	require.Len(t, events, 1)
	tu, ok := events[0].(protocol.ToolUse)
	require.True(t, ok)
	assert.Contains(t, tu.Content, "Bash")
	assert.Contains(t, tu.Content, "ls")
}

func TestTranslate_ToolResult(t *testing.T) {
	var tr Translator

	events := tr.Translate([]byte(`{"type":"user","message":{"content":[
		{"type":"tool_result","content":"file1\nfile2"}
	]}}`))
	require.Len(t, events, 1)
	assert.Equal(t, protocol.ToolResult{Content: "file1\nfile2"}, events[0])

	// Content may also be an array of text blocks.
	events = tr.Translate([]byte(`{"type":"user","message":{"content":[
		{"type":"tool_result","content":[{"type":"text","text":"ok"}]}
	]}}`))
	require.Len(t, events, 1)
	assert.Equal(t, protocol.ToolResult{Content: "ok"}, events[0])
}

func TestTranslate_ResultEndsTurn(t *testing.T) {
	var tr Translator
	events := tr.Translate([]byte(`{"type":"result","subtype":"success","session_id":"sess-9","result":"done"}`))
	require.Len(t, events, 1)
	assert.Equal(t, protocol.ResponseComplete{}, events[0])
	assert.Equal(t, "sess-9", tr.SessionID())
}

func TestTranslate_CanUseToolBecomesPermissionPrompt(t *testing.T) {
	var tr Translator
	events := tr.Translate([]byte(`{"type":"control_request","request_id":"req-1","request":{
		"subtype":"can_use_tool","tool_name":"Bash","input":{"command":"rm -rf /tmp/x"}
	}}`))
	require.Len(t, events, 1)
	pp, ok := events[0].(protocol.PermissionPrompt)
	require.True(t, ok)
	assert.Contains(t, pp.Content, "Bash")
	assert.Equal(t, "req-1", tr.PendingControlID())
}

func TestTranslate_IgnoresUnknownAndMalformed(t *testing.T) {
	var tr Translator
	assert.Empty(t, tr.Translate([]byte(`{"type":"control_request","request_id":"r","request":{"subtype":"other"}}`)))
	assert.Empty(t, tr.Translate([]byte(`{"type":"mystery"}`)))
	assert.Empty(t, tr.Translate([]byte(`not json`)))
}

func TestControlResponse(t *testing.T) {
	var tr Translator
	tr.Translate([]byte(`{"type":"control_request","request_id":"req-7","request":{
		"subtype":"can_use_tool","tool_name":"Write","input":{}
	}}`))

	data, err := tr.ControlResponse(protocol.ChoiceAllow)
	require.NoError(t, err)

	var resp struct {
		Type     string `json:"type"`
		Response struct {
			Subtype   string `json:"subtype"`
			RequestID string `json:"request_id"`
			Response  struct {
				Behavior string `json:"behavior"`
			} `json:"response"`
		} `json:"response"`
	}
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, "control_response", resp.Type)
	assert.Equal(t, "req-7", resp.Response.RequestID)
	assert.Equal(t, "allow", resp.Response.Response.Behavior)

	// The pending id is consumed; a second response has nothing to answer.
	_, err = tr.ControlResponse(protocol.ChoiceAllow)
	assert.Error(t, err)
}

func TestControlResponse_Deny(t *testing.T) {
	var tr Translator
	tr.Translate([]byte(`{"type":"control_request","request_id":"req-8","request":{
		"subtype":"can_use_tool","tool_name":"Bash","input":{}
	}}`))

	data, err := tr.ControlResponse(protocol.ChoiceDeny)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"behavior":"deny"`)
}

func TestControlResponse_NoPending(t *testing.T) {
	var tr Translator
	_, err := tr.ControlResponse(protocol.ChoiceAllow)
	assert.Error(t, err)
}
