package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"

	"github.com/traceline/traceline/internal/protocol"
	"github.com/traceline/traceline/internal/sanitize"
)

// PrintRunner spawns one agent CLI process per command using --print,
// which returns the whole turn as a single JSON document. Conversation
// continuity comes from passing --resume with the session id the CLI
// reported on the previous turn.
//
// The CLI runs under a PTY so it behaves as it would in an interactive
// install; terminal escapes are stripped before the output is parsed.
type PrintRunner struct {
	cfg    Config
	events chan protocol.Event

	// run executes the CLI and returns its combined output. Replaced in
	// tests.
	run func(ctx context.Context, name string, args ...string) (string, error)

	mu        sync.Mutex // serializes turns
	sessionID string
	closed    bool
}

// NewPrintRunner builds a print-mode runner.
func NewPrintRunner(cfg Config) *PrintRunner {
	return &PrintRunner{
		cfg:       cfg,
		events:    make(chan protocol.Event, 16),
		run:       runUnderPTY,
		sessionID: cfg.ResumeSessionID,
	}
}

// Submit runs one agent turn in the background. Events for the turn
// arrive on Events; concurrent submissions are served in order.
func (r *PrintRunner) Submit(ctx context.Context, command string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("runner is closed")
	}
	r.mu.Unlock()

	go r.turn(ctx, command)
	return nil
}

func (r *PrintRunner) turn(ctx context.Context, command string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.events <- protocol.TypingStart{}
	defer func() { r.events <- protocol.TypingEnd{} }()

	prompt := ResolvePrompt(r.cfg.CommandsDir, command)

	args := []string{"--print", "--output-format", "json"}
	if r.sessionID != "" {
		args = append(args, "--resume", r.sessionID)
	}
	args = append(args, prompt)

	output, err := r.run(ctx, r.cfg.Command, args...)
	if err != nil {
		r.events <- protocol.AIResponse{Content: agentErrorText(err, output)}
		return
	}

	res, perr := parsePrintOutput(output)
	if perr != nil {
		// Not JSON; show whatever the CLI printed.
		r.events <- protocol.AIResponse{Content: sanitize.Text(output)}
		return
	}

	if res.SessionID != "" {
		r.sessionID = res.SessionID
	}

	text := res.Result
	if text == "" {
		text = "(No response)"
	}
	r.events <- protocol.AIResponse{Content: sanitize.Text(text)}
}

// RespondPermission always fails: --print turns run without prompting.
func (r *PrintRunner) RespondPermission(protocol.Choice) error {
	return errors.New("print mode does not prompt for permissions")
}

// Events delivers turn results. Closed by Close.
func (r *PrintRunner) Events() <-chan protocol.Event {
	return r.events
}

// AgentSessionID returns the CLI session id from the last completed
// turn, or "".
func (r *PrintRunner) AgentSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Close stops accepting turns and closes the events channel. Any turn
// in flight finishes first.
func (r *PrintRunner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.events)
}

// printResult is the JSON document the CLI emits for --print
// --output-format json.
type printResult struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

// parsePrintOutput extracts the result document from CLI output that
// may be wrapped in PTY noise (echoed input, carriage returns, escape
// sequences). The document is the last line that parses as a result.
func parsePrintOutput(output string) (*printResult, error) {
	output = sanitize.StripANSI(output)
	output = strings.ReplaceAll(output, "\r", "")

	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var res printResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			continue
		}
		if res.Type == "result" || res.SessionID != "" || res.Result != "" {
			return &res, nil
		}
	}
	return nil, fmt.Errorf("no result document in agent output")
}

// agentErrorText renders a failed turn for the transcript.
func agentErrorText(err error, output string) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := sanitize.Line(output, maxSummaryLen)
		if detail != "" {
			return fmt.Sprintf("Error (exit %d): %s", exitErr.ExitCode(), detail)
		}
		return fmt.Sprintf("Error (exit %d)", exitErr.ExitCode())
	}
	return "Error: " + err.Error()
}

// runUnderPTY executes the CLI with its stdio attached to a PTY and
// returns everything it wrote. A PTY read error after child exit is
// normal and treated as EOF.
func runUnderPTY(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = filterEnv(cmd.Environ(), "CLAUDECODE")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return "", fmt.Errorf("start %s: %w", name, err)
	}
	defer func() { _ = ptmx.Close() }()

	var out strings.Builder
	_, _ = io.Copy(&out, ptmx)

	if err := cmd.Wait(); err != nil {
		return out.String(), err
	}
	return out.String(), nil
}
