package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/traceline/traceline/internal/protocol"
)

// StreamRunner keeps one long-lived agent CLI process and exchanges
// NDJSON with it over stdin/stdout. Permission requests surface as
// events and are answered over the CLI's control protocol.
type StreamRunner struct {
	cfg Config

	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stderrBuf   *bytes.Buffer
	cancel      context.CancelFunc
	processDone chan struct{} // closed when the process exits
	waitErr     error         // set before processDone is closed

	events chan protocol.Event

	mu      sync.Mutex
	tr      Translator
	stopped bool
}

// StartStream spawns the agent CLI in stream-json mode and begins
// translating its output. The CLI produces no output until the first
// message arrives on stdin, so StartStream returns immediately.
func StartStream(ctx context.Context, cfg Config) (*StreamRunner, error) {
	ctx, cancel := context.WithCancel(ctx)

	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--permission-prompt-tool", "stdio",
	}
	if cfg.ResumeSessionID != "" {
		args = append(args, "--resume", cfg.ResumeSessionID)
	}

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	cmd.Dir = cfg.WorkingDir
	// Unset so the CLI accepts being spawned from inside another agent
	// session.
	cmd.Env = filterEnv(cmd.Environ(), "CLAUDECODE")

	// Send SIGTERM (instead of the default SIGKILL) on context cancel so
	// the CLI can persist its session state. Go sends SIGKILL after
	// WaitDelay if the process is still running.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	r := &StreamRunner{
		cfg:         cfg,
		cmd:         cmd,
		stdin:       stdin,
		stderrBuf:   &stderrBuf,
		cancel:      cancel,
		processDone: make(chan struct{}),
		events:      make(chan protocol.Event, 64),
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	go r.readOutput(scanner)

	return r, nil
}

// Submit resolves slash commands and writes a user message to the
// agent's stdin.
func (r *StreamRunner) Submit(_ context.Context, command string) error {
	prompt := ResolvePrompt(r.cfg.CommandsDir, command)

	msg := struct {
		Type    string `json:"type"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	}{Type: "user"}
	msg.Message.Role = "user"
	msg.Message.Content = prompt

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	if err := r.writeLine(data); err != nil {
		return err
	}
	r.events <- protocol.TypingStart{}
	return nil
}

// RespondPermission answers the outstanding can_use_tool request.
func (r *StreamRunner) RespondPermission(choice protocol.Choice) error {
	r.mu.Lock()
	data, err := r.tr.ControlResponse(choice)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.writeLine(data)
}

// Events delivers translated agent output. Closed on shutdown.
func (r *StreamRunner) Events() <-chan protocol.Event {
	return r.events
}

// AgentSessionID returns the CLI session id, or "" before the first
// turn produces output.
func (r *StreamRunner) AgentSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tr.SessionID()
}

// Close shuts the agent down. Stdin is closed first to signal EOF and
// let the CLI exit on its own; the context is cancelled if it does not.
func (r *StreamRunner) Close() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	_ = r.stdin.Close()

	select {
	case <-r.processDone:
	case <-time.After(3 * time.Second):
		r.cancel()
		<-r.processDone
	}
}

// Wait blocks until the agent process exits.
func (r *StreamRunner) Wait() error {
	<-r.processDone
	return r.waitErr
}

// Stderr returns the captured stderr output from the agent process.
func (r *StreamRunner) Stderr() string {
	return r.stderrBuf.String()
}

func (r *StreamRunner) writeLine(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return fmt.Errorf("agent is stopped")
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if _, err := r.stdin.Write(data); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

func (r *StreamRunner) readOutput(scanner *bufio.Scanner) {
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		r.mu.Lock()
		events := r.tr.Translate(line)
		r.mu.Unlock()

		for _, ev := range events {
			r.events <- ev
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("agent stdout read error", "error", err)
	}

	// Wait must run after stdout is fully drained to avoid racing the
	// scanner against the pipe close.
	r.waitErr = r.cmd.Wait()
	if r.waitErr != nil {
		slog.Warn("agent process exited",
			"error", r.waitErr,
			"stderr", strings.TrimSpace(r.stderrBuf.String()))
	}
	close(r.processDone)
	close(r.events)
}

// filterEnv returns a copy of environ with entries matching any of the
// given key names removed. Keys are matched case-insensitively by the
// portion before the first '='.
func filterEnv(environ []string, keys ...string) []string {
	filtered := make([]string, 0, len(environ))
	for _, entry := range environ {
		name, _, _ := strings.Cut(entry, "=")
		skip := false
		for _, k := range keys {
			if strings.EqualFold(name, k) {
				skip = true
				break
			}
		}
		if !skip {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
