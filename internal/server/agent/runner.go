// Package agent runs the agent CLI on behalf of a connected client and
// translates its output into wire events. Two runners exist: a stream
// runner that keeps one long-lived CLI process per connection, and a
// print runner that spawns one short-lived process per command.
package agent

import (
	"context"

	"github.com/traceline/traceline/internal/protocol"
)

// Runner drives one agent conversation.
type Runner interface {
	// Submit sends a user command to the agent. The resulting events
	// arrive on Events.
	Submit(ctx context.Context, command string) error

	// RespondPermission answers the agent's pending permission request.
	RespondPermission(choice protocol.Choice) error

	// Events delivers translated agent output. The channel is closed
	// when the runner shuts down.
	Events() <-chan protocol.Event

	// AgentSessionID returns the CLI's session id, or "" if no turn has
	// completed yet.
	AgentSessionID() string

	// Close terminates the runner and any agent process it owns.
	Close()
}

// Config holds the settings shared by both runners.
type Config struct {
	Command         string // agent CLI binary, e.g. "claude"
	WorkingDir      string
	CommandsDir     string // slash-command prompt files, may be empty
	ResumeSessionID string // resume a previous CLI session if set
}
