package agent

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePrompt expands "/skill-name args" into the full prompt stored
// in <commandsDir>/skill-name.md. Non-slash input and unknown commands
// pass through unchanged, so the agent sees the raw text.
func ResolvePrompt(commandsDir, command string) string {
	if commandsDir == "" || !strings.HasPrefix(command, "/") {
		return command
	}

	name, args, _ := strings.Cut(command, " ")
	name = strings.TrimPrefix(name, "/")
	args = strings.TrimSpace(args)

	// Reject names that could escape the commands directory.
	if name == "" || strings.ContainsAny(name, "/\\.") {
		return command
	}

	data, err := os.ReadFile(filepath.Join(commandsDir, name+".md"))
	if err != nil {
		slog.Warn("no prompt file for slash command, passing through",
			"command", name, "error", err)
		return command
	}

	content := stripFrontmatter(string(data))
	if args == "" {
		return content
	}
	return content + "\n\n---\n\nUser's request: " + args
}

// stripFrontmatter removes a leading YAML frontmatter block delimited
// by "---" lines.
func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	end := strings.Index(content[3:], "---")
	if end == -1 {
		return content
	}
	return strings.TrimLeft(content[3+end+3:], " \t\r\n")
}
