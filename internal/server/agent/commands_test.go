package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCommand(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o600))
}

func TestResolvePrompt_PlainTextPassesThrough(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "hello there", ResolvePrompt(dir, "hello there"))
}

func TestResolvePrompt_ExpandsSlashCommand(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "rubber-duck", "You are a rubber duck. Listen carefully.")

	got := ResolvePrompt(dir, "/rubber-duck")
	assert.Equal(t, "You are a rubber duck. Listen carefully.", got)
}

func TestResolvePrompt_AppendsArguments(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "review", "Review the following code.")

	got := ResolvePrompt(dir, "/review my parser")
	assert.Equal(t, "Review the following code.\n\n---\n\nUser's request: my parser", got)
}

func TestResolvePrompt_StripsFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "explain", "---\ndescription: Explains code\n---\n\nExplain the code.")

	assert.Equal(t, "Explain the code.", ResolvePrompt(dir, "/explain"))
}

func TestResolvePrompt_UnknownCommandPassesThrough(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "/missing", ResolvePrompt(dir, "/missing"))
}

func TestResolvePrompt_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "/../etc/passwd", ResolvePrompt(dir, "/../etc/passwd"))
	assert.Equal(t, "/a/b", ResolvePrompt(dir, "/a/b"))
}

func TestResolvePrompt_NoCommandsDir(t *testing.T) {
	assert.Equal(t, "/review x", ResolvePrompt("", "/review x"))
}

func TestStripFrontmatter_Unterminated(t *testing.T) {
	assert.Equal(t, "---\nbroken", stripFrontmatter("---\nbroken"))
}
