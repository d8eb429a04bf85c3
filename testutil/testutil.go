// Package testutil provides helpers for building session log trees in tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteDescriptor creates a session directory under root with a session.meta
// descriptor and returns the directory path.
func WriteDescriptor(t *testing.T, root, sessionID, cwd string) string {
	t.Helper()

	dir := filepath.Join(root, sessionID)
	require.NoError(t, os.MkdirAll(dir, 0755))

	meta := fmt.Sprintf("cwd: %s\ncreated_at: 2025-06-01T10:00:00Z\nupdated_at: 2025-06-01T10:00:00Z\n", cwd)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.meta"), []byte(meta), 0644))

	return dir
}

// AppendEvents appends JSONL lines to a session's events.jsonl file.
// Each line should be a complete JSON event without a trailing newline.
func AppendEvents(t *testing.T, dir string, lines ...string) {
	t.Helper()

	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()

	for _, line := range lines {
		_, err := f.WriteString(line + "\n")
		require.NoError(t, err)
	}
}
