package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/bridge/internal/store"
)

func writeSessionDir(t *testing.T, root, id, meta, events string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DescriptorFile), []byte(meta), 0644))
	if events != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, EventsFile), []byte(events), 0644))
	}
}

const basicMeta = `cwd: /home/user/work
created_at: 2025-06-01T10:00:00Z
updated_at: 2025-06-01T10:05:00Z
summary: "Fix the build"
`

const basicEvents = `{"type":"user.message","id":"m1","ts":"2025-06-01T10:00:00Z","content":"hi"}
{"type":"assistant.turn_start","id":"t1","ts":"2025-06-01T10:00:01Z"}
{"type":"assistant.message","id":"t1","content":"hello"}
{"type":"assistant.turn_end","id":"t1","ts":"2025-06-01T10:00:05Z"}
`

func TestParseDescriptor(t *testing.T) {
	desc, err := ParseDescriptorString(basicMeta)
	require.NoError(t, err)
	assert.Equal(t, "/home/user/work", desc.Cwd)
	assert.Equal(t, "Fix the build", desc.Summary)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), desc.CreatedAt)
	assert.True(t, desc.Valid())
}

func TestParseDescriptorSkipsJunk(t *testing.T) {
	desc, err := ParseDescriptorString("# comment\n\ncwd: /tmp\nnot a pair\nunknown: x\n")
	require.NoError(t, err)
	assert.Equal(t, "/tmp", desc.Cwd)
}

func TestReloadBasicTranscript(t *testing.T) {
	root := t.TempDir()
	writeSessionDir(t, root, "ses_1", basicMeta, basicEvents)

	st := store.New()
	r := New(root, st)
	require.NoError(t, r.Reload())

	sess, err := st.Session("ses_1")
	require.NoError(t, err)
	assert.Equal(t, "/home/user/work", sess.Directory)
	assert.Equal(t, "Fix the build", sess.Title)
	require.Len(t, sess.Messages, 2)

	user := sess.Messages[0]
	assert.Equal(t, store.RoleUser, user.Role)
	require.Len(t, user.Parts, 1)
	assert.Equal(t, "hi", user.Parts[0].Text)

	assistant := sess.Messages[1]
	assert.Equal(t, store.RoleAssistant, assistant.Role)
	require.Len(t, assistant.Parts, 1)
	assert.Equal(t, "hello", assistant.Parts[0].Text)
	require.NotNil(t, assistant.CompletedAt)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 5, 0, time.UTC), *assistant.CompletedAt)
}

func TestReloadDeterministic(t *testing.T) {
	root := t.TempDir()
	writeSessionDir(t, root, "ses_1", basicMeta, basicEvents)

	st := store.New()
	r := New(root, st)
	require.NoError(t, r.Reload())
	first, err := st.Messages("ses_1")
	require.NoError(t, err)

	require.NoError(t, r.Reload())
	second, err := st.Messages("ses_1")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, len(first[i].Parts), len(second[i].Parts))
		for j := range first[i].Parts {
			assert.Equal(t, first[i].Parts[j], second[i].Parts[j])
		}
	}
}

func TestReloadPreservesSessionIdentity(t *testing.T) {
	root := t.TempDir()
	writeSessionDir(t, root, "ses_1", basicMeta, basicEvents)

	st := store.New()
	st.Add(&store.Session{
		ID:         "ses_1",
		Directory:  "/home/user/work",
		Registered: true,
	})

	r := New(root, st)
	require.NoError(t, r.Reload())

	sess, err := st.Session("ses_1")
	require.NoError(t, err)
	assert.True(t, sess.Registered)
	assert.Len(t, sess.Messages, 2)
}

func TestReloadSkipsBrokenDirectories(t *testing.T) {
	root := t.TempDir()
	writeSessionDir(t, root, "ses_good", basicMeta, basicEvents)
	// No descriptor at all.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ses_nodesc"), 0755))
	// Descriptor without cwd.
	writeSessionDir(t, root, "ses_nocwd", "summary: whatever\n", "")

	st := store.New()
	r := New(root, st)
	require.NoError(t, r.Reload())

	assert.True(t, st.Has("ses_good"))
	assert.False(t, st.Has("ses_nodesc"))
	assert.False(t, st.Has("ses_nocwd"))
}

func TestFoldInterleavedTurns(t *testing.T) {
	events := `{"type":"assistant.turn_start","id":"t1"}
{"type":"assistant.turn_start","id":"t2"}
{"type":"assistant.message","id":"t1","content":"first"}
{"type":"assistant.message","id":"t2","content":"second"}
{"type":"assistant.turn_end","id":"t1","ts":"2025-06-01T10:00:05Z"}
{"type":"assistant.turn_end","id":"t2","ts":"2025-06-01T10:00:06Z"}
`
	root := t.TempDir()
	writeSessionDir(t, root, "ses_1", basicMeta, events)

	st := store.New()
	require.NoError(t, New(root, st).Reload())

	sess, err := st.Session("ses_1")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "first", sess.Messages[0].Parts[0].Text)
	assert.Equal(t, "second", sess.Messages[1].Parts[0].Text)
	assert.NotNil(t, sess.Messages[0].CompletedAt)
	assert.NotNil(t, sess.Messages[1].CompletedAt)
}

func TestFoldToolLifecycle(t *testing.T) {
	events := `{"type":"assistant.turn_start","id":"t1"}
{"type":"assistant.message","id":"t1","content":"running it","tools":[{"callId":"call_1","name":"bash","input":{"command":"make test"}}]}
{"type":"tool.execution_complete","callId":"call_1","status":"ok","output":{"stdout":"PASS"}}
{"type":"assistant.turn_end","id":"t1","ts":"2025-06-01T10:00:05Z"}
`
	root := t.TempDir()
	writeSessionDir(t, root, "ses_1", basicMeta, events)

	st := store.New()
	require.NoError(t, New(root, st).Reload())

	msg, err := st.Message("ses_1", "t1")
	require.NoError(t, err)

	tool := msg.ToolPart("call_1")
	require.NotNil(t, tool)
	assert.Equal(t, store.ToolCompleted, tool.Status)
	assert.JSONEq(t, `{"stdout":"PASS"}`, string(tool.Output))
	require.NotNil(t, tool.Input)
	assert.Equal(t, store.ToolKindCommand, tool.Input.Kind)
	assert.Equal(t, "make test", tool.Input.Command.Command)
}

func TestFoldSkipsUnknownAndMalformed(t *testing.T) {
	events := `{"type":"user.message","id":"m1","content":"hi"}
garbage line
{"type":"future.event","id":"x"}
{"type":"assistant.message","id":"orphan","content":"no turn"}
`
	root := t.TempDir()
	writeSessionDir(t, root, "ses_1", basicMeta, events)

	st := store.New()
	require.NoError(t, New(root, st).Reload())

	msgs, err := st.Messages("ses_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Parts[0].Text)
}

func TestRemoveSessionDir(t *testing.T) {
	root := t.TempDir()
	writeSessionDir(t, root, "ses_1", basicMeta, "")

	r := New(root, store.New())
	require.NoError(t, r.RemoveSessionDir("ses_1"))
	_, err := os.Stat(filepath.Join(root, "ses_1"))
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, r.RemoveSessionDir("../escape"))
	assert.Error(t, r.RemoveSessionDir(""))
}

func TestMoveSessionDir(t *testing.T) {
	root := t.TempDir()
	writeSessionDir(t, root, "ses_old", basicMeta, basicEvents)

	r := New(root, store.New())
	require.NoError(t, r.MoveSessionDir("ses_old", "ses_new"))

	_, err := os.Stat(filepath.Join(root, "ses_new", DescriptorFile))
	assert.NoError(t, err)

	// Missing source is fine: live sessions may have no logs yet.
	require.NoError(t, r.MoveSessionDir("ses_gone", "ses_whatever"))
}
