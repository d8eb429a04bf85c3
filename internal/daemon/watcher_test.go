package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/bridge/internal/history"
	"github.com/grovetools/bridge/internal/hub"
	"github.com/grovetools/bridge/internal/store"
	"github.com/grovetools/bridge/testutil"
)

func TestLogWatcherReloadsOnWrite(t *testing.T) {
	root := t.TempDir()
	st := store.New()
	recon := history.New(root, st)
	h := hub.New()
	events := h.Subscribe()

	w, err := NewLogWatcher(recon, h, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	dir := testutil.WriteDescriptor(t, root, "ses_1", "/tmp/work")

	select {
	case ev := <-events:
		assert.Equal(t, hub.EventSessionReloaded, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event after log write")
	}

	require.Eventually(t, func() bool {
		return st.Has("ses_1")
	}, 5*time.Second, 50*time.Millisecond)

	// Appended events reach the store on the next reload.
	testutil.AppendEvents(t, dir,
		`{"type":"user.message","id":"m1","ts":"2025-06-01T10:00:01Z","content":"hi"}`)

	require.Eventually(t, func() bool {
		msgs, err := st.Messages("ses_1")
		return err == nil && len(msgs) == 1
	}, 5*time.Second, 50*time.Millisecond)
}
