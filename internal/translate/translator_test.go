package translate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/bridge/internal/acp"
	"github.com/grovetools/bridge/internal/hub"
	"github.com/grovetools/bridge/internal/store"
)

type fakeResponder struct {
	errorCalls []int64
	errorCodes []int
}

func (f *fakeResponder) RespondError(id int64, code int, msg string) error {
	f.errorCalls = append(f.errorCalls, id)
	f.errorCodes = append(f.errorCodes, code)
	return nil
}

func newTranslator(t *testing.T) (*Translator, *store.Store, chan hub.Event, *fakeResponder) {
	t.Helper()
	st := store.New()
	st.Add(&store.Session{ID: "ses_1", Directory: "/tmp/work", CreatedAt: time.Now(), UpdatedAt: time.Now()})
	h := hub.New()
	events := h.Subscribe()
	resp := &fakeResponder{}
	return New(st, h, resp), st, events, resp
}

func textChunk(sessionID, text string) acp.SessionNotification {
	content := acp.TextBlock(text)
	return acp.SessionNotification{
		SessionID: sessionID,
		Update: acp.SessionUpdate{
			SessionUpdate: acp.UpdateAgentMessageChunk,
			Content:       &content,
		},
	}
}

func drain(ch chan hub.Event) []hub.Event {
	var out []hub.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestChunksAccumulateInOneMessage(t *testing.T) {
	tr, st, events, _ := newTranslator(t)

	tr.applyUpdate(textChunk("ses_1", "hel"))
	tr.applyUpdate(textChunk("ses_1", "lo"))

	msgs, err := st.Messages("ses_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 1)
	assert.Equal(t, "hello", msgs[0].Parts[0].Text)
	assert.Equal(t, store.RoleAssistant, msgs[0].Role)

	got := drain(events)
	require.Len(t, got, 3) // created + two part updates
	assert.Equal(t, hub.EventMessageUpdated, got[0].Type)
	assert.Equal(t, hub.EventMessagePartUpdated, got[1].Type)
}

func TestThoughtChunksGetReasoningPart(t *testing.T) {
	tr, st, _, _ := newTranslator(t)

	content := acp.TextBlock("pondering")
	tr.applyUpdate(acp.SessionNotification{
		SessionID: "ses_1",
		Update: acp.SessionUpdate{
			SessionUpdate: acp.UpdateAgentThoughtChunk,
			Content:       &content,
		},
	})
	tr.applyUpdate(textChunk("ses_1", "answer"))

	msgs, err := st.Messages("ses_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 2)
	assert.Equal(t, store.PartReasoning, msgs[0].Parts[0].Type)
	assert.Equal(t, store.PartText, msgs[0].Parts[1].Type)
}

func TestToolCallLifecycle(t *testing.T) {
	tr, st, events, _ := newTranslator(t)

	tr.applyUpdate(acp.SessionNotification{
		SessionID: "ses_1",
		Update: acp.SessionUpdate{
			SessionUpdate: acp.UpdateToolCall,
			ToolCallID:    "call_1",
			Title:         "bash",
			Status:        "pending",
			RawInput:      json.RawMessage(`{"command":"make"}`),
		},
	})
	tr.applyUpdate(acp.SessionNotification{
		SessionID: "ses_1",
		Update: acp.SessionUpdate{
			SessionUpdate: acp.UpdateToolCallUpdate,
			ToolCallID:    "call_1",
			Status:        "in_progress",
		},
	})
	tr.applyUpdate(acp.SessionNotification{
		SessionID: "ses_1",
		Update: acp.SessionUpdate{
			SessionUpdate: acp.UpdateToolCallUpdate,
			ToolCallID:    "call_1",
			Status:        "completed",
			RawOutput:     json.RawMessage(`{"stdout":"ok"}`),
		},
	})

	msgs, err := st.Messages("ses_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	tool := msgs[0].ToolPart("call_1")
	require.NotNil(t, tool)
	assert.Equal(t, store.ToolCompleted, tool.Status)
	assert.JSONEq(t, `{"stdout":"ok"}`, string(tool.Output))
	require.NotNil(t, tool.StartedAt)
	require.NotNil(t, tool.EndedAt)
	assert.GreaterOrEqual(t, tool.DurationMS, int64(0))

	got := drain(events)
	assert.GreaterOrEqual(t, len(got), 4)
}

func TestToolStatusNeverRegresses(t *testing.T) {
	tr, st, _, _ := newTranslator(t)

	tr.applyUpdate(acp.SessionNotification{
		SessionID: "ses_1",
		Update: acp.SessionUpdate{
			SessionUpdate: acp.UpdateToolCall,
			ToolCallID:    "call_1",
			Title:         "bash",
			Status:        "in_progress",
		},
	})
	tr.applyUpdate(acp.SessionNotification{
		SessionID: "ses_1",
		Update: acp.SessionUpdate{
			SessionUpdate: acp.UpdateToolCallUpdate,
			ToolCallID:    "call_1",
			Status:        "completed",
		},
	})
	// A late pending update must not undo completion.
	tr.applyUpdate(acp.SessionNotification{
		SessionID: "ses_1",
		Update: acp.SessionUpdate{
			SessionUpdate: acp.UpdateToolCallUpdate,
			ToolCallID:    "call_1",
			Status:        "pending",
		},
	})

	msgs, err := st.Messages("ses_1")
	require.NoError(t, err)
	tool := msgs[0].ToolPart("call_1")
	require.NotNil(t, tool)
	assert.Equal(t, store.ToolCompleted, tool.Status)
}

func TestUnknownStatusDefaultsToPending(t *testing.T) {
	assert.Equal(t, store.ToolPending, mapStatus("exploded"))
	assert.Equal(t, store.ToolError, mapStatus("cancelled"))
	assert.Equal(t, store.ToolError, mapStatus("errored"))
	assert.Equal(t, store.ToolRunning, mapStatus("in_progress"))
}

func TestFinishTurnStampsCompletion(t *testing.T) {
	tr, st, events, _ := newTranslator(t)

	tr.applyUpdate(textChunk("ses_1", "done"))
	drain(events)

	tr.FinishTurn("ses_1", "end_turn")

	msgs, err := st.Messages("ses_1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].CompletedAt)

	sess, err := st.Session("ses_1")
	require.NoError(t, err)
	assert.Empty(t, sess.ActiveMessageID)

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, hub.EventMessageUpdated, got[0].Type)
}

func TestNewTurnAfterFinishOpensNewMessage(t *testing.T) {
	tr, st, _, _ := newTranslator(t)

	tr.applyUpdate(textChunk("ses_1", "first"))
	tr.FinishTurn("ses_1", "end_turn")
	tr.applyUpdate(textChunk("ses_1", "second"))

	msgs, err := st.Messages("ses_1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Parts[0].Text)
	assert.Equal(t, "second", msgs[1].Parts[0].Text)
}

func TestPermissionRequestStoredAndBroadcast(t *testing.T) {
	tr, st, events, _ := newTranslator(t)

	params, _ := json.Marshal(acp.RequestPermissionParams{
		SessionID: "ses_1",
		ToolCall:  acp.PermissionToolCall{ToolCallID: "call_1", Title: "Run make"},
		Options: []acp.PermissionOption{
			{OptionID: "allow_once", Name: "Allow once"},
			{OptionID: "allow_always", Name: "Always allow"},
			{OptionID: "reject_once", Name: "Reject"},
		},
	})
	tr.handleRequest(acp.InboundRequest{ID: 7, Method: acp.MethodRequestPermission, Params: params})

	pending := st.Permissions()
	require.Len(t, pending, 1)
	req := pending[0]
	assert.Equal(t, "Run make", req.Name)
	assert.Equal(t, "call_1", req.CallID)
	assert.Equal(t, int64(7), req.RequestID)
	assert.Equal(t, []string{"allow_once", "allow_always", "reject_once"}, req.OptionIDs)
	assert.Equal(t, []string{"allow_always"}, req.AlwaysIDs)

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, hub.EventPermissionAsked, got[0].Type)
}

func TestUnknownInboundMethodRejected(t *testing.T) {
	tr, _, _, resp := newTranslator(t)

	tr.handleRequest(acp.InboundRequest{ID: 11, Method: "fs/read_text_file"})

	require.Len(t, resp.errorCalls, 1)
	assert.Equal(t, int64(11), resp.errorCalls[0])
	assert.Equal(t, acp.CodeMethodNotFound, resp.errorCodes[0])
}

func TestChunkForUnknownSessionDropped(t *testing.T) {
	tr, st, events, _ := newTranslator(t)

	tr.applyUpdate(textChunk("ses_missing", "hi"))

	assert.Empty(t, drain(events))
	assert.False(t, st.Has("ses_missing"))
}
