// Package translate turns agent notifications into session store
// mutations and broadcast events.
package translate

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/bridge/internal/acp"
	"github.com/grovetools/bridge/internal/hub"
	"github.com/grovetools/bridge/internal/store"
	"github.com/grovetools/bridge/logging"
)

// responder answers agent-initiated requests. Satisfied by acp.Client.
type responder interface {
	RespondError(id int64, code int, msg string) error
}

// Translator is the single consumer of agent traffic. All session
// store writes triggered by the agent happen on its goroutine, which
// serializes them without additional locking at this layer.
type Translator struct {
	st   *store.Store
	hub  *hub.Hub
	resp responder
	log  *logrus.Entry
}

// New creates a Translator.
func New(st *store.Store, h *hub.Hub, resp responder) *Translator {
	return &Translator{
		st:   st,
		hub:  h,
		resp: resp,
		log:  logging.NewLogger("translate"),
	}
}

// Run consumes both inbound channels until they close. Call in its own
// goroutine.
func (t *Translator) Run(notifications <-chan acp.Notification, requests <-chan acp.InboundRequest) {
	for notifications != nil || requests != nil {
		select {
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			t.handleNotification(n)
		case r, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			t.handleRequest(r)
		}
	}
	t.log.Info("Agent channels closed, translator stopping")
}

func (t *Translator) handleNotification(n acp.Notification) {
	if n.Method != acp.MethodSessionUpdate {
		t.log.WithField("method", n.Method).Debug("Ignoring notification")
		return
	}
	var sn acp.SessionNotification
	if err := json.Unmarshal(n.Params, &sn); err != nil {
		t.log.WithError(err).Warn("Dropping undecodable session update")
		return
	}
	t.applyUpdate(sn)
}

func (t *Translator) applyUpdate(sn acp.SessionNotification) {
	switch sn.Update.SessionUpdate {
	case acp.UpdateAgentMessageChunk:
		t.appendChunk(sn.SessionID, sn.Update.Content, store.PartText)
	case acp.UpdateAgentThoughtChunk:
		t.appendChunk(sn.SessionID, sn.Update.Content, store.PartReasoning)
	case acp.UpdateUserMessageChunk:
		// The user message is already in the store; the echo adds nothing
	case acp.UpdateToolCall:
		t.startToolCall(sn.SessionID, sn.Update)
	case acp.UpdateToolCallUpdate:
		t.updateToolCall(sn.SessionID, sn.Update)
	case acp.UpdatePlan, acp.UpdateCurrentModeUpdate:
		// Accepted but not surfaced yet
	default:
		t.log.WithField("update", sn.Update.SessionUpdate).Debug("Ignoring unknown session update")
	}
}

// appendChunk grows the active assistant message's single text or
// reasoning part, creating message and part as needed.
func (t *Translator) appendChunk(sessionID string, content *acp.ContentBlock, partType store.PartType) {
	if content == nil || content.Text == "" {
		return
	}

	var created *store.Message
	var updated *store.Part
	var messageID string

	err := t.st.Mutate(sessionID, func(sess *store.Session) error {
		msg := t.activeMessage(sess, &created)
		messageID = msg.ID

		var part *store.Part
		for _, p := range msg.Parts {
			if p.Type == partType {
				part = p
				break
			}
		}
		if part == nil {
			part = &store.Part{ID: newPartID(), Type: partType}
			msg.Parts = append(msg.Parts, part)
		}
		part.Text += content.Text
		updated = part.Clone()
		return nil
	})
	if err != nil {
		t.log.WithError(err).WithField("session", sessionID).Warn("Dropping chunk for unknown session")
		return
	}

	if created != nil {
		t.hub.Publish(hub.EventMessageUpdated, created)
	}
	t.publishPart(sessionID, messageID, updated)
}

func (t *Translator) startToolCall(sessionID string, u acp.SessionUpdate) {
	now := time.Now().UTC()

	var created *store.Message
	var updated *store.Part
	var messageID string

	err := t.st.Mutate(sessionID, func(sess *store.Session) error {
		msg := t.activeMessage(sess, &created)
		messageID = msg.ID

		if msg.ToolPart(u.ToolCallID) != nil {
			return nil
		}
		part := &store.Part{
			ID:        newPartID(),
			Type:      store.PartTool,
			CallID:    u.ToolCallID,
			Tool:      toolName(u),
			Status:    mapStatus(u.Status),
			Input:     store.DecodeToolInput(toolName(u), u.RawInput),
			StartedAt: &now,
		}
		msg.Parts = append(msg.Parts, part)
		updated = part.Clone()
		return nil
	})
	if err != nil {
		t.log.WithError(err).WithField("session", sessionID).Warn("Dropping tool call for unknown session")
		return
	}

	if created != nil {
		t.hub.Publish(hub.EventMessageUpdated, created)
	}
	if updated != nil {
		t.publishPart(sessionID, messageID, updated)
	}
}

func (t *Translator) updateToolCall(sessionID string, u acp.SessionUpdate) {
	var updated *store.Part
	var messageID string

	err := t.st.Mutate(sessionID, func(sess *store.Session) error {
		msg := sess.Message(sess.ActiveMessageID)
		if msg == nil {
			return nil
		}
		messageID = msg.ID

		part := msg.ToolPart(u.ToolCallID)
		if part == nil {
			t.log.WithField("toolCallId", u.ToolCallID).Warn("Tool update for unknown call id")
			return nil
		}

		next := mapStatus(u.Status)
		if !part.Status.CanTransition(next) {
			t.log.WithFields(logrus.Fields{
				"toolCallId": u.ToolCallID,
				"from":       part.Status,
				"to":         next,
			}).Debug("Ignoring backward tool status transition")
			return nil
		}
		part.Status = next
		if len(u.RawOutput) > 0 {
			part.Output = u.RawOutput
		}
		if len(u.RawInput) > 0 && part.Input == nil {
			part.Input = store.DecodeToolInput(part.Tool, u.RawInput)
		}
		if next.Terminal() {
			ended := time.Now().UTC()
			part.EndedAt = &ended
			if part.StartedAt != nil {
				part.DurationMS = ended.Sub(*part.StartedAt).Milliseconds()
			}
		}
		updated = part.Clone()
		return nil
	})
	if err != nil {
		t.log.WithError(err).WithField("session", sessionID).Warn("Dropping tool update for unknown session")
		return
	}
	if updated != nil {
		t.publishPart(sessionID, messageID, updated)
	}
}

// activeMessage returns the session's streaming assistant message,
// opening a new one when no turn is active. A freshly created message
// is cloned into *created so the caller can broadcast it after the
// mutation commits.
func (t *Translator) activeMessage(sess *store.Session, created **store.Message) *store.Message {
	if sess.ActiveMessageID != "" {
		if msg := sess.Message(sess.ActiveMessageID); msg != nil {
			return msg
		}
	}
	msg := &store.Message{
		ID:        newMessageID(),
		SessionID: sess.ID,
		Role:      store.RoleAssistant,
		CreatedAt: time.Now().UTC(),
	}
	sess.Messages = append(sess.Messages, msg)
	sess.ActiveMessageID = msg.ID
	sess.UpdatedAt = msg.CreatedAt
	*created = msg.Clone()
	return msg
}

// FinishTurn stamps completion on the active assistant message and
// clears the streaming cursor. Called when the prompt call resolves.
func (t *Translator) FinishTurn(sessionID, stopReason string) {
	var finished *store.Message

	err := t.st.Mutate(sessionID, func(sess *store.Session) error {
		if sess.ActiveMessageID == "" {
			return nil
		}
		msg := sess.Message(sess.ActiveMessageID)
		sess.ActiveMessageID = ""
		if msg == nil {
			return nil
		}
		now := time.Now().UTC()
		msg.CompletedAt = &now
		sess.UpdatedAt = now
		finished = msg.Clone()
		return nil
	})
	if err != nil {
		t.log.WithError(err).WithField("session", sessionID).Warn("Finish for unknown session")
		return
	}
	if finished != nil {
		t.log.WithFields(logrus.Fields{
			"session":    sessionID,
			"stopReason": stopReason,
		}).Debug("Turn finished")
		t.hub.Publish(hub.EventMessageUpdated, finished)
	}
}

func (t *Translator) handleRequest(r acp.InboundRequest) {
	if r.Method != acp.MethodRequestPermission {
		t.log.WithField("method", r.Method).Warn("Unsupported agent request")
		if err := t.resp.RespondError(r.ID, acp.CodeMethodNotFound, "method not supported"); err != nil {
			t.log.WithError(err).Warn("Failed to reject agent request")
		}
		return
	}

	var params acp.RequestPermissionParams
	if err := json.Unmarshal(r.Params, &params); err != nil {
		t.log.WithError(err).Warn("Undecodable permission request")
		if err := t.resp.RespondError(r.ID, acp.CodeInternalError, "bad permission params"); err != nil {
			t.log.WithError(err).Warn("Failed to reject agent request")
		}
		return
	}

	req := buildPermissionRequest(r.ID, params)
	t.st.AddPermission(req)
	t.log.WithFields(logrus.Fields{
		"permission": req.ID,
		"session":    req.SessionID,
		"name":       req.Name,
	}).Info("Permission requested")
	t.hub.Publish(hub.EventPermissionAsked, req)
}

// buildPermissionRequest maps the agent's option list into the store
// shape, classifying "always"-style options by option id substring.
func buildPermissionRequest(requestID int64, params acp.RequestPermissionParams) *store.PermissionRequest {
	req := &store.PermissionRequest{
		ID:        "perm_" + uuid.NewString(),
		SessionID: params.SessionID,
		Name:      params.ToolCall.Title,
		CallID:    params.ToolCall.ToolCallID,
		CreatedAt: time.Now().UTC(),
		RequestID: requestID,
	}
	if req.Name == "" {
		req.Name = "Permission required"
	}
	for _, opt := range params.Options {
		req.OptionIDs = append(req.OptionIDs, opt.OptionID)
		if strings.Contains(strings.ToLower(opt.OptionID), "always") {
			req.AlwaysIDs = append(req.AlwaysIDs, opt.OptionID)
		}
	}
	return req
}

func (t *Translator) publishPart(sessionID, messageID string, part *store.Part) {
	t.hub.Publish(hub.EventMessagePartUpdated, map[string]interface{}{
		"sessionId": sessionID,
		"messageId": messageID,
		"part":      part,
	})
}

// mapStatus converts an agent tool status into the store vocabulary.
// Unknown statuses map to pending rather than failing the update.
func mapStatus(status string) store.ToolStatus {
	switch status {
	case "pending":
		return store.ToolPending
	case "in_progress":
		return store.ToolRunning
	case "completed":
		return store.ToolCompleted
	case "errored", "cancelled":
		return store.ToolError
	default:
		return store.ToolPending
	}
}

func toolName(u acp.SessionUpdate) string {
	if u.Title != "" {
		return u.Title
	}
	return u.Kind
}

func newMessageID() string { return "msg_" + uuid.NewString() }
func newPartID() string    { return "prt_" + uuid.NewString() }
