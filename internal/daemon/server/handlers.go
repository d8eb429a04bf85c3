package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/internal/acp"
	"github.com/grovetools/bridge/internal/hub"
	"github.com/grovetools/bridge/internal/project"
	"github.com/grovetools/bridge/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps bridge error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeSessionNotFound, errors.ErrCodeMessageNotFound, errors.ErrCodePermissionNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	}

	body := map[string]interface{}{"error": map[string]interface{}{
		"code":    string(errors.GetCode(err)),
		"message": err.Error(),
	}}
	if bridgeErr, ok := err.(*errors.BridgeError); ok {
		body["error"].(map[string]interface{})["message"] = bridgeErr.Message
	}
	writeJSON(w, status, body)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.recon.Reload(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.st.Sessions(""))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.st.Sessions(r.URL.Query().Get("directory")))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Directory string `json:"directory"`
		Title     string `json:"title"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Directory == "" {
		cwd, err := os.Getwd()
		if err != nil {
			writeError(w, err)
			return
		}
		body.Directory = cwd
	}

	var result acp.NewSessionResult
	err := s.agent.Call(r.Context(), acp.MethodSessionNew, acp.NewSessionParams{
		Cwd:        body.Directory,
		MCPServers: []string{},
	}, &result)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	sess := &store.Session{
		ID:         result.SessionID,
		Directory:  body.Directory,
		Title:      body.Title,
		CreatedAt:  now,
		UpdatedAt:  now,
		Registered: true,
	}
	s.st.Add(sess)
	s.logger.WithFields(logrus.Fields{
		"session":   sess.ID,
		"directory": sess.Directory,
	}).Info("Session created")
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.st.Session(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.st.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.recon.RemoveSessionDir(id); err != nil {
		s.logger.WithError(err).WithField("session", id).Warn("Failed to remove session logs")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" {
		writeError(w, errors.InvalidInput("title is required"))
		return
	}
	id := r.PathValue("id")
	if err := s.st.Rename(id, body.Title); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.st.Session(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.st.Messages(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleListParts(w http.ResponseWriter, r *http.Request) {
	msg, err := s.st.Message(r.PathValue("id"), r.PathValue("mid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg.Parts)
}

// handleSendMessage appends a user message and fires the prompt. The
// response acknowledges receipt; the assistant's reply streams through
// the broadcast hub.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeError(w, errors.InvalidInput("text is required"))
		return
	}

	id, err := s.ensureRegistered(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	msg := &store.Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      store.RoleUser,
		CreatedAt: time.Now().UTC(),
	}
	msg.Parts = []*store.Part{{
		ID:   "prt_" + uuid.NewString(),
		Type: store.PartText,
		Text: body.Text,
	}}
	if err := s.st.AppendMessage(id, msg); err != nil {
		writeError(w, err)
		return
	}
	s.hub.Publish(hub.EventMessageUpdated, msg)

	go s.prompt(id, body.Text)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"sessionId": id,
		"messageId": msg.ID,
	})
}

// prompt runs the agent turn asynchronously. Errors land in the log;
// the HTTP caller already got its acknowledgement.
func (s *Server) prompt(sessionID, text string) {
	var result acp.PromptResult
	err := s.agent.Call(context.Background(), acp.MethodSessionPrompt, acp.PromptParams{
		SessionID: sessionID,
		Prompt:    []acp.ContentBlock{acp.TextBlock(text)},
	}, &result)
	if err != nil {
		s.logger.WithError(err).WithField("session", sessionID).Error("Prompt failed")
		s.translator.FinishTurn(sessionID, "error")
		return
	}
	s.translator.FinishTurn(sessionID, result.StopReason)
}

// handleCancelSession interrupts an in-flight prompt. Cancellation is a
// notification with no acknowledgement; the agent's own updates signal
// whatever happens next.
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.st.Session(id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.agent.Notify(acp.MethodSessionCancel, acp.CancelParams{SessionID: id}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"cancelled": true})
}

// ensureRegistered makes sure the agent knows the session id before a
// prompt. Reconstructed sessions are loaded when the agent supports it;
// otherwise a fresh agent-side session replaces the local id, and the
// returned id is the one to prompt with.
func (s *Server) ensureRegistered(ctx context.Context, id string) (string, error) {
	sess, err := s.st.Session(id)
	if err != nil {
		return "", err
	}
	if sess.Registered {
		return id, nil
	}

	if s.agent.SupportsLoadSession() {
		err := s.agent.Call(ctx, acp.MethodSessionLoad, acp.LoadSessionParams{
			SessionID:  id,
			Cwd:        sess.Directory,
			MCPServers: []string{},
		}, nil)
		if err == nil {
			s.markRegistered(id)
			return id, nil
		}
		// Degrade to a fresh session rather than failing the send
		s.logger.WithError(err).WithField("session", id).Warn("Session load failed, creating a new agent session")
	}

	var result acp.NewSessionResult
	err = s.agent.Call(ctx, acp.MethodSessionNew, acp.NewSessionParams{
		Cwd:        sess.Directory,
		MCPServers: []string{},
	}, &result)
	if err != nil {
		return "", err
	}

	if err := s.st.RemapID(id, result.SessionID); err != nil {
		return "", err
	}
	if err := s.recon.MoveSessionDir(id, result.SessionID); err != nil {
		s.logger.WithError(err).WithField("session", id).Warn("Failed to move session logs after remap")
	}
	s.markRegistered(result.SessionID)
	s.logger.WithFields(logrus.Fields{
		"oldId": id,
		"newId": result.SessionID,
	}).Info("Session remapped to new agent session")
	return result.SessionID, nil
}

func (s *Server) markRegistered(id string) {
	s.st.Mutate(id, func(sess *store.Session) error {
		sess.Registered = true
		return nil
	})
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.st.Permissions())
}

// handlePermissionReply relays a decision to the agent and retires the
// pending request. Exactly one response goes out per permission id.
func (s *Server) handlePermissionReply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reply string `json:"reply"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("reply is required"))
		return
	}
	switch body.Reply {
	case "once", "always", "reject":
	default:
		writeError(w, errors.InvalidInput("reply must be once, always or reject"))
		return
	}

	req, err := s.st.RemovePermission(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var outcome acp.RequestPermissionResult
	if body.Reply == "reject" {
		outcome = acp.CancelledOutcome()
	} else {
		outcome = acp.SelectedOutcome(pickOption(req, body.Reply))
	}
	if err := s.agent.Respond(req.RequestID, outcome); err != nil {
		s.logger.WithError(err).WithField("permission", req.ID).Error("Failed to relay permission reply")
		writeError(w, err)
		return
	}

	s.hub.Publish(hub.EventPermissionReplied, map[string]string{
		"id":        req.ID,
		"sessionId": req.SessionID,
		"reply":     body.Reply,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"replied": true})
}

// pickOption translates once/always into the agent's option ids. Once
// prefers the first option outside the always subset.
func pickOption(req *store.PermissionRequest, reply string) string {
	always := make(map[string]bool, len(req.AlwaysIDs))
	for _, id := range req.AlwaysIDs {
		always[id] = true
	}

	if reply == "always" {
		if len(req.AlwaysIDs) > 0 {
			return req.AlwaysIDs[0]
		}
	} else {
		for _, id := range req.OptionIDs {
			if !always[id] {
				return id
			}
		}
	}
	if len(req.OptionIDs) > 0 {
		return req.OptionIDs[0]
	}
	return ""
}

func (s *Server) handleProvider(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"id":    s.cfg.Agent.Command,
		"model": s.cfg.Agent.Model,
	})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"command": s.cfg.Agent.Command,
		"addr":    s.cfg.Agent.Addr(),
		"version": s.version,
	})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]bool)
	projects := []project.Project{}
	for _, sess := range s.st.Sessions("") {
		p := project.For(sess.Directory)
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		projects = append(projects, p)
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCurrentProject(w http.ResponseWriter, r *http.Request) {
	cwd, err := os.Getwd()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project.For(cwd))
}
