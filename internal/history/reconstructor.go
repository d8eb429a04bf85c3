package history

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/internal/store"
	"github.com/grovetools/bridge/logging"
)

// Reconstructor rebuilds session state from the on-disk log tree. Each
// subdirectory of the root is one session, named by its id.
type Reconstructor struct {
	root string
	st   *store.Store
	log  *logrus.Entry
}

// New creates a Reconstructor over the given log root.
func New(root string, st *store.Store) *Reconstructor {
	return &Reconstructor{
		root: root,
		st:   st,
		log:  logging.NewLogger("history"),
	}
}

// Root returns the session-log root directory.
func (r *Reconstructor) Root() string {
	return r.root
}

// Reload scans the log tree and replaces the message state of every
// session found on disk. Sessions already in memory keep their identity
// and only have their messages refolded; new directories become new
// sessions. Unreadable directories are skipped.
func (r *Reconstructor) Reload() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := r.loadSession(entry.Name()); err != nil {
			r.log.WithError(err).WithField("session", entry.Name()).Warn("Skipping session directory")
			continue
		}
		loaded++
	}
	r.log.WithField("sessions", loaded).Info("Session logs loaded")
	return nil
}

func (r *Reconstructor) loadSession(id string) error {
	dir := filepath.Join(r.root, id)

	metaFile, err := os.Open(filepath.Join(dir, DescriptorFile))
	if err != nil {
		return err
	}
	desc, err := ParseDescriptor(metaFile)
	metaFile.Close()
	if err != nil {
		return err
	}
	if !desc.Valid() {
		return errors.New(errors.ErrCodeInvalidInput, "descriptor missing cwd")
	}

	var messages []*store.Message
	if eventsFile, err := os.Open(filepath.Join(dir, EventsFile)); err == nil {
		messages = r.fold(id, eventsFile)
		eventsFile.Close()
	}

	if r.st.Has(id) {
		return r.st.Mutate(id, func(sess *store.Session) error {
			sess.Directory = desc.Cwd
			if desc.Summary != "" {
				sess.Title = desc.Summary
			}
			if !desc.UpdatedAt.IsZero() {
				sess.UpdatedAt = desc.UpdatedAt
			}
			sess.Messages = messages
			sess.ActiveMessageID = ""
			return nil
		})
	}

	sess := &store.Session{
		ID:        id,
		Directory: desc.Cwd,
		Title:     desc.Summary,
		CreatedAt: desc.CreatedAt,
		UpdatedAt: desc.UpdatedAt,
		Messages:  messages,
	}
	r.st.Add(sess)
	return nil
}

// fold replays the event stream into an ordered message list. Turns may
// interleave, so open assistant messages are keyed by turn id. Unknown
// event types and malformed lines are skipped.
func (r *Reconstructor) fold(sessionID string, stream io.Reader) []*store.Message {
	var messages []*store.Message
	turns := make(map[string]*store.Message)
	currentTurn := ""

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			r.log.WithError(err).WithField("session", sessionID).Debug("Skipping malformed event line")
			continue
		}

		switch ev.Type {
		case EventUserMessage:
			msg := &store.Message{
				ID:        ev.ID,
				SessionID: sessionID,
				Role:      store.RoleUser,
				CreatedAt: ev.Timestamp,
				Parts: []*store.Part{{
					ID:   ev.ID + "_text",
					Type: store.PartText,
					Text: ev.Content,
				}},
			}
			messages = append(messages, msg)

		case EventTurnStart:
			msg := &store.Message{
				ID:        ev.ID,
				SessionID: sessionID,
				Role:      store.RoleAssistant,
				CreatedAt: ev.Timestamp,
			}
			turns[ev.ID] = msg
			currentTurn = ev.ID
			messages = append(messages, msg)

		case EventAssistantMessage:
			msg := turns[ev.ID]
			if msg == nil {
				continue
			}
			mergeAssistantEvent(msg, ev)
			currentTurn = ev.ID

		case EventToolComplete:
			applyToolComplete(turns, currentTurn, ev)

		case EventTurnEnd:
			msg := turns[ev.ID]
			if msg == nil {
				continue
			}
			if !ev.Timestamp.IsZero() {
				completed := ev.Timestamp
				msg.CompletedAt = &completed
			}
			delete(turns, ev.ID)
			if currentTurn == ev.ID {
				currentTurn = ""
			}

		default:
			// Forward compatibility: ignore event types we don't know
		}
	}
	return messages
}

// mergeAssistantEvent folds one assistant.message event into its turn's
// message: text and reasoning grow their single part, tools append as
// already-completed invocations.
func mergeAssistantEvent(msg *store.Message, ev Event) {
	if ev.Model != "" {
		msg.Model = ev.Model
	}
	if ev.Provider != "" {
		msg.Provider = ev.Provider
	}

	if ev.Content != "" {
		part := msg.Part(msg.ID + "_text")
		if part == nil {
			part = &store.Part{ID: msg.ID + "_text", Type: store.PartText}
			msg.Parts = append(msg.Parts, part)
		}
		part.Text += ev.Content
	}

	if ev.Reasoning != "" {
		part := msg.Part(msg.ID + "_reasoning")
		if part == nil {
			part = &store.Part{ID: msg.ID + "_reasoning", Type: store.PartReasoning}
			msg.Parts = append(msg.Parts, part)
		}
		part.Text += ev.Reasoning
	}

	for _, tool := range ev.Tools {
		if msg.ToolPart(tool.CallID) != nil {
			continue
		}
		msg.Parts = append(msg.Parts, &store.Part{
			ID:     tool.CallID,
			Type:   store.PartTool,
			CallID: tool.CallID,
			Tool:   tool.Name,
			Status: store.ToolCompleted,
			Input:  store.DecodeToolInput(tool.Name, tool.Input),
			Output: tool.Output,
		})
	}
}

// applyToolComplete overwrites a tool part's output and status. The
// part is looked up in the current turn first, then any open turn.
func applyToolComplete(turns map[string]*store.Message, currentTurn string, ev Event) {
	if ev.CallID == "" {
		return
	}
	var part *store.Part
	if msg := turns[currentTurn]; msg != nil {
		part = msg.ToolPart(ev.CallID)
	}
	if part == nil {
		for _, msg := range turns {
			if p := msg.ToolPart(ev.CallID); p != nil {
				part = p
				break
			}
		}
	}
	if part == nil {
		return
	}
	if len(ev.Output) > 0 {
		part.Output = ev.Output
	}
	if ev.Status == "error" {
		part.Status = store.ToolError
	} else {
		part.Status = store.ToolCompleted
	}
}

// RemoveSessionDir deletes a session's log directory. The id is
// validated against path traversal before anything is removed.
func (r *Reconstructor) RemoveSessionDir(id string) error {
	dir, err := r.sessionDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return nil
}

// MoveSessionDir renames a session's log directory after an id remap,
// so a later reload does not resurrect the old id. Missing source
// directories are not an error: live sessions may have no logs yet.
func (r *Reconstructor) MoveSessionDir(oldID, newID string) error {
	oldDir, err := r.sessionDir(oldID)
	if err != nil {
		return err
	}
	newDir, err := r.sessionDir(newID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(oldDir); os.IsNotExist(err) {
		return nil
	}
	return os.Rename(oldDir, newDir)
}

func (r *Reconstructor) sessionDir(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return "", errors.InvalidInput("invalid session id")
	}
	return filepath.Join(r.root, id), nil
}
