package store

import (
	"sort"
	"sync"
	"time"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/internal/project"
)

// Store is the in-memory state store for the bridge. It is thread-safe:
// readers receive deep clones, and every mutation runs atomically under
// the write lock so state is never observed partially updated.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	order       []string // session ids in insertion order
	permissions map[string]*PermissionRequest
}

// New creates a new Store instance.
func New() *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		permissions: make(map[string]*PermissionRequest),
	}
}

// Add inserts a session. An existing session with the same id is replaced
// in place, keeping its position.
func (s *Store) Add(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ProjectID == "" && sess.Directory != "" {
		sess.ProjectID = project.ID(sess.Directory)
	}
	if _, exists := s.sessions[sess.ID]; !exists {
		s.order = append(s.order, sess.ID)
	}
	s.sessions[sess.ID] = sess
}

// Session returns a deep clone of the session, or SessionNotFound.
func (s *Store) Session(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return sess.Clone(), nil
}

// Has reports whether a session exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Sessions returns clones of all sessions, optionally filtered by
// directory, ordered by most recent update first.
func (s *Store) Sessions(directory string) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := ""
	if directory != "" {
		filter = project.Normalize(directory)
	}

	result := make([]*Session, 0, len(s.order))
	for _, id := range s.order {
		sess := s.sessions[id]
		if filter != "" && project.Normalize(sess.Directory) != filter {
			continue
		}
		result = append(result, sess.Clone())
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result
}

// Remove deletes a session. Returns SessionNotFound if absent.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return errors.SessionNotFound(id)
	}
	delete(s.sessions, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Rename updates a session's title.
func (s *Store) Rename(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errors.SessionNotFound(id)
	}
	sess.Title = title
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// RemapID atomically replaces a session's identifier, rewriting message
// ownership. Concurrent readers see either the old id or the new one,
// never an intermediate state.
func (s *Store) RemapID(oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[oldID]
	if !ok {
		return errors.SessionNotFound(oldID)
	}
	delete(s.sessions, oldID)
	sess.ID = newID
	for _, m := range sess.Messages {
		m.SessionID = newID
	}
	s.sessions[newID] = sess
	for i, sid := range s.order {
		if sid == oldID {
			s.order[i] = newID
			break
		}
	}
	return nil
}

// Mutate runs fn against the live session under the write lock. All
// translator and reconstructor mutations go through here so each update
// is atomic with respect to readers.
func (s *Store) Mutate(id string, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errors.SessionNotFound(id)
	}
	return fn(sess)
}

// Messages returns clones of a session's messages.
func (s *Store) Messages(sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.SessionNotFound(sessionID)
	}
	result := make([]*Message, len(sess.Messages))
	for i, m := range sess.Messages {
		result[i] = m.Clone()
	}
	return result, nil
}

// Message returns a clone of one message.
func (s *Store) Message(sessionID, messageID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.SessionNotFound(sessionID)
	}
	for _, m := range sess.Messages {
		if m.ID == messageID {
			return m.Clone(), nil
		}
	}
	return nil, errors.MessageNotFound(messageID)
}

// AppendMessage adds a message to a session and bumps its update time.
func (s *Store) AppendMessage(sessionID string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return errors.SessionNotFound(sessionID)
	}
	msg.SessionID = sessionID
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// AddPermission stores a pending permission request.
func (s *Store) AddPermission(req *PermissionRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[req.ID] = req
}

// Permission returns a pending permission request.
func (s *Store) Permission(id string) (*PermissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.permissions[id]
	if !ok {
		return nil, errors.PermissionNotFound(id)
	}
	clone := *req
	return &clone, nil
}

// Permissions returns all pending permission requests, oldest first.
func (s *Store) Permissions() []*PermissionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*PermissionRequest, 0, len(s.permissions))
	for _, req := range s.permissions {
		clone := *req
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// RemovePermission deletes and returns a pending permission request, so a
// reply can be relayed exactly once.
func (s *Store) RemovePermission(id string) (*PermissionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.permissions[id]
	if !ok {
		return nil, errors.PermissionNotFound(id)
	}
	delete(s.permissions, id)
	return req, nil
}
