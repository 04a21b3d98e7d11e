package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mathchat/mathchat/internal/provider"
)

// Storage keys. Each one is readable and writable on its own.
const (
	keySessions = "chatSessions"
	keyActiveID = "currentSessionId"
	keyProvider = "chatModel"
)

// titleRunes is the length of the title derived from the first user message.
const titleRunes = 15

// ErrSessionNotFound is returned when an id does not resolve to a session.
// Callers recover by creating a replacement session, never by leaving the
// display undefined.
var ErrSessionNotFound = errors.New("session not found")

// Session is one persisted conversation thread. Messages are append-only;
// the title changes once, derived from the first user message.
type Session struct {
	ID       string             `json:"id"`
	Title    string             `json:"title"`
	Messages []provider.Message `json:"messages"`
}

// clone returns a copy safe to hand outside the store's lock. The store
// keeps mutating its own sessions (AppendMessage reassigns the Messages
// slice), and callers forward sessions across goroutines to the UI, so
// they never see the live pointer.
func (sess *Session) clone() *Session {
	out := *sess
	out.Messages = append([]provider.Message(nil), sess.Messages...)
	return &out
}

// SessionInfo is the read-only projection used by navigation UI.
type SessionInfo struct {
	ID       string
	Title    string
	IsActive bool
	Messages int
}

// Store owns the ordered session collection (most-recent-first) and the
// active-session pointer. Every mutating operation persists synchronously
// before returning, so a crash loses at most an in-flight network call.
type Store struct {
	mu sync.Mutex

	kv     *KV
	logger *slog.Logger

	sessions []*Session
	activeID string
	lastID   int64 // highest id handed out, for monotonic collision bumps
}

// Open loads the store from the database at dbPath. Corrupt values are reset
// to their empty defaults with a logged warning; corruption is never fatal.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	kv, err := OpenKV(dbPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{kv: kv, logger: logger}
	if err := s.load(); err != nil {
		kv.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, ok, err := s.kv.Get(keySessions)
	if err != nil {
		return err
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &s.sessions); err != nil {
			// StorageCorrupt: reset the key, keep going.
			s.logger.Warn("session data corrupt, resetting", "error", err)
			s.sessions = nil
			if err := s.kv.Set(keySessions, "[]"); err != nil {
				return err
			}
		}
	}

	if id, ok, err := s.kv.Get(keyActiveID); err != nil {
		return err
	} else if ok {
		s.activeID = id
	}

	for _, sess := range s.sessions {
		if n, err := strconv.ParseInt(sess.ID, 10, 64); err == nil && n > s.lastID {
			s.lastID = n
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.kv.Close()
}

// ── persistence ───────────────────────────────────────────────────────────────

// persistSessions writes the full ordered collection. Must hold s.mu.
func (s *Store) persistSessions() error {
	data, err := json.Marshal(s.sessions)
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	return s.kv.Set(keySessions, string(data))
}

// persistActive writes the active pointer. Must hold s.mu.
func (s *Store) persistActive() error {
	return s.kv.Set(keyActiveID, s.activeID)
}

// ── id allocation ─────────────────────────────────────────────────────────────

// newSessionID returns a creation-timestamp-derived id, bumped past the last
// issued id so two sessions created in the same millisecond stay unique.
func (s *Store) newSessionID() string {
	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

// ── operations ────────────────────────────────────────────────────────────────

// CreateSession allocates a new session holding one greeting message, inserts
// it at the front of the collection, persists, and makes it active.
func (s *Store) CreateSession(greeting string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(greeting)
}

func (s *Store) createLocked(greeting string) (*Session, error) {
	sess := &Session{
		ID:       s.newSessionID(),
		Title:    "新思维 " + time.Now().Format("15:04:05"),
		Messages: []provider.Message{{Role: provider.RoleBot, Text: greeting}},
	}
	s.sessions = append([]*Session{sess}, s.sessions...)
	s.activeID = sess.ID

	if err := s.persistSessions(); err != nil {
		return nil, err
	}
	if err := s.persistActive(); err != nil {
		return nil, err
	}
	return sess.clone(), nil
}

// LoadSession makes the session with the given id active and returns it.
// Returns ErrSessionNotFound when id is absent; the caller falls back to
// CreateSession.
func (s *Store) LoadSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.find(id)
	if sess == nil {
		return nil, fmt.Errorf("load session %s: %w", id, ErrSessionNotFound)
	}
	s.activeID = id
	if err := s.persistActive(); err != nil {
		return nil, err
	}
	return sess.clone(), nil
}

// EnsureActive resolves the active pointer, creating a fresh session when the
// pointer is missing, dangling, or the store is empty. This is the first-load
// entry point: after it returns, currentSessionId always references a session
// present in the collection.
func (s *Store) EnsureActive(greeting string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != "" {
		if sess := s.find(s.activeID); sess != nil {
			return sess.clone(), nil
		}
	}
	return s.createLocked(greeting)
}

// AppendMessage appends to the target session. When this is the session's
// second message overall and the role is user, the session title becomes the
// first 15 characters of the text. Persists before returning.
func (s *Store) AppendMessage(id string, role provider.Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.find(id)
	if sess == nil {
		return fmt.Errorf("append to session %s: %w", id, ErrSessionNotFound)
	}

	sess.Messages = append(sess.Messages, provider.Message{Role: role, Text: text})
	if len(sess.Messages) == 2 && role == provider.RoleUser {
		sess.Title = truncateRunes(text, titleRunes)
	}

	return s.persistSessions()
}

// DeleteSession removes the session with the given id. When the deleted
// session was active, the pointer is repaired: the most recent remaining
// session becomes active, or a fresh one is created when none remain. Returns
// the session that is active after the deletion.
func (s *Store) DeleteSession(id, greeting string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("delete session %s: %w", id, ErrSessionNotFound)
	}

	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if err := s.persistSessions(); err != nil {
		return nil, err
	}

	if s.activeID != id {
		if cur := s.find(s.activeID); cur != nil {
			return cur.clone(), nil
		}
		return nil, nil
	}

	// Pointer repair.
	if len(s.sessions) > 0 {
		s.activeID = s.sessions[0].ID
		if err := s.persistActive(); err != nil {
			return nil, err
		}
		return s.sessions[0].clone(), nil
	}
	return s.createLocked(greeting)
}

// ClearAll deletes every session and starts over with a fresh one.
func (s *Store) ClearAll(greeting string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	if err := s.persistSessions(); err != nil {
		return nil, err
	}
	return s.createLocked(greeting)
}

// ListSessions returns the navigation projection, in display order.
func (s *Store) ListSessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, SessionInfo{
			ID:       sess.ID,
			Title:    sess.Title,
			IsActive: sess.ID == s.activeID,
			Messages: len(sess.Messages),
		})
	}
	return infos
}

// ActiveID returns the current active-session id ("" when the store is empty).
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Get returns the session with the given id without touching the pointer.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.find(id)
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return sess.clone(), nil
}

// find must hold s.mu.
func (s *Store) find(id string) *Session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// ── provider selection ────────────────────────────────────────────────────────

// Provider returns the persisted provider id, or "" when never set.
func (s *Store) Provider() string {
	id, ok, err := s.kv.Get(keyProvider)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("reading provider selection", "error", err)
		}
		return ""
	}
	return id
}

// SetProvider persists the provider selection, independent of chat state.
func (s *Store) SetProvider(id string) error {
	return s.kv.Set(keyProvider, id)
}

// truncateRunes shortens s to at most n characters, rune-safe.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
