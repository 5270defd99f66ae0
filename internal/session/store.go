// Package session provides the server-side request session: transient
// per-client state (flash messages, reset-request markers, the logged-in user
// ID for session-kind logins) keyed by a session cookie. Durable sessions
// live in the active_sessions table, not here.
package session

import (
	"net/http"
	"sync"
	"time"

	"accounthub/internal/security"
)

// CookieName is the cookie carrying the server-side session ID.
const CookieName = "session_id"

// Store holds all live server-side sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// Session is one client's server-side state. The dispatcher holds the
// session lock for the duration of the request and releases it after the
// response is flushed; value accessors assume the lock is held.
type Session struct {
	mu       sync.Mutex
	id       string
	values   map[string]interface{}
	lastSeen time.Time
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Open returns the request's session, creating one (and setting the session
// cookie) when the client has none or presents an unknown ID.
func (st *Store) Open(w http.ResponseWriter, r *http.Request) *Session {
	if cookie, err := r.Cookie(CookieName); err == nil {
		st.mu.Lock()
		if sess, ok := st.sessions[cookie.Value]; ok {
			sess.lastSeen = time.Now()
			st.mu.Unlock()
			return sess
		}
		st.mu.Unlock()
	}

	sess := st.New()
	// Browser-session cookie; the remembered-login cookies are separate.
	http.SetCookie(w, security.CreateSessionCookie(r, CookieName, sess.id, time.Time{}))
	return sess
}

// New creates and registers a fresh session.
func (st *Store) New() *Session {
	sess := &Session{
		id:       security.GenerateSessionID(),
		values:   make(map[string]interface{}),
		lastSeen: time.Now(),
	}
	st.mu.Lock()
	st.sessions[sess.id] = sess
	st.mu.Unlock()
	return sess
}

// Cleanup drops sessions idle longer than maxIdle.
func (st *Store) Cleanup(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, sess := range st.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(st.sessions, id)
		}
	}
}

// ID returns the session ID. Session-kind logins store this ID as the
// active_sessions token.
func (s *Session) ID() string {
	return s.id
}

// Lock acquires the per-session lock for the duration of a request.
func (s *Session) Lock() {
	s.mu.Lock()
}

// Unlock releases the per-session lock. Must happen before any deferred
// post-processing so slow work cannot block the client's next request.
func (s *Session) Unlock() {
	s.mu.Unlock()
}

// Get returns a session value.
func (s *Session) Get(key string) (interface{}, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetString returns a session value as a string, or "" when absent.
func (s *Session) GetString(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// GetInt64 returns a session value as an int64, or 0 when absent.
func (s *Session) GetInt64(key string) (int64, bool) {
	v, ok := s.values[key].(int64)
	return v, ok
}

// Set stores a session value.
func (s *Session) Set(key string, value interface{}) {
	s.values[key] = value
}

// Delete removes a session value.
func (s *Session) Delete(key string) {
	delete(s.values, key)
}

// Pop returns and removes a session value; used for flash messages.
func (s *Session) Pop(key string) (interface{}, bool) {
	v, ok := s.values[key]
	if ok {
		delete(s.values, key)
	}
	return v, ok
}

// PopString returns and removes a string session value.
func (s *Session) PopString(key string) string {
	v, _ := s.Pop(key)
	str, _ := v.(string)
	return str
}
