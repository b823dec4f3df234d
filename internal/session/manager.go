// ABOUTME: Process-wide session registry keyed by opaque cookie IDs
// ABOUTME: Handles cookie issuance, lookup, expiry, and background cleanup

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

// CookieName is the name of the session cookie.
const CookieName = "wisp_session"

// DefaultDuration is how long sessions last without explicit logout.
const DefaultDuration = 7 * 24 * time.Hour

// entry pairs a session with its expiry deadline.
type entry struct {
	sess      *Session
	expiresAt time.Time
}

// Manager is an in-memory registry of live sessions. Sessions are created
// on first access, found again by the opaque ID carried in the visitor's
// cookie, and swept once expired.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	duration time.Duration
	cancel   context.CancelFunc
}

// NewManager creates a registry whose sessions expire after duration, and
// starts the background expiry sweep. Pass 0 for the default duration.
func NewManager(duration time.Duration) *Manager {
	if duration <= 0 {
		duration = DefaultDuration
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions: make(map[string]*entry),
		duration: duration,
		cancel:   cancel,
	}
	go m.cleanupLoop(ctx)
	return m
}

// Close stops the cleanup goroutine.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Create registers a fresh session and returns its opaque ID.
func (m *Manager) Create() (string, *Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", nil, err
	}

	sess := New()
	m.mu.Lock()
	m.sessions[id] = &entry{
		sess:      sess,
		expiresAt: time.Now().Add(m.duration),
	}
	m.mu.Unlock()

	return id, sess, nil
}

// Get returns the session registered under id, if it exists and has not
// expired.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.sess, true
}

// Delete removes the session registered under id.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// FromRequest resolves the request's session from its cookie, creating a
// new session and setting the cookie when none exists. This is the single
// entry point the web layer uses, so every request carries a session.
func (m *Manager) FromRequest(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		if sess, ok := m.Get(cookie.Value); ok {
			return sess, nil
		}
	}

	id, sess, err := m.Create()
	if err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().Add(m.duration),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	return sess, nil
}

// Destroy removes the request's session and clears its cookie. Used on
// explicit logout.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		m.Delete(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// cleanupLoop sweeps expired sessions once a minute.
func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for id, e := range m.sessions {
				if now.After(e.expiresAt) {
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}
}

// generateSessionID produces a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
