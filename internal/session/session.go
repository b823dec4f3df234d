// ABOUTME: Per-visitor session state: login flag, root directory, alerts
// ABOUTME: Carries the anti-forgery token with lazy issue and rotation

package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidToken is returned when an anti-forgery check fails. The message
// deliberately carries no detail about why; specifics would aid forgery
// attempts.
var ErrInvalidToken = errors.New("invalid token")

// Alert severities. The web layer maps these onto display styles.
const (
	SeverityDanger  = "danger"
	SeveritySuccess = "success"
	SeverityInfo    = "info"
)

// Alert is a single queued user-facing message.
type Alert struct {
	Message string `json:"message"`
}

// Session is the per-visitor state tracked across requests. It is the
// explicit context object handed into every access-controlled operation;
// there is no ambient global login state.
type Session struct {
	mu       sync.Mutex
	loggedIn bool
	rootDir  string
	token    string
	alerts   map[string][]Alert
}

// New returns an empty, anonymous session.
func New() *Session {
	return &Session{
		alerts: make(map[string][]Alert),
	}
}

// SetLoggedIn marks the session authenticated and records the root
// directory that scopes the admin's file operations to this install.
func (s *Session) SetLoggedIn(rootDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = true
	s.rootDir = rootDir
}

// IsLoggedIn reports whether the session has passed credential
// verification.
func (s *Session) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// RootDir returns the root directory recorded at login, or the empty string
// for an anonymous session.
func (s *Session) RootDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootDir
}

// Clear removes the login flag, root directory, and token. Used on logout.
// Queued alerts survive so a post-logout page can still display them.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
	s.rootDir = ""
	s.token = ""
}

// AddAlert appends a message to the ordered queue for severity.
func (s *Session) AddAlert(severity, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[severity] = append(s.alerts[severity], Alert{Message: message})
}

// Alerts returns the queued messages for severity without consuming them.
func (s *Session) Alerts(severity string) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.alerts[severity]
	out := make([]Alert, len(queue))
	copy(out, queue)
	return out
}

// TakeAlerts drains every queued alert, returning them grouped by severity.
// Alerts are one-shot: rendered once, then gone.
func (s *Session) TakeAlerts() map[string][]Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := s.alerts
	s.alerts = make(map[string][]Alert)
	return taken
}

// Token returns the session's anti-forgery token, generating and storing a
// fresh one if the session has none. The value is crypto-random and
// URL-safe so it can be embedded in form fields and links.
func (s *Session) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		token, err := generateToken(32)
		if err != nil {
			return "", fmt.Errorf("generating token: %w", err)
		}
		s.token = token
	}
	return s.token, nil
}

// RotateToken discards the current token and issues a new one. Called on
// every successful login so a pre-login token cannot authorize post-login
// mutations.
func (s *Session) RotateToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, err := generateToken(32)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	s.token = token
	return token, nil
}

// ValidateToken succeeds only when the session holds a token and submitted
// matches it exactly. The comparison is constant-time; token equality must
// not become a timing oracle.
func (s *Session) ValidateToken(submitted string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || submitted == "" {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(s.token), []byte(submitted)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// generateToken produces a URL-safe token from n crypto-random bytes.
func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
