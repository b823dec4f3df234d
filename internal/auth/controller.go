// ABOUTME: Auth controller: login, logout, and password-change state machine
// ABOUTME: Orchestrates the store, session tracker, and anti-forgery tokens

package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/wisp-cms/internal/session"
	"github.com/2389/wisp-cms/internal/store"
)

// LogoutPage is the fixed route slug that triggers logout.
const LogoutPage = "logout"

// MinPasswordLength is the length a new password must exceed.
const MinPasswordLength = 8

// User-facing alert messages. Credential failures always use the same
// generic message regardless of which field was wrong, so responses cannot
// be used as an oracle.
const (
	msgWrongPassword    = "Wrong password."
	msgPasswordTooShort = `Password must be longer than 8 characters. <a href="/settings#security"><b>Re-open security settings</b></a>`
	msgPasswordChanged  = "Password changed."
)

// dummyHash is a valid bcrypt hash compared against when no stored hash is
// available, so the miss path costs the same as a real comparison.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Request carries the request-boundary values this core consumes.
type Request struct {
	Method      string // HTTP method; mutations are gated to POST
	CurrentPage string // page slug the request addresses
	Password    string // submitted login secret
	OldPassword string // current secret during a password change
	NewPassword string // replacement secret during a password change
	Token       string // submitted anti-forgery token
}

// Redirector hands control back to the routing/presentation layer after a
// state-changing operation. Stubbed in tests.
type Redirector interface {
	Redirect(target string)
}

// RedirectFunc adapts a plain function to the Redirector interface.
type RedirectFunc func(target string)

// Redirect calls f.
func (f RedirectFunc) Redirect(target string) { f(target) }

// Controller performs the authentication state transitions. It holds no
// state of its own: every operation reads and writes through the store and
// the caller's session.
type Controller struct {
	store   *store.Store
	rootDir string
	logger  *slog.Logger
}

// New creates a controller scoped to rootDir, the install directory that
// successful logins record into the session.
func New(st *store.Store, rootDir string) *Controller {
	return &Controller{
		store:   st,
		rootDir: rootDir,
		logger:  slog.Default().With("component", "auth"),
	}
}

// Login attempts the Anonymous to Authenticated transition. The request
// must be a POST addressed to the configured secret login slug; anything
// else is ignored. A wrong secret queues the generic danger alert and
// leaves the session untouched.
func (c *Controller) Login(sess *session.Session, rd Redirector, req Request) {
	if req.Method != http.MethodPost {
		return
	}

	loginSlug, err := c.store.GetString(store.SectionConfig, store.KeyLogin)
	if err != nil || req.CurrentPage != loginSlug {
		return
	}

	hash, err := c.store.GetString(store.SectionConfig, store.KeyPassword)
	if err != nil {
		// Keep the work constant even when the stored hash is missing.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.Password))
		sess.AddAlert(session.SeverityDanger, msgWrongPassword)
		rd.Redirect(loginSlug)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		sess.AddAlert(session.SeverityDanger, msgWrongPassword)
		rd.Redirect(loginSlug)
		return
	}

	sess.SetLoggedIn(c.rootDir)
	if _, err := sess.RotateToken(); err != nil {
		c.logger.Error("failed to rotate token after login", "error", err)
	}

	c.logger.Info("admin login successful")
	rd.Redirect("")
}

// Logout clears the session, returning it to Anonymous. The request must
// address the logout route and carry the session's current token; an
// invalid token refuses the logout and leaves the session authenticated.
func (c *Controller) Logout(sess *session.Session, rd Redirector, req Request) {
	if req.CurrentPage != LogoutPage {
		return
	}

	if err := sess.ValidateToken(req.Token); err != nil {
		c.logger.Warn("logout refused", "reason", "invalid token")
		return
	}

	sess.Clear()
	rd.Redirect("")
}

// ChangePassword replaces the stored credential hash. The token is checked
// first, then the old password, then the new password's length; the first
// failing check queues an alert and aborts with no partial write. On
// success a fresh hash is persisted, so a later login with the old secret
// fails.
func (c *Controller) ChangePassword(sess *session.Session, rd Redirector, req Request) {
	if req.Method != http.MethodPost {
		return
	}

	if err := sess.ValidateToken(req.Token); err != nil {
		c.logger.Warn("password change refused", "reason", "invalid token")
		return
	}

	hash, err := c.store.GetString(store.SectionConfig, store.KeyPassword)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Error("failed to read password hash", "error", err)
		}
		hash = dummyHash
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.OldPassword)); err != nil {
		sess.AddAlert(session.SeverityDanger, msgWrongPassword)
		rd.Redirect("settings")
		return
	}

	if len(req.NewPassword) <= MinPasswordLength {
		sess.AddAlert(session.SeverityDanger, msgPasswordTooShort)
		rd.Redirect("settings")
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.logger.Error("failed to hash new password", "error", err)
		sess.AddAlert(session.SeverityDanger, "Could not change password.")
		rd.Redirect("settings")
		return
	}

	if err := c.store.Set(store.SectionConfig, store.KeyPassword, string(newHash)); err != nil {
		c.logger.Error("failed to persist new password", "error", err)
		sess.AddAlert(session.SeverityDanger, "Could not change password.")
		rd.Redirect("settings")
		return
	}

	c.logger.Info("admin password changed")
	sess.AddAlert(session.SeveritySuccess, msgPasswordChanged)
	rd.Redirect("settings")
}
