// ABOUTME: HTTP shell for wisp-cms: route registration and request handling
// ABOUTME: Bridges cookies/forms to the auth controller, sessions, and store

package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/2389/wisp-cms/internal/auth"
	"github.com/2389/wisp-cms/internal/session"
	"github.com/2389/wisp-cms/internal/store"
)

// Handler serves the public site and the admin surface.
type Handler struct {
	store    *store.Store
	sessions *session.Manager
	auth     *auth.Controller
	logger   *slog.Logger
}

// New creates the HTTP handler over the given collaborators.
func New(st *store.Store, sessions *session.Manager, ctrl *auth.Controller) *Handler {
	return &Handler{
		store:    st,
		sessions: sessions,
		auth:     ctrl,
		logger:   slog.Default().With("component", "web"),
	}
}

// RegisterRoutes registers all routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handlePage)
	mux.HandleFunc("GET /{page}", h.handlePage)
	mux.HandleFunc("POST /{page}", h.handleMutation)

	mux.HandleFunc("GET /settings", h.requireAuth(h.handleSettings))
	mux.HandleFunc("POST /settings/password", h.requireAuth(h.handleChangePassword))
	mux.HandleFunc("POST /settings/page", h.requireAuth(h.handleSavePage))

	h.logger.Info("routes registered")
}

// requireAuth wraps a handler to require an authenticated session.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.sessions.FromRequest(w, r)
		if err != nil || !sess.IsLoggedIn() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// redirector adapts the auth controller's redirect collaborator to an HTTP
// response. Fired reports whether the controller handed control back.
type redirector struct {
	w     http.ResponseWriter
	r     *http.Request
	fired bool
}

func (rd *redirector) Redirect(target string) {
	rd.fired = true
	http.Redirect(rd.w, rd.r, "/"+target, http.StatusSeeOther)
}

// loginSlug resolves the configured secret login page address.
func (h *Handler) loginSlug() (string, error) {
	return h.store.GetString(store.SectionConfig, store.KeyLogin)
}

// handlePage renders the login form when the path matches the secret login
// slug, and a stored page otherwise.
func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("page")
	if slug == "" {
		slug = store.DefaultHomeSlug
	}

	sess, err := h.sessions.FromRequest(w, r)
	if err != nil {
		h.logger.Error("failed to resolve session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	loginSlug, err := h.loginSlug()
	if err != nil {
		h.logger.Error("failed to read login slug", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if slug == loginSlug {
		token, err := sess.Token()
		if err != nil {
			h.logger.Error("failed to issue token", "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		h.renderLoginPage(w, sess, loginSlug, token)
		return
	}

	page, err := h.store.Page(slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.renderNotFound(w, sess)
			return
		}
		h.logger.Error("failed to load page", "slug", slug, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	h.renderPage(w, sess, slug, page)
}

// handleMutation dispatches POSTs addressed to the login slug or the
// logout route through the auth controller. The controller decides whether
// anything happens; if it never redirects, the request falls through to a
// page render.
func (h *Handler) handleMutation(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("page")

	sess, err := h.sessions.FromRequest(w, r)
	if err != nil {
		h.logger.Error("failed to resolve session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	req := auth.Request{
		Method:      r.Method,
		CurrentPage: slug,
		Password:    r.PostFormValue("password"),
		Token:       formToken(r),
	}

	rd := &redirector{w: w, r: r}

	switch slug {
	case auth.LogoutPage:
		h.auth.Logout(sess, rd, req)
		if !rd.fired {
			// Refused logout: the session stays authenticated.
			http.Redirect(w, r, "/", http.StatusSeeOther)
		}
		return
	default:
		h.auth.Login(sess, rd, req)
		if rd.fired {
			return
		}
	}

	// Not a recognized mutation target.
	h.renderNotFound(w, sess)
}

// handleSettings renders the admin settings page.
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.FromRequest(w, r)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	token, err := sess.Token()
	if err != nil {
		h.logger.Error("failed to issue token", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	h.renderSettings(w, sess, token)
}

// handleChangePassword runs the password-change transition.
func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.FromRequest(w, r)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	req := auth.Request{
		Method:      r.Method,
		CurrentPage: "settings",
		OldPassword: r.PostFormValue("old_password"),
		NewPassword: r.PostFormValue("new_password"),
		Token:       formToken(r),
	}

	rd := &redirector{w: w, r: r}
	h.auth.ChangePassword(sess, rd, req)
	if !rd.fired {
		http.Redirect(w, r, "/settings", http.StatusSeeOther)
	}
}

// handleSavePage persists edits to a page's content. Token-gated like every
// other mutation.
func (h *Handler) handleSavePage(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.FromRequest(w, r)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	if err := sess.ValidateToken(formToken(r)); err != nil {
		h.logger.Warn("page save refused", "reason", "invalid token")
		http.Redirect(w, r, "/settings", http.StatusSeeOther)
		return
	}

	slug := r.PostFormValue("slug")
	if slug == "" {
		http.Error(w, "Page slug required", http.StatusBadRequest)
		return
	}

	page := &store.Page{
		Title:       r.PostFormValue("title"),
		Keywords:    r.PostFormValue("keywords"),
		Description: r.PostFormValue("description"),
		Content:     r.PostFormValue("content"),
	}
	if page.Title == "" {
		page.Title = slug
	}

	if err := h.store.SetPage(slug, page); err != nil {
		h.logger.Error("failed to save page", "slug", slug, "error", err)
		sess.AddAlert(session.SeverityDanger, "Could not save page.")
		http.Redirect(w, r, "/settings", http.StatusSeeOther)
		return
	}

	sess.AddAlert(session.SeveritySuccess, "Page saved.")
	http.Redirect(w, r, "/"+slug, http.StatusSeeOther)
}

// formToken extracts the submitted anti-forgery token from form or header.
func formToken(r *http.Request) string {
	token := r.PostFormValue("token")
	if token == "" {
		token = r.Header.Get("X-CSRF-Token")
	}
	return token
}
