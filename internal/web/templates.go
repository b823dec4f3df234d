// ABOUTME: Template rendering for the public site and admin pages
// ABOUTME: Drains session alerts into each render and converts markdown

package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/2389/wisp-cms/internal/session"
	"github.com/2389/wisp-cms/internal/store"
)

// Template data types
type pageData struct {
	Title       string
	SiteTitle   string
	Description string
	Keywords    string
	Content     template.HTML
	Slug        string
	LoggedIn    bool
	Alerts      []alertItem
}

type loginData struct {
	Title       string
	SiteTitle   string
	Description string
	Keywords    string
	LoginSlug   string
	Token       string
	Alerts      []alertItem
}

type settingsData struct {
	Title       string
	SiteTitle   string
	Description string
	Keywords    string
	Token       string
	Pages       []string
	Alerts      []alertItem
}

type alertItem struct {
	Severity string
	Message  template.HTML
}

// drainAlerts consumes the session's queued alerts in display order:
// danger first, then success, then everything else.
func drainAlerts(sess *session.Session) []alertItem {
	taken := sess.TakeAlerts()

	var items []alertItem
	for _, severity := range []string{session.SeverityDanger, session.SeveritySuccess, session.SeverityInfo} {
		for _, a := range taken[severity] {
			items = append(items, alertItem{Severity: severity, Message: template.HTML(a.Message)})
		}
		delete(taken, severity)
	}
	for severity, queue := range taken {
		for _, a := range queue {
			items = append(items, alertItem{Severity: severity, Message: template.HTML(a.Message)})
		}
	}
	return items
}

// siteTitle resolves the configured site title, defaulting when unset.
func (h *Handler) siteTitle() string {
	title, err := h.store.GetString(store.SectionConfig, store.KeySiteTitle)
	if err != nil {
		return "Website"
	}
	return title
}

// renderMarkdown converts stored page content to HTML.
func (h *Handler) renderMarkdown(content string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		h.logger.Error("failed to convert markdown", "error", err)
		return template.HTML("<p>Failed to render content.</p>")
	}
	return template.HTML(buf.String())
}

// renderPage renders a stored page.
func (h *Handler) renderPage(w http.ResponseWriter, sess *session.Session, slug string, page *store.Page) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/page.html"))

	data := pageData{
		Title:       page.Title,
		SiteTitle:   h.siteTitle(),
		Description: page.Description,
		Keywords:    page.Keywords,
		Content:     h.renderMarkdown(page.Content),
		Slug:        slug,
		LoggedIn:    sess.IsLoggedIn(),
		Alerts:      drainAlerts(sess),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render page", "slug", slug, "error", err)
	}
}

// renderLoginPage renders the login form served at the secret slug.
func (h *Handler) renderLoginPage(w http.ResponseWriter, sess *session.Session, loginSlug, token string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/login.html"))

	data := loginData{
		Title:     "Login",
		SiteTitle: h.siteTitle(),
		LoginSlug: loginSlug,
		Token:     token,
		Alerts:    drainAlerts(sess),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render login page", "error", err)
	}
}

// renderSettings renders the admin settings page.
func (h *Handler) renderSettings(w http.ResponseWriter, sess *session.Session, token string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/settings.html"))

	pages, err := h.store.Keys(store.SectionPages)
	if err != nil {
		h.logger.Error("failed to list pages", "error", err)
	}

	data := settingsData{
		Title:     "Settings",
		SiteTitle: h.siteTitle(),
		Token:     token,
		Pages:     pages,
		Alerts:    drainAlerts(sess),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render settings page", "error", err)
	}
}

// renderNotFound renders the 404 page.
func (h *Handler) renderNotFound(w http.ResponseWriter, sess *session.Session) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/page.html"))

	data := pageData{
		Title:     "Page not found",
		SiteTitle: h.siteTitle(),
		Content:   template.HTML("<p>Sorry, this page does not exist.</p>"),
		LoggedIn:  sess.IsLoggedIn(),
		Alerts:    drainAlerts(sess),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render 404 page", "error", err)
	}
}
