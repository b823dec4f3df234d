// ABOUTME: Tests for the login/logout/password-change state machine
// ABOUTME: Covers alert emission, token gating, and hash overwrite semantics

package auth

import (
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/wisp-cms/internal/session"
	"github.com/2389/wisp-cms/internal/store"
)

const testPassword = "testPass"
const testRootDir = "/srv/test-site"

// stubRedirector records redirect targets instead of touching HTTP.
type stubRedirector struct {
	targets []string
}

func (r *stubRedirector) Redirect(target string) {
	r.targets = append(r.targets, target)
}

// newTestController builds a controller over a fresh store whose password
// is the known test secret.
func newTestController(t *testing.T) (*Controller, *store.Store, string) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, st.Set(store.SectionConfig, store.KeyPassword, string(hash)))

	loginSlug, err := st.GetString(store.SectionConfig, store.KeyLogin)
	require.NoError(t, err)

	return New(st, testRootDir), st, loginSlug
}

func TestLogin_WrongPassword(t *testing.T) {
	ctrl, _, loginSlug := newTestController(t)
	sess := session.New()
	rd := &stubRedirector{}

	ctrl.Login(sess, rd, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    "wrongPass",
	})

	assert.False(t, sess.IsLoggedIn())
	assert.Empty(t, sess.RootDir())

	danger := sess.Alerts(session.SeverityDanger)
	require.Len(t, danger, 1)
	assert.Equal(t, "Wrong password.", danger[0].Message)

	require.Len(t, rd.targets, 1)
	assert.Equal(t, loginSlug, rd.targets[0])
}

func TestLogin_CorrectPassword(t *testing.T) {
	ctrl, _, loginSlug := newTestController(t)
	sess := session.New()
	rd := &stubRedirector{}

	ctrl.Login(sess, rd, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    testPassword,
	})

	assert.True(t, sess.IsLoggedIn())
	assert.Equal(t, testRootDir, sess.RootDir())
	assert.Empty(t, sess.Alerts(session.SeverityDanger))

	token, err := sess.Token()
	require.NoError(t, err)
	assert.NotEmpty(t, token, "login must leave a retrievable token")
}

func TestLogin_RotatesToken(t *testing.T) {
	ctrl, _, loginSlug := newTestController(t)
	sess := session.New()

	preLogin, err := sess.Token()
	require.NoError(t, err)

	ctrl.Login(sess, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    testPassword,
	})

	assert.ErrorIs(t, sess.ValidateToken(preLogin), session.ErrInvalidToken,
		"pre-login token must not survive login")
}

func TestLogin_IgnoresNonPost(t *testing.T) {
	ctrl, _, loginSlug := newTestController(t)
	sess := session.New()
	rd := &stubRedirector{}

	ctrl.Login(sess, rd, Request{
		Method:      http.MethodGet,
		CurrentPage: loginSlug,
		Password:    testPassword,
	})

	assert.False(t, sess.IsLoggedIn())
	assert.Empty(t, rd.targets)
}

func TestLogin_IgnoresWrongPage(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	sess := session.New()
	rd := &stubRedirector{}

	ctrl.Login(sess, rd, Request{
		Method:      http.MethodPost,
		CurrentPage: "home",
		Password:    testPassword,
	})

	assert.False(t, sess.IsLoggedIn())
	assert.Empty(t, sess.Alerts(session.SeverityDanger))
	assert.Empty(t, rd.targets)
}

func TestLogout_ValidToken(t *testing.T) {
	ctrl, _, loginSlug := newTestController(t)
	sess := session.New()

	ctrl.Login(sess, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    testPassword,
	})
	require.True(t, sess.IsLoggedIn())

	token, err := sess.Token()
	require.NoError(t, err)

	rd := &stubRedirector{}
	ctrl.Logout(sess, rd, Request{
		CurrentPage: LogoutPage,
		Token:       token,
	})

	assert.False(t, sess.IsLoggedIn())
	assert.Empty(t, sess.RootDir())
	assert.ErrorIs(t, sess.ValidateToken(token), session.ErrInvalidToken,
		"logout must clear the token")
	require.Len(t, rd.targets, 1)
}

func TestLogout_InvalidToken(t *testing.T) {
	ctrl, _, loginSlug := newTestController(t)
	sess := session.New()

	ctrl.Login(sess, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    testPassword,
	})
	require.True(t, sess.IsLoggedIn())

	rd := &stubRedirector{}
	ctrl.Logout(sess, rd, Request{
		CurrentPage: LogoutPage,
		Token:       "forged",
	})

	assert.True(t, sess.IsLoggedIn(), "refused logout must leave the session authenticated")
	assert.Equal(t, testRootDir, sess.RootDir())
	assert.Empty(t, rd.targets)
}

func TestLogout_WrongPage(t *testing.T) {
	ctrl, _, loginSlug := newTestController(t)
	sess := session.New()

	ctrl.Login(sess, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    testPassword,
	})
	token, err := sess.Token()
	require.NoError(t, err)

	ctrl.Logout(sess, &stubRedirector{}, Request{
		CurrentPage: "home",
		Token:       token,
	})

	assert.True(t, sess.IsLoggedIn())
}

// loginFor runs a successful login and returns the session's token.
func loginFor(t *testing.T, ctrl *Controller, sess *session.Session, loginSlug string) string {
	t.Helper()
	ctrl.Login(sess, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    testPassword,
	})
	require.True(t, sess.IsLoggedIn())
	token, err := sess.Token()
	require.NoError(t, err)
	return token
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	ctrl, st, loginSlug := newTestController(t)
	sess := session.New()
	token := loginFor(t, ctrl, sess, loginSlug)
	before, err := st.GetString(store.SectionConfig, store.KeyPassword)
	require.NoError(t, err)

	ctrl.ChangePassword(sess, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		Token:       token,
		OldPassword: "wrongPass",
		NewPassword: "longEnoughPassword",
	})

	danger := sess.Alerts(session.SeverityDanger)
	require.Len(t, danger, 1)
	assert.Equal(t, "Wrong password.", danger[0].Message)

	after, err := st.GetString(store.SectionConfig, store.KeyPassword)
	require.NoError(t, err)
	assert.Equal(t, before, after, "refused change must not touch the stored hash")
}

func TestChangePassword_TooShort(t *testing.T) {
	ctrl, st, loginSlug := newTestController(t)
	sess := session.New()
	token := loginFor(t, ctrl, sess, loginSlug)
	before, err := st.GetString(store.SectionConfig, store.KeyPassword)
	require.NoError(t, err)

	ctrl.ChangePassword(sess, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		Token:       token,
		OldPassword: testPassword,
		NewPassword: "test",
	})

	danger := sess.Alerts(session.SeverityDanger)
	require.Len(t, danger, 1)
	assert.Contains(t, danger[0].Message, "longer than 8 characters")

	after, err := st.GetString(store.SectionConfig, store.KeyPassword)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Old password still works after the refused change.
	fresh := session.New()
	ctrl.Login(fresh, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    testPassword,
	})
	assert.True(t, fresh.IsLoggedIn())
}

func TestChangePassword_ExactMinimumRefused(t *testing.T) {
	ctrl, _, loginSlug := newTestController(t)
	sess := session.New()
	token := loginFor(t, ctrl, sess, loginSlug)

	// Exactly 8 characters: the new password must exceed the minimum.
	ctrl.ChangePassword(sess, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		Token:       token,
		OldPassword: testPassword,
		NewPassword: "12345678",
	})

	require.Len(t, sess.Alerts(session.SeverityDanger), 1)
}

func TestChangePassword_Success(t *testing.T) {
	ctrl, _, loginSlug := newTestController(t)
	sess := session.New()
	token := loginFor(t, ctrl, sess, loginSlug)

	ctrl.ChangePassword(sess, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		Token:       token,
		OldPassword: testPassword,
		NewPassword: "test123456789A",
	})

	assert.Empty(t, sess.Alerts(session.SeverityDanger))
	require.Len(t, sess.Alerts(session.SeveritySuccess), 1)
	assert.True(t, sess.IsLoggedIn(), "successful change keeps the session authenticated")

	// A later login with the old password must fail: the hash is gone.
	fresh := session.New()
	ctrl.Login(fresh, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    testPassword,
	})
	assert.False(t, fresh.IsLoggedIn())
	danger := fresh.Alerts(session.SeverityDanger)
	require.Len(t, danger, 1)
	assert.Equal(t, "Wrong password.", danger[0].Message)

	// And the new password works.
	next := session.New()
	ctrl.Login(next, &stubRedirector{}, Request{
		Method:      http.MethodPost,
		CurrentPage: loginSlug,
		Password:    "test123456789A",
	})
	assert.True(t, next.IsLoggedIn())
}

func TestChangePassword_InvalidToken(t *testing.T) {
	ctrl, st, loginSlug := newTestController(t)
	sess := session.New()
	loginFor(t, ctrl, sess, loginSlug)
	before, err := st.GetString(store.SectionConfig, store.KeyPassword)
	require.NoError(t, err)

	rd := &stubRedirector{}
	ctrl.ChangePassword(sess, rd, Request{
		Method:      http.MethodPost,
		Token:       "forged",
		OldPassword: testPassword,
		NewPassword: "test123456789A",
	})

	assert.Empty(t, rd.targets)
	assert.Empty(t, sess.Alerts(session.SeverityDanger))

	after, err := st.GetString(store.SectionConfig, store.KeyPassword)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
