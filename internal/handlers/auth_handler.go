package handlers

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"accounthub/internal/params"
	"accounthub/internal/respond"
	"accounthub/internal/security"
	"accounthub/internal/service"
	"accounthub/internal/session"
)

// AuthHandler serves the account pages and endpoints. Every action follows
// the same dispatch shape: open and lock the session, filter the request
// parameters, build a composer, send it, then release the session and hand
// any deferred task to the worker.
type AuthHandler struct {
	auth      *service.AuthService
	sessions  *session.Store
	templates *template.Template
	worker    *respond.Worker
	csrf      *security.CSRFGenerator
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth *service.AuthService, sessions *session.Store, templates *template.Template, worker *respond.Worker, csrf *security.CSRFGenerator) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		sessions:  sessions,
		templates: templates,
		worker:    worker,
		csrf:      csrf,
	}
}

// view builds a composer rendering the named template.
func (h *AuthHandler) view(name string) *respond.Composer {
	return respond.New(respond.NewTemplateRenderer(h.templates, name))
}

// send finishes the request: flush the response, release the session lock,
// then hand the deferred task (if any) to the background worker. The order
// is fixed: the client must never wait on deferred work, and deferred work
// must never run under the session lock.
func (h *AuthHandler) send(w http.ResponseWriter, r *http.Request, sess *session.Session, c *respond.Composer) {
	if err := c.Send(w, r); err != nil {
		log.Printf("send failed for %s %s: %v", r.Method, r.URL.Path, err)
	}
	task := c.Task()
	sess.Unlock()
	if task != nil {
		h.worker.Submit(task)
	}
}

func formatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Home renders the landing page, or the login page for anonymous visitors.
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	uid, token := rememberCookies(r)
	sess.Lock()

	c := h.view("home.tmpl")
	email, ok := h.auth.Email(sess, uid, token)
	if !ok {
		c.Redirect("/login")
		h.send(w, r, sess, c)
		return
	}
	c.Set("Email", email)
	h.send(w, r, sess, c)
}

// LoginPage renders the combined login/register page with any pending flash
// messages.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	uid, token := rememberCookies(r)
	sess.Lock()

	c := h.view("login.tmpl")
	if h.auth.LoginCheck(sess, uid, token) {
		c.Redirect("/")
		h.send(w, r, sess, c)
		return
	}

	c.Set("LoginAlert", sess.PopString(flashLoginAlert))
	c.Set("LoginError", sess.PopString(flashLoginError))
	c.Set("RegisterError", sess.PopString(flashRegisterError))
	h.send(w, r, sess, c)
}

// Login handles the login form. Outcomes are carried to the login page as
// flash messages; a remembered login additionally sets the cookie pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	sess.Lock()

	p := params.Parse(r, params.Filter{
		"email":    params.Email,
		"password": params.String,
		"remember": params.Bool,
	})

	c := respond.New(nil)
	status, grant := h.auth.Login(sess, p.String("email"), p.String("password"), p.Bool("remember"))
	switch status {
	case service.StatusSuccess:
		if grant != nil {
			http.SetCookie(w, security.CreateSessionCookie(r, UserIDCookieName, formatUserID(grant.UserID), grant.ExpiresAt))
			http.SetCookie(w, security.CreateSessionCookie(r, RememberCookieName, grant.Token, grant.ExpiresAt))
		}
		c.Redirect("/")
	case service.StatusLocked:
		sess.Set(flashLoginError, "This account is locked. Check your email for the unlock link.")
		c.Redirect("/login")
	case service.StatusMissingArgs:
		sess.Set(flashLoginError, "Please fill in both email and password.")
		c.Redirect("/login")
	default:
		sess.Set(flashLoginError, "Wrong email or password.")
		c.Redirect("/login")
	}
	h.send(w, r, sess, c)
}

// Register handles the registration form.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	sess.Lock()

	p := params.Parse(r, params.Filter{
		"name":     params.HTML,
		"email":    params.Email,
		"password": params.String,
	})

	c := respond.New(nil)
	status := h.auth.Register(r.Context(), p.String("name"), p.String("email"), p.String("password"))
	switch status {
	case service.StatusSuccess:
		sess.Set(flashRegisterSuccess, p.String("email"))
		c.Redirect("/register_success")
	case service.StatusAccountExists:
		sess.Set(flashRegisterError, "An account with this email already exists.")
		c.Redirect("/login")
	case service.StatusMissingArgs:
		sess.Set(flashRegisterError, "Please fill in name, email and password.")
		c.Redirect("/login")
	default:
		sess.Set(flashRegisterError, "Could not create the account. Please try again later.")
		c.Redirect("/login")
	}
	h.send(w, r, sess, c)
}

// RegisterSuccess renders the post-registration page. The registered email
// is a one-shot session value; without it the visitor is bounced to login.
func (h *AuthHandler) RegisterSuccess(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	sess.Lock()

	email := sess.PopString(flashRegisterSuccess)
	if email == "" {
		c := respond.New(nil)
		c.Redirect("/login")
		h.send(w, r, sess, c)
		return
	}

	c := h.view("register_success.tmpl")
	c.Set("Email", email)
	h.send(w, r, sess, c)
}

// Logout ends whichever login identity the request presents and expires the
// remembered-login cookies when they were in play.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	uid, token := rememberCookies(r)
	sess.Lock()

	if h.auth.Logout(sess, uid, token) {
		http.SetCookie(w, security.CreateDeleteCookie(r, UserIDCookieName))
		http.SetCookie(w, security.CreateDeleteCookie(r, RememberCookieName))
	}

	c := respond.New(nil)
	c.Redirect("/login")
	h.send(w, r, sess, c)
}

// Unlock consumes an emailed activation key and unlocks the account.
func (h *AuthHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	sess.Lock()

	p := params.Parse(r, params.Filter{
		"email": params.Email,
		"key":   params.String,
	})

	c := h.view("unlock.tmpl")
	c.Set("Success", h.auth.Unlock(p.String("email"), p.String("key")))
	h.send(w, r, sess, c)
}

// ResetPasswordPage renders the password reset flow. Without a key it shows
// the request form; with a valid emailed key it marks the session and shows
// the new-password form.
func (h *AuthHandler) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	sess.Lock()

	p := params.Parse(r, params.Filter{
		"email": params.Email,
		"key":   params.String,
	})

	c := h.view("reset_pass.tmpl")
	c.Set("Alert", sess.PopString(flashResetAlert))

	// Both forms on the page post to the protected endpoint.
	c.Set("CSRFToken", h.csrf.Token(sess.ID()))

	if p.Has("email") && p.String("key") != "" {
		if h.auth.ValidResetRequest(p.String("email"), p.String("key")) {
			// The key is consumed; the session marker carries the grant to
			// the POST.
			sess.Set(sessValidResetKey, true)
			sess.Set(sessResetEmailKey, p.String("email"))
			c.Set("ShowPasswordForm", true)
			c.Set("Email", p.String("email"))
		} else {
			c.Set("InvalidKey", true)
		}
	}
	h.send(w, r, sess, c)
}

// ResetPassword handles both halves of the reset flow's POST. An empty
// password means "send me a reset link": the mail goes out as a deferred
// task so the response never waits on SES. A non-empty password stores the
// new password, but only when the session carries a valid reset grant.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	sess.Lock()

	p := params.Parse(r, params.Filter{
		"email":    params.Email,
		"password": params.String,
	})

	c := respond.New(nil)
	if p.String("password") == "" {
		if p.Has("email") {
			email := p.String("email")
			c.PostProcess(func(ctx context.Context) {
				if err := h.auth.EmailResetRequest(ctx, email); err != nil {
					log.Printf("reset request for %s: %v", email, err)
				}
			})
		}
		// Same response whether or not the address has an account
		sess.Set(flashResetAlert, "If the address has an account, a reset link is on its way.")
		c.Redirect("/reset_pass")
		h.send(w, r, sess, c)
		return
	}

	valid, _ := sess.Get(sessValidResetKey)
	email := sess.GetString(sessResetEmailKey)
	if valid != true || email == "" {
		sess.Set(flashResetAlert, "This reset link is no longer valid. Please request a new one.")
		c.Redirect("/reset_pass")
		h.send(w, r, sess, c)
		return
	}
	sess.Delete(sessValidResetKey)
	sess.Delete(sessResetEmailKey)

	if h.auth.ResetPassword(email, p.String("password")) == service.StatusSuccess {
		sess.Set(flashLoginAlert, "Your password has been updated. Please log in.")
		c.Redirect("/login")
	} else {
		sess.Set(flashResetAlert, "Could not update the password. Please request a new link.")
		c.Redirect("/reset_pass")
	}
	h.send(w, r, sess, c)
}

// SessionInfo reports the login state of the presented identity as JSON.
func (h *AuthHandler) SessionInfo(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	uid, token := rememberCookies(r)
	sess.Lock()

	c := respond.New(nil)
	c.JSON()
	if email, ok := h.auth.Email(sess, uid, token); ok {
		c.Set("logged_in", true)
		c.Set("email", email)
	} else {
		c.Set("logged_in", false)
	}
	h.send(w, r, sess, c)
}

// Account renders the account page for the logged-in user. Routed behind
// RequireAuth.
func (h *AuthHandler) Account(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Open(w, r)
	uid, token := rememberCookies(r)
	sess.Lock()

	user, ok := h.auth.CurrentUser(sess, uid, token)
	if !ok {
		c := respond.New(nil)
		c.Redirect("/login")
		h.send(w, r, sess, c)
		return
	}

	c := h.view("account.tmpl")
	c.Set("Name", user.Name)
	c.Set("Email", user.Email)
	c.Set("JoinedAt", user.JoinedAt.Format("2 January 2006"))
	h.send(w, r, sess, c)
}
