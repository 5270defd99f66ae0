package handlers

import (
	"log"
	"net/http"
	"time"

	"accounthub/internal/security"
	"accounthub/internal/service"
	"accounthub/internal/session"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	sessions *session.Store
	auth     *service.AuthService
	limiter  *security.RateLimiter
	csrf     *security.CSRFGenerator
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(sessions *session.Store, auth *service.AuthService, limiter *security.RateLimiter, csrf *security.CSRFGenerator) *Middleware {
	return &Middleware{
		sessions: sessions,
		auth:     auth,
		limiter:  limiter,
		csrf:     csrf,
	}
}

// RequireAuth gates an action behind a live login. The presented identity is
// revalidated against the active session store on every request; stale
// cookies alone never pass.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := m.sessions.Open(w, r)
		uid, token := rememberCookies(r)

		sess.Lock()
		ok := m.auth.LoginCheck(sess, uid, token)
		sess.Unlock()

		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// RateLimit rejects clients that exceed the limiter's budget. Applied to the
// credential-bearing POST endpoints.
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.limiter.Allow(security.GetClientIP(r)) {
			respondWithError(w, http.StatusTooManyRequests, ErrTooManyRequests, nil)
			return
		}
		next(w, r)
	}
}

// CSRFProtect validates the form's CSRF token against the session before the
// action runs.
func (m *Middleware) CSRFProtect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := m.sessions.Open(w, r)
		if err := r.ParseForm(); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid form data", err)
			return
		}
		if !m.csrf.ValidateToken(sess.ID(), r.PostForm.Get(CSRFFieldName)) {
			respondWithError(w, http.StatusForbidden, ErrForbidden, nil)
			return
		}
		next(w, r)
	}
}

// Logging middleware logs HTTP requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// rememberCookies reads the remembered-login cookie pair, empty strings when
// either is missing.
func rememberCookies(r *http.Request) (uid, token string) {
	if c, err := r.Cookie(UserIDCookieName); err == nil {
		uid = c.Value
	}
	if c, err := r.Cookie(RememberCookieName); err == nil {
		token = c.Value
	}
	return uid, token
}
