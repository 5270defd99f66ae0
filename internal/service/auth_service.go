package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"accounthub/internal/models"
	"accounthub/internal/security"
	"accounthub/internal/session"
)

// Status is the outcome of an auth operation. Operations report outcomes as
// values, never as faults: store failures are logged and degrade to
// StatusFailure, indistinguishable from "not found" for the caller.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusMissingArgs
	StatusAccountExists
	StatusLocked
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusMissingArgs:
		return "missing arguments"
	case StatusAccountExists:
		return "account exists"
	case StatusLocked:
		return "locked"
	}
	return "unknown"
}

// userIDKey is the server-side session key holding the logged-in user ID
// for session-kind logins.
const userIDKey = "user_id"

// maxKeyAttempts bounds the activation-key regenerate-on-collision loop.
const maxKeyAttempts = 10

// UserStore is the persistence surface the auth service needs. Implemented
// by repository.UserRepository; tests substitute an in-memory store.
type UserStore interface {
	CreateUser(name, email, passwordHash, activationKey string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id int64) (*models.User, error)
	EmailExists(email string) (bool, error)
	ActivationKeyExists(key string) (bool, error)
	SetActivationKey(email, key string) error
	Unlock(email, key string) (bool, error)
	UpdatePassword(email, passwordHash string) error
	LockUser(userID int64) error
	CreateSession(userID int64, token, kind string) error
	GetSession(userID int64, token, kind string) (*models.ActiveSession, error)
	DeleteSession(userID int64, token, kind string) error
	DeleteExpiredCookieSessions(cutoff time.Time) error
	IncrementLoginAttempts(userID int64) (int, error)
	DeleteLoginAttempts(userID int64) error
}

// Mailer sends outbound mail. Implemented by EmailService.
type Mailer interface {
	Send(ctx context.Context, toName, toEmail, subject, htmlBody, textBody string) error
}

// RememberGrant is handed to the handler after a remembered login; the
// handler sets the u_id and remember-token cookie pair from it.
type RememberGrant struct {
	UserID    int64
	Token     string
	ExpiresAt time.Time
}

// AuthService handles registration, login, lockout tracking, session
// checks and the password reset key lifecycle.
type AuthService struct {
	store            UserStore
	mailer           Mailer
	secret           []byte
	appBaseURL       string
	appName          string
	maxLoginAttempts int
	rememberDuration time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(store UserStore, mailer Mailer, secret, appBaseURL, appName string, maxLoginAttempts int, rememberDuration time.Duration) *AuthService {
	return &AuthService{
		store:            store,
		mailer:           mailer,
		secret:           []byte(secret),
		appBaseURL:       appBaseURL,
		appName:          appName,
		maxLoginAttempts: maxLoginAttempts,
		rememberDuration: rememberDuration,
	}
}

// Register creates a new locked account and sends the activation email.
// The account stays locked until the emailed key is consumed via Unlock.
// A failed activation mail reports StatusFailure; the row is kept, and the
// password reset flow can re-issue a key for it later.
func (s *AuthService) Register(ctx context.Context, name, email, password string) Status {
	if name == "" || email == "" || password == "" {
		return StatusMissingArgs
	}

	exists, err := s.store.EmailExists(email)
	if err != nil {
		log.Printf("register: email check failed: %v", err)
		return StatusFailure
	}
	if exists {
		return StatusAccountExists
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		log.Printf("register: password hash failed: %v", err)
		return StatusFailure
	}

	key, err := s.newActivationKey()
	if err != nil {
		log.Printf("register: activation key generation failed: %v", err)
		return StatusFailure
	}

	user, err := s.store.CreateUser(name, email, passwordHash, key)
	if err != nil {
		log.Printf("register: create user failed: %v", err)
		return StatusFailure
	}

	subject, htmlBody, textBody := s.activationMail(user.Name, user.Email, key)
	if err := s.mailer.Send(ctx, user.Name, user.Email, subject, htmlBody, textBody); err != nil {
		log.Printf("register: activation email failed for %s: %v", user.Email, err)
		return StatusFailure
	}

	return StatusSuccess
}

// Login authenticates the email/password pair. A locked account returns
// StatusLocked before any password check. On success exactly one active
// session row is created: session-kind bound to the server session when
// remember is false, cookie-kind with a fresh long-lived token otherwise
// (the returned grant carries the signed cookie value). On a wrong password
// the attempt counter is bumped and the account locks at the ceiling.
func (s *AuthService) Login(sess *session.Session, email, password string, remember bool) (Status, *RememberGrant) {
	if email == "" || password == "" {
		return StatusMissingArgs, nil
	}

	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		log.Printf("login: user lookup failed: %v", err)
		return StatusFailure, nil
	}
	if user == nil {
		// No attempt counter for unknown emails
		return StatusFailure, nil
	}

	if user.Locked {
		return StatusLocked, nil
	}

	if !security.CheckPassword(password, user.PasswordHash) {
		s.recordFailedAttempt(user.ID)
		return StatusFailure, nil
	}

	if !remember {
		if err := s.store.CreateSession(user.ID, sess.ID(), models.SessionKindSession); err != nil {
			log.Printf("login: create session failed: %v", err)
			return StatusFailure, nil
		}
		sess.Set(userIDKey, user.ID)
		return StatusSuccess, nil
	}

	token := security.GenerateSessionID()
	if err := s.store.CreateSession(user.ID, token, models.SessionKindCookie); err != nil {
		log.Printf("login: create cookie session failed: %v", err)
		return StatusFailure, nil
	}

	signed, err := security.SignRememberToken(s.secret, user.ID, token, s.rememberDuration)
	if err != nil {
		log.Printf("login: remember token signing failed: %v", err)
		_ = s.store.DeleteSession(user.ID, token, models.SessionKindCookie)
		return StatusFailure, nil
	}

	return StatusSuccess, &RememberGrant{
		UserID:    user.ID,
		Token:     signed,
		ExpiresAt: time.Now().Add(s.rememberDuration),
	}
}

// recordFailedAttempt bumps the attempt counter and locks the account when
// the counter reaches the ceiling. Locking is permanent until a keyed unlock.
func (s *AuthService) recordFailedAttempt(userID int64) {
	attempts, err := s.store.IncrementLoginAttempts(userID)
	if err != nil {
		log.Printf("login: attempt counter failed: %v", err)
		return
	}
	if attempts >= s.maxLoginAttempts {
		if err := s.store.LockUser(userID); err != nil {
			log.Printf("login: lock user failed: %v", err)
		}
	}
}

// Logout deletes the active session row matching the identity actually
// presented, session token first, cookie pair otherwise. Returns true when
// the remembered-login cookie pair was presented: it gets expired
// client-side even when it no longer validates, so dead cookies are not
// re-presented forever.
func (s *AuthService) Logout(sess *session.Session, cookieUID, cookieToken string) bool {
	expireCookies := cookieUID != "" && cookieToken != ""

	if uid, ok := sess.GetInt64(userIDKey); ok {
		if err := s.store.DeleteSession(uid, sess.ID(), models.SessionKindSession); err != nil {
			log.Printf("logout: delete session failed: %v", err)
		}
		sess.Delete(userIDKey)
		return expireCookies
	}

	if uid, token, ok := s.cookieIdentity(cookieUID, cookieToken); ok {
		if err := s.store.DeleteSession(uid, token, models.SessionKindCookie); err != nil {
			log.Printf("logout: delete cookie session failed: %v", err)
		}
	}
	return expireCookies
}

// LoginCheck reports whether the presented identity corresponds to an
// active session row. Client-side values are never trusted on their own;
// every check round-trips to the store.
func (s *AuthService) LoginCheck(sess *session.Session, cookieUID, cookieToken string) bool {
	uid, token, kind, ok := s.identify(sess, cookieUID, cookieToken)
	if !ok {
		return false
	}
	row, err := s.store.GetSession(uid, token, kind)
	if err != nil {
		log.Printf("login check: session lookup failed: %v", err)
		return false
	}
	return row != nil
}

// CurrentUser resolves the logged-in user from the session or cookie
// identity, revalidating against the store.
func (s *AuthService) CurrentUser(sess *session.Session, cookieUID, cookieToken string) (*models.User, bool) {
	uid, token, kind, ok := s.identify(sess, cookieUID, cookieToken)
	if !ok {
		return nil, false
	}
	row, err := s.store.GetSession(uid, token, kind)
	if err != nil || row == nil {
		return nil, false
	}
	user, err := s.store.GetUserByID(uid)
	if err != nil || user == nil {
		return nil, false
	}
	return user, true
}

// Email resolves the current identity's email address.
func (s *AuthService) Email(sess *session.Session, cookieUID, cookieToken string) (string, bool) {
	user, ok := s.CurrentUser(sess, cookieUID, cookieToken)
	if !ok {
		return "", false
	}
	return user.Email, true
}

// identify resolves the presented identity: the in-memory session token
// takes priority, the cookie pair is the fallback.
func (s *AuthService) identify(sess *session.Session, cookieUID, cookieToken string) (int64, string, string, bool) {
	if uid, ok := sess.GetInt64(userIDKey); ok {
		return uid, sess.ID(), models.SessionKindSession, true
	}
	uid, token, ok := s.cookieIdentity(cookieUID, cookieToken)
	if !ok {
		return 0, "", "", false
	}
	return uid, token, models.SessionKindCookie, true
}

// cookieIdentity validates the remembered-login cookie pair: the token
// cookie must carry a validly signed wrapper whose subject matches the
// plain u_id cookie.
func (s *AuthService) cookieIdentity(cookieUID, cookieToken string) (int64, string, bool) {
	if cookieUID == "" || cookieToken == "" {
		return 0, "", false
	}
	uid, token, err := security.ParseRememberToken(s.secret, cookieToken)
	if err != nil {
		return 0, "", false
	}
	claimed, err := strconv.ParseInt(cookieUID, 10, 64)
	if err != nil || claimed != uid {
		return 0, "", false
	}
	return uid, token, true
}

// Unlock clears the locked flag and consumes the activation key iff email
// and key match exactly one row. Consuming the key invalidates reuse. A
// successful unlock also clears the failed-attempt counter.
func (s *AuthService) Unlock(email, key string) bool {
	if email == "" || key == "" {
		return false
	}
	ok, err := s.store.Unlock(email, key)
	if err != nil {
		log.Printf("unlock: %v", err)
		return false
	}
	if !ok {
		return false
	}

	if user, err := s.store.GetUserByEmail(email); err == nil && user != nil {
		if err := s.store.DeleteLoginAttempts(user.ID); err != nil {
			log.Printf("unlock: attempt counter reset failed: %v", err)
		}
	}
	return true
}

// ValidResetRequest checks a password-reset key. The key check is the same
// keyed unlock, so a valid reset request also consumes the key.
func (s *AuthService) ValidResetRequest(email, key string) bool {
	return s.Unlock(email, key)
}

// EmailResetRequest issues a fresh one-time key for the account and mails a
// reset link. Unknown emails are silently ignored so the endpoint does not
// reveal which addresses have accounts.
func (s *AuthService) EmailResetRequest(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil
	}

	key, err := s.newActivationKey()
	if err != nil {
		return fmt.Errorf("failed to generate reset key: %w", err)
	}
	if err := s.store.SetActivationKey(email, key); err != nil {
		return fmt.Errorf("failed to store reset key: %w", err)
	}

	subject, htmlBody, textBody := s.resetMail(email, key)
	if err := s.mailer.Send(ctx, user.Name, email, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

// ResetPassword re-hashes and stores the new password. The handler only
// calls this after a valid reset request marked the session.
func (s *AuthService) ResetPassword(email, newPassword string) Status {
	if email == "" || newPassword == "" {
		return StatusMissingArgs
	}
	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		log.Printf("reset password: hash failed: %v", err)
		return StatusFailure
	}
	if err := s.store.UpdatePassword(email, passwordHash); err != nil {
		log.Printf("reset password: update failed: %v", err)
		return StatusFailure
	}
	return StatusSuccess
}

// CleanupExpiredCookieSessions removes cookie-kind session rows older than
// the remember duration.
func (s *AuthService) CleanupExpiredCookieSessions() error {
	return s.store.DeleteExpiredCookieSessions(time.Now().Add(-s.rememberDuration))
}

// newActivationKey generates a key that is unique store-wide at issuance
// time, regenerating on collision.
func (s *AuthService) newActivationKey() (string, error) {
	for i := 0; i < maxKeyAttempts; i++ {
		key, err := security.GenerateActivationKey()
		if err != nil {
			return "", err
		}
		exists, err := s.store.ActivationKeyExists(key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique activation key")
}

func (s *AuthService) activationMail(name, email, key string) (subject, htmlBody, textBody string) {
	link := fmt.Sprintf("%s/unlock?email=%s&key=%s", s.appBaseURL, url.QueryEscape(email), url.QueryEscape(key))

	subject = fmt.Sprintf("Welcome to %s!", s.appName)
	htmlBody = fmt.Sprintf(`<p>Hi %s,</p>
<p>Your email was used to create a new account in <a href="%s" target="_blank">%s</a>.
If this was really you, please verify your account by following the link below:</p>
<p><a href="%s" target="_blank">%s</a></p>
<p>Thanks for creating an account with us.</p>`, name, s.appBaseURL, s.appName, link, link)
	textBody = fmt.Sprintf(`Hi %s,

Your email was used to create a new account in %s.
If this was really you, please verify your account by following the link below:

%s

Thanks for creating an account with us.
`, name, s.appName, link)
	return subject, htmlBody, textBody
}

func (s *AuthService) resetMail(email, key string) (subject, htmlBody, textBody string) {
	link := fmt.Sprintf("%s/reset_pass?email=%s&key=%s", s.appBaseURL, url.QueryEscape(email), url.QueryEscape(key))

	subject = fmt.Sprintf("%s: Password reset request", s.appName)
	htmlBody = fmt.Sprintf(`<p>You have requested a password reset. If this is really you, please follow the link below:</p>
<p><a href="%s" target="_blank">%s</a> (this is a one-time link)</p>
<p>Please disregard this email if you didn't request the reset.</p>`, link, link)
	textBody = fmt.Sprintf(`You have requested a password reset. If this is really you, please follow the link below:

%s

This is a one-time link. Please disregard this email if you didn't request the reset.
`, link)
	return subject, htmlBody, textBody
}
