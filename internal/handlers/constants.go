package handlers

import "accounthub/internal/session"

const (
	SessionCookieName  = session.CookieName
	UserIDCookieName   = "u_id"
	RememberCookieName = "remember_token"

	CSRFFieldName = "csrf_token"

	ErrUnauthorized        = "Unauthorized"
	ErrForbidden           = "Forbidden"
	ErrTooManyRequests     = "Too many requests"
	ErrInternalServerError = "Internal server error"
)

// Session keys for flash messages and the reset-flow markers.
const (
	flashLoginAlert      = "login_alert"
	flashLoginError      = "login_error"
	flashRegisterError   = "register_error"
	flashRegisterSuccess = "register_success"
	flashResetAlert      = "reset_alert"

	sessValidResetKey = "valid_reset_request"
	sessResetEmailKey = "reset_email"
)
