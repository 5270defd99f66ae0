package models

import "time"

// Session kinds stored in the active_sessions table.
const (
	SessionKindSession = "session"
	SessionKindCookie  = "cookie"
)

// User represents an account in the system. Locked is true from registration
// until the activation key is consumed, and again after too many failed logins.
// ActivationKey is empty once consumed.
type User struct {
	ID            int64
	Name          string
	Email         string
	PasswordHash  string
	JoinedAt      time.Time
	Locked        bool
	ActivationKey string
}

// ActiveSession represents one authenticated session row. Session-kind rows
// are bound to the server-side session ID; cookie-kind rows carry a fresh
// long-lived token handed to the client.
type ActiveSession struct {
	UserID    int64
	Token     string
	Kind      string
	CreatedAt time.Time
}

// LoginAttempt tracks consecutive failed logins for an account.
type LoginAttempt struct {
	UserID   int64
	Attempts int
}
