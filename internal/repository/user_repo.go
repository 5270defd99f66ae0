package repository

import (
	"database/sql"
	"fmt"
	"time"

	"accounthub/internal/database"
	"accounthub/internal/models"
)

// UserRepository handles database operations for users, active sessions and
// login attempt counters
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new user. Accounts start locked and hold the
// activation key until it is consumed.
func (r *UserRepository) CreateUser(name, email, passwordHash, activationKey string) (*models.User, error) {
	now := time.Now()
	query := `
		INSERT INTO users (name, email, password_hash, joined_at, locked, activation_key)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(query, name, email, passwordHash, now, true, activationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &models.User{
		ID:            id,
		Name:          name,
		Email:         email,
		PasswordHash:  passwordHash,
		JoinedAt:      now,
		Locked:        true,
		ActivationKey: activationKey,
	}, nil
}

// GetUserByEmail retrieves a user by email address
func (r *UserRepository) GetUserByEmail(email string) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, joined_at, locked, COALESCE(activation_key, '')
		FROM users
		WHERE email = ?
	`
	return r.scanUser(r.db.QueryRow(query, email))
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(id int64) (*models.User, error) {
	query := `
		SELECT id, name, email, password_hash, joined_at, locked, COALESCE(activation_key, '')
		FROM users
		WHERE id = ?
	`
	return r.scanUser(r.db.QueryRow(query, id))
}

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.JoinedAt,
		&user.Locked,
		&user.ActivationKey,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// EmailExists reports whether a user row exists for the email
func (r *UserRepository) EmailExists(email string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM users WHERE email = ?"
	if err := r.db.QueryRow(query, email).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return count > 0, nil
}

// ActivationKeyExists reports whether the key is already issued to any user.
// Used by the regenerate-on-collision loop at key issuance.
func (r *UserRepository) ActivationKeyExists(key string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM users WHERE activation_key = ?"
	if err := r.db.QueryRow(query, key).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check activation key: %w", err)
	}
	return count > 0, nil
}

// SetActivationKey issues a new activation/reset key for the email
func (r *UserRepository) SetActivationKey(email, key string) error {
	query := "UPDATE users SET activation_key = ? WHERE email = ?"
	if _, err := r.db.Exec(query, key, email); err != nil {
		return fmt.Errorf("failed to set activation key: %w", err)
	}
	return nil
}

// Unlock clears the locked flag and consumes the activation key iff both
// email and key match exactly one row. Returns whether a row was unlocked.
func (r *UserRepository) Unlock(email, key string) (bool, error) {
	query := `
		UPDATE users
		SET locked = ?, activation_key = ''
		WHERE email = ? AND activation_key = ? AND activation_key <> ''
	`
	result, err := r.db.Exec(query, false, email, key)
	if err != nil {
		return false, fmt.Errorf("failed to unlock user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read unlock result: %w", err)
	}
	return rows == 1, nil
}

// UpdatePassword replaces the stored password hash for the email
func (r *UserRepository) UpdatePassword(email, passwordHash string) error {
	query := "UPDATE users SET password_hash = ? WHERE email = ?"
	result, err := r.db.Exec(query, passwordHash, email)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("password update affected %d rows", rows)
	}
	return nil
}

// LockUser sets the locked flag for the user
func (r *UserRepository) LockUser(userID int64) error {
	query := "UPDATE users SET locked = ? WHERE id = ?"
	if _, err := r.db.Exec(query, true, userID); err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

// DeleteUser deletes a user and all associated data via cascading foreign keys
func (r *UserRepository) DeleteUser(id int64) error {
	query := "DELETE FROM users WHERE id = ?"
	if _, err := r.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// CreateSession creates a new active session row of the given kind
func (r *UserRepository) CreateSession(userID int64, token, kind string) error {
	query := `
		INSERT INTO active_sessions (user_id, token, kind, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, userID, token, kind, time.Now()); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves the active session row matching the presented
// identity exactly: user, token and kind.
func (r *UserRepository) GetSession(userID int64, token, kind string) (*models.ActiveSession, error) {
	query := `
		SELECT user_id, token, kind, created_at
		FROM active_sessions
		WHERE user_id = ? AND token = ? AND kind = ?
	`
	sess := &models.ActiveSession{}
	err := r.db.QueryRow(query, userID, token, kind).Scan(
		&sess.UserID,
		&sess.Token,
		&sess.Kind,
		&sess.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return sess, nil
}

// DeleteSession removes the active session row matching the presented
// token and kind
func (r *UserRepository) DeleteSession(userID int64, token, kind string) error {
	query := "DELETE FROM active_sessions WHERE user_id = ? AND token = ? AND kind = ?"
	if _, err := r.db.Exec(query, userID, token, kind); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredCookieSessions removes cookie-kind sessions created before
// the cutoff; their client cookies have expired anyway.
func (r *UserRepository) DeleteExpiredCookieSessions(cutoff time.Time) error {
	query := "DELETE FROM active_sessions WHERE kind = ? AND created_at < ?"
	if _, err := r.db.Exec(query, models.SessionKindCookie, cutoff); err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return nil
}

// IncrementLoginAttempts adds one failed attempt for the user and returns
// the post-increment count. The add is a single UPDATE inside a transaction
// so concurrent failures cannot lose increments; the insert path only races
// on the very first failure and falls back to the update when it loses.
func (r *UserRepository) IncrementLoginAttempts(userID int64) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := "UPDATE login_attempts SET attempts = attempts + 1 WHERE user_id = ?"
	result, err := tx.Exec(update, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to increment login attempts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read increment result: %w", err)
	}

	if rows == 0 {
		insert := "INSERT INTO login_attempts (user_id, attempts) VALUES (?, 1)"
		if _, err := tx.Exec(insert, userID); err != nil {
			// Lost the first-failure race to a concurrent insert
			if _, err := tx.Exec(update, userID); err != nil {
				return 0, fmt.Errorf("failed to increment login attempts: %w", err)
			}
		}
	}

	var attempts int
	query := "SELECT attempts FROM login_attempts WHERE user_id = ?"
	if err := tx.QueryRow(query, userID).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("failed to read login attempts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit login attempts: %w", err)
	}
	return attempts, nil
}

// GetLoginAttempts returns the current failed-attempt count, 0 when no row exists
func (r *UserRepository) GetLoginAttempts(userID int64) (int, error) {
	var attempts int
	query := "SELECT attempts FROM login_attempts WHERE user_id = ?"
	err := r.db.QueryRow(query, userID).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read login attempts: %w", err)
	}
	return attempts, nil
}

// DeleteLoginAttempts clears the failed-attempt counter for the user
func (r *UserRepository) DeleteLoginAttempts(userID int64) error {
	query := "DELETE FROM login_attempts WHERE user_id = ?"
	if _, err := r.db.Exec(query, userID); err != nil {
		return fmt.Errorf("failed to delete login attempts: %w", err)
	}
	return nil
}
