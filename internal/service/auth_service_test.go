package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounthub/internal/models"
	"accounthub/internal/security"
	"accounthub/internal/session"
)

// fakeStore is an in-memory UserStore.
type fakeStore struct {
	users    map[int64]*models.User
	byEmail  map[string]int64
	sessions map[string]*models.ActiveSession
	attempts map[int64]int
	nextID   int64

	// keyCollisions makes ActivationKeyExists report true that many
	// times; -1 means every key collides.
	keyCollisions int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]*models.User),
		byEmail:  make(map[string]int64),
		sessions: make(map[string]*models.ActiveSession),
		attempts: make(map[int64]int),
	}
}

func sessionKey(userID int64, token, kind string) string {
	return fmt.Sprintf("%d|%s|%s", userID, token, kind)
}

func (f *fakeStore) CreateUser(name, email, passwordHash, activationKey string) (*models.User, error) {
	f.nextID++
	user := &models.User{
		ID:            f.nextID,
		Name:          name,
		Email:         email,
		PasswordHash:  passwordHash,
		JoinedAt:      time.Now(),
		Locked:        true,
		ActivationKey: activationKey,
	}
	f.users[user.ID] = user
	f.byEmail[email] = user.ID
	return user, nil
}

func (f *fakeStore) GetUserByEmail(email string) (*models.User, error) {
	id, ok := f.byEmail[email]
	if !ok {
		return nil, nil
	}
	u := *f.users[id]
	return &u, nil
}

func (f *fakeStore) GetUserByID(id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) EmailExists(email string) (bool, error) {
	_, ok := f.byEmail[email]
	return ok, nil
}

func (f *fakeStore) ActivationKeyExists(key string) (bool, error) {
	if f.keyCollisions != 0 {
		if f.keyCollisions > 0 {
			f.keyCollisions--
		}
		return true, nil
	}
	for _, u := range f.users {
		if u.ActivationKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SetActivationKey(email, key string) error {
	id, ok := f.byEmail[email]
	if !ok {
		return nil
	}
	f.users[id].ActivationKey = key
	return nil
}

func (f *fakeStore) Unlock(email, key string) (bool, error) {
	id, ok := f.byEmail[email]
	if !ok {
		return false, nil
	}
	u := f.users[id]
	if u.ActivationKey == "" || u.ActivationKey != key {
		return false, nil
	}
	u.Locked = false
	u.ActivationKey = ""
	return true, nil
}

func (f *fakeStore) UpdatePassword(email, passwordHash string) error {
	id, ok := f.byEmail[email]
	if !ok {
		return errors.New("no such user")
	}
	f.users[id].PasswordHash = passwordHash
	return nil
}

func (f *fakeStore) LockUser(userID int64) error {
	if u, ok := f.users[userID]; ok {
		u.Locked = true
	}
	return nil
}

func (f *fakeStore) CreateSession(userID int64, token, kind string) error {
	f.sessions[sessionKey(userID, token, kind)] = &models.ActiveSession{
		UserID:    userID,
		Token:     token,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	return nil
}

func (f *fakeStore) GetSession(userID int64, token, kind string) (*models.ActiveSession, error) {
	s, ok := f.sessions[sessionKey(userID, token, kind)]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (f *fakeStore) DeleteSession(userID int64, token, kind string) error {
	delete(f.sessions, sessionKey(userID, token, kind))
	return nil
}

func (f *fakeStore) DeleteExpiredCookieSessions(cutoff time.Time) error {
	for k, s := range f.sessions {
		if s.Kind == models.SessionKindCookie && s.CreatedAt.Before(cutoff) {
			delete(f.sessions, k)
		}
	}
	return nil
}

func (f *fakeStore) IncrementLoginAttempts(userID int64) (int, error) {
	f.attempts[userID]++
	return f.attempts[userID], nil
}

func (f *fakeStore) DeleteLoginAttempts(userID int64) error {
	delete(f.attempts, userID)
	return nil
}

// fakeMailer records sent mail and can be told to fail.
type fakeMailer struct {
	sent []sentMail
	fail bool
}

type sentMail struct {
	toEmail  string
	subject  string
	htmlBody string
	textBody string
}

func (m *fakeMailer) Send(ctx context.Context, toName, toEmail, subject, htmlBody, textBody string) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, sentMail{toEmail: toEmail, subject: subject, htmlBody: htmlBody, textBody: textBody})
	return nil
}

func newTestService(store *fakeStore, mailer *fakeMailer, maxAttempts int) *AuthService {
	return NewAuthService(store, mailer, "test-secret", "http://localhost:8080", "AccountHub", maxAttempts, time.Hour)
}

func TestRegisterMissingArgs(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeMailer{}, 3)

	assert.Equal(t, StatusMissingArgs, svc.Register(context.Background(), "", "a@b.com", "pw"))
	assert.Equal(t, StatusMissingArgs, svc.Register(context.Background(), "Bob", "", "pw"))
	assert.Equal(t, StatusMissingArgs, svc.Register(context.Background(), "Bob", "a@b.com", ""))
}

func TestRegisterSuccess(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	svc := newTestService(store, mailer, 3)

	status := svc.Register(context.Background(), "Bob", "bob@example.com", "hunter2")
	require.Equal(t, StatusSuccess, status)

	user, err := store.GetUserByEmail("bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.Locked)
	assert.Len(t, user.ActivationKey, security.ActivationKeyLength)
	assert.True(t, security.CheckPassword("hunter2", user.PasswordHash))

	require.Len(t, mailer.sent, 1)
	mail := mailer.sent[0]
	assert.Equal(t, "bob@example.com", mail.toEmail)
	assert.Contains(t, mail.textBody, "/unlock?email=bob%40example.com&key="+user.ActivationKey)
}

func TestRegisterExistingEmail(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMailer{}, 3)

	require.Equal(t, StatusSuccess, svc.Register(context.Background(), "Bob", "bob@example.com", "pw"))
	assert.Equal(t, StatusAccountExists, svc.Register(context.Background(), "Bobby", "bob@example.com", "pw2"))
}

func TestRegisterMailFailureKeepsRow(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMailer{fail: true}, 3)

	status := svc.Register(context.Background(), "Bob", "bob@example.com", "pw")
	assert.Equal(t, StatusFailure, status)

	// The row stays so a reset request can issue a new key later
	user, err := store.GetUserByEmail("bob@example.com")
	require.NoError(t, err)
	assert.NotNil(t, user)
}

func TestRegisterRetriesActivationKeyCollision(t *testing.T) {
	store := newFakeStore()
	store.keyCollisions = 2
	svc := newTestService(store, &fakeMailer{}, 3)

	require.Equal(t, StatusSuccess, svc.Register(context.Background(), "Bob", "bob@example.com", "pw"))
	assert.Zero(t, store.keyCollisions, "colliding keys must be rerolled")

	user, err := store.GetUserByEmail("bob@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Len(t, user.ActivationKey, security.ActivationKeyLength)
}

func TestRegisterFailsWhenKeysAlwaysCollide(t *testing.T) {
	store := newFakeStore()
	store.keyCollisions = -1
	mailer := &fakeMailer{}
	svc := newTestService(store, mailer, 3)

	assert.Equal(t, StatusFailure, svc.Register(context.Background(), "Bob", "bob@example.com", "pw"))

	// No unique key, no row and no mail
	user, err := store.GetUserByEmail("bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Empty(t, mailer.sent)
}

// registerAndUnlock creates an active account ready to log in.
func registerAndUnlock(t *testing.T, svc *AuthService, store *fakeStore, email, password string) *models.User {
	t.Helper()
	require.Equal(t, StatusSuccess, svc.Register(context.Background(), "Bob", email, password))
	user, err := store.GetUserByEmail(email)
	require.NoError(t, err)
	require.True(t, svc.Unlock(email, user.ActivationKey))
	user, err = store.GetUserByEmail(email)
	require.NoError(t, err)
	return user
}

func TestLoginSessionKind(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMailer{}, 3)
	user := registerAndUnlock(t, svc, store, "bob@example.com", "hunter2")

	sess := session.NewStore().New()
	status, grant := svc.Login(sess, "bob@example.com", "hunter2", false)
	require.Equal(t, StatusSuccess, status)
	assert.Nil(t, grant)

	row, err := store.GetSession(user.ID, sess.ID(), models.SessionKindSession)
	require.NoError(t, err)
	assert.NotNil(t, row)

	assert.True(t, svc.LoginCheck(sess, "", ""))

	email, ok := svc.Email(sess, "", "")
	require.True(t, ok)
	assert.Equal(t, "bob@example.com", email)
}

func TestLoginRememberKind(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMailer{}, 3)
	user := registerAndUnlock(t, svc, store, "bob@example.com", "hunter2")

	sess := session.NewStore().New()
	status, grant := svc.Login(sess, "bob@example.com", "hunter2", true)
	require.Equal(t, StatusSuccess, status)
	require.NotNil(t, grant)
	assert.Equal(t, user.ID, grant.UserID)

	// A fresh session plus the cookie pair still checks out
	fresh := session.NewStore().New()
	assert.True(t, svc.LoginCheck(fresh, "1", grant.Token))

	// Tampered uid cookie fails
	assert.False(t, svc.LoginCheck(fresh, "2", grant.Token))

	// Deleting the stored row kills the cookie login
	require.True(t, svc.Logout(fresh, "1", grant.Token))
	assert.False(t, svc.LoginCheck(fresh, "1", grant.Token))
}

func TestLoginFailures(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMailer{}, 3)
	registerAndUnlock(t, svc, store, "bob@example.com", "hunter2")

	sess := session.NewStore().New()

	status, _ := svc.Login(sess, "", "pw", false)
	assert.Equal(t, StatusMissingArgs, status)

	status, _ = svc.Login(sess, "nobody@example.com", "pw", false)
	assert.Equal(t, StatusFailure, status)
	assert.Empty(t, store.attempts, "unknown emails must not create attempt counters")

	status, _ = svc.Login(sess, "bob@example.com", "wrong", false)
	assert.Equal(t, StatusFailure, status)
	assert.Equal(t, 1, store.attempts[1])
}

func TestLockoutAtCeiling(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	svc := newTestService(store, mailer, 3)
	user := registerAndUnlock(t, svc, store, "bob@example.com", "hunter2")

	sess := session.NewStore().New()
	for i := 0; i < 3; i++ {
		status, _ := svc.Login(sess, "bob@example.com", "wrong", false)
		assert.Equal(t, StatusFailure, status)
	}

	// Locked now, even with the right password
	status, _ := svc.Login(sess, "bob@example.com", "hunter2", false)
	assert.Equal(t, StatusLocked, status)

	// A reset request issues a fresh key; unlocking with it clears the
	// counter and the lock
	require.NoError(t, svc.EmailResetRequest(context.Background(), "bob@example.com"))
	fresh, err := store.GetUserByEmail("bob@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, fresh.ActivationKey)
	require.True(t, svc.Unlock("bob@example.com", fresh.ActivationKey))
	assert.Empty(t, store.attempts[user.ID])

	status, _ = svc.Login(sess, "bob@example.com", "hunter2", false)
	assert.Equal(t, StatusSuccess, status)
}

func TestUnlockSingleUse(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMailer{}, 3)
	require.Equal(t, StatusSuccess, svc.Register(context.Background(), "Bob", "bob@example.com", "pw"))
	user, err := store.GetUserByEmail("bob@example.com")
	require.NoError(t, err)
	key := user.ActivationKey

	assert.False(t, svc.Unlock("bob@example.com", "wrong"))
	assert.False(t, svc.Unlock("", key))
	assert.False(t, svc.Unlock("bob@example.com", ""))

	assert.True(t, svc.Unlock("bob@example.com", key))
	// Consumed: the same key never works twice
	assert.False(t, svc.Unlock("bob@example.com", key))
}

func TestLogoutSessionKind(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMailer{}, 3)
	registerAndUnlock(t, svc, store, "bob@example.com", "hunter2")

	sess := session.NewStore().New()
	status, _ := svc.Login(sess, "bob@example.com", "hunter2", false)
	require.Equal(t, StatusSuccess, status)

	clearCookies := svc.Logout(sess, "", "")
	assert.False(t, clearCookies)
	assert.False(t, svc.LoginCheck(sess, "", ""))
}

func TestLogoutExpiresDeadCookies(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeMailer{}, 3)

	// A presented cookie pair gets expired even when it fails validation
	sess := session.NewStore().New()
	assert.True(t, svc.Logout(sess, "1", "not-a-jwt"))

	// Nothing presented, nothing to expire
	assert.False(t, svc.Logout(session.NewStore().New(), "", ""))
}

func TestEmailResetRequest(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	svc := newTestService(store, mailer, 3)
	registerAndUnlock(t, svc, store, "bob@example.com", "hunter2")
	sentBefore := len(mailer.sent)

	// Unknown addresses are silently ignored
	require.NoError(t, svc.EmailResetRequest(context.Background(), "nobody@example.com"))
	assert.Len(t, mailer.sent, sentBefore)

	require.NoError(t, svc.EmailResetRequest(context.Background(), "bob@example.com"))
	require.Len(t, mailer.sent, sentBefore+1)

	user, err := store.GetUserByEmail("bob@example.com")
	require.NoError(t, err)
	mail := mailer.sent[len(mailer.sent)-1]
	assert.True(t, strings.Contains(mail.textBody, "/reset_pass?email=bob%40example.com&key="+user.ActivationKey))
}

func TestResetPasswordRoundTrip(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMailer{}, 3)
	registerAndUnlock(t, svc, store, "bob@example.com", "hunter2")

	require.NoError(t, svc.EmailResetRequest(context.Background(), "bob@example.com"))
	user, err := store.GetUserByEmail("bob@example.com")
	require.NoError(t, err)

	require.True(t, svc.ValidResetRequest("bob@example.com", user.ActivationKey))
	require.Equal(t, StatusSuccess, svc.ResetPassword("bob@example.com", "newpass"))

	sess := session.NewStore().New()
	status, _ := svc.Login(sess, "bob@example.com", "hunter2", false)
	assert.Equal(t, StatusFailure, status, "old password must stop working")

	sess2 := session.NewStore().New()
	status, _ = svc.Login(sess2, "bob@example.com", "newpass", false)
	assert.Equal(t, StatusSuccess, status)
}

func TestResetPasswordMissingArgs(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeMailer{}, 3)
	assert.Equal(t, StatusMissingArgs, svc.ResetPassword("", "pw"))
	assert.Equal(t, StatusMissingArgs, svc.ResetPassword("a@b.com", ""))
}

func TestCleanupExpiredCookieSessions(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeMailer{}, 3)

	require.NoError(t, store.CreateSession(1, "old", models.SessionKindCookie))
	store.sessions[sessionKey(1, "old", models.SessionKindCookie)].CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.CreateSession(1, "new", models.SessionKindCookie))

	require.NoError(t, svc.CleanupExpiredCookieSessions())

	old, _ := store.GetSession(1, "old", models.SessionKindCookie)
	assert.Nil(t, old)
	kept, _ := store.GetSession(1, "new", models.SessionKindCookie)
	assert.NotNil(t, kept)
}
