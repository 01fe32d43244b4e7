// Package auth verifies operator credentials for the mutating API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLocked is returned while a client is locked out after repeated failures.
	ErrLocked = errors.New("too many failed attempts")
)

// User is a configured operator account.
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// dummyHash is compared against when the user does not exist so that
// unknown and known usernames take the same time to reject.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("alertcast-dummy"), bcrypt.DefaultCost)
	return h
})

// Authenticator checks basic auth credentials against bcrypt hashes.
type Authenticator struct {
	users   map[string][]byte
	lockout *Lockout
}

// NewAuthenticator builds an authenticator for users. A zero threshold
// disables lockout.
func NewAuthenticator(users []User, threshold int, lockoutFor time.Duration) (*Authenticator, error) {
	m := make(map[string][]byte, len(users))
	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("user with empty username")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("user %s: invalid password hash: %w", u.Username, err)
		}
		if _, dup := m[u.Username]; dup {
			return nil, fmt.Errorf("duplicate user %s", u.Username)
		}
		m[u.Username] = []byte(u.PasswordHash)
	}

	a := &Authenticator{users: m}
	if threshold > 0 {
		a.lockout = NewLockout(threshold, lockoutFor)
	}
	return a, nil
}

// Enabled reports whether any user is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.users) > 0
}

// Authenticate verifies username and password. client identifies the
// caller for lockout purposes, usually its IP.
func (a *Authenticator) Authenticate(username, password, client string) error {
	key := client + "|" + username
	if a.lockout != nil && a.lockout.Locked(key) {
		return ErrLocked
	}

	hash, ok := a.users[username]
	if !ok {
		hash = dummyHash()
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		if a.lockout != nil && a.lockout.Fail(key) {
			return ErrLocked
		}
		return ErrInvalidCredentials
	}

	if a.lockout != nil {
		a.lockout.Reset(key)
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in the auth.users config.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// MinPasswordLength is the shortest accepted operator password.
const MinPasswordLength = 10

// CheckPassword rejects passwords that are too short or use a single
// character class.
func CheckPassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if strings.TrimSpace(password) != password {
		return errors.New("password must not start or end with whitespace")
	}

	var letters, digits, others bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letters = true
		case unicode.IsDigit(r):
			digits = true
		default:
			others = true
		}
	}
	if !letters || !(digits || others) {
		return errors.New("password must mix letters with digits or symbols")
	}
	return nil
}
