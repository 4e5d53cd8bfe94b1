package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// StaticUser is a configured account with a bcrypt password hash.
type StaticUser struct {
	ID           string
	Email        string
	PasswordHash string
}

// StaticAuthenticator checks credentials against a fixed set of accounts.
type StaticAuthenticator struct {
	users map[string]StaticUser
}

// NewStaticAuthenticator indexes users by lower-cased email.
func NewStaticAuthenticator(users ...StaticUser) *StaticAuthenticator {
	a := &StaticAuthenticator{users: make(map[string]StaticUser, len(users))}
	for _, u := range users {
		a.users[normalizeEmail(u.Email)] = u
	}

	return a
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, email, password string) (*Identity, error) {
	u, ok := a.users[normalizeEmail(email)]
	if !ok {
		return nil, ErrInvalidCredentials
	}

	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("check password for %s: %w", u.Email, err)
	}

	return &Identity{UserID: u.ID, Email: u.Email}, nil
}

// HashPassword returns a bcrypt hash suitable for StaticUser.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
