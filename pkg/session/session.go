// Package session persists the auth token and the last-known user
// profile between runs. It is the only local state the client keeps.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/recoilme/pudge"

	"github.com/tabell-io/tabell-go/pkg/errs"
)

// Fixed store keys, mirroring the names the browser client used in
// local storage.
const (
	tokenKey   = "token"
	profileKey = "user"
)

// User is the locally cached profile of the authenticated user.
type User struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	UserName       string `json:"userName"`
	EmailConfirmed bool   `json:"emailConfirmed"`
}

// Store is a pudge-backed key-value session store. It implements
// tabell.TokenSource.
type Store struct {
	db *pudge.Db
}

func Open(path string) (*Store, error) {
	const op errs.Op = "session.Open"

	db, err := pudge.Open(path, &pudge.Config{SyncInterval: 1})
	if err != nil {
		return nil, errs.E(op, errs.IO, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Token returns the stored bearer token, or the empty string when no
// session exists.
func (s *Store) Token() (string, error) {
	const op errs.Op = "session.Store.Token"

	var token string

	err := s.db.Get(tokenKey, &token)
	if err != nil {
		if errors.Is(err, pudge.ErrKeyNotFound) {
			return "", nil
		}

		return "", errs.E(op, errs.IO, err)
	}

	return token, nil
}

func (s *Store) SetToken(token string) error {
	const op errs.Op = "session.Store.SetToken"

	err := s.db.Set(tokenKey, token)
	if err != nil {
		return errs.E(op, errs.IO, err)
	}

	return nil
}

// Clear removes the token and the cached profile. The remote access
// layer calls this on every 401.
func (s *Store) Clear() error {
	const op errs.Op = "session.Store.Clear"

	for _, key := range []string{tokenKey, profileKey} {
		err := s.db.Delete(key)
		if err != nil && !errors.Is(err, pudge.ErrKeyNotFound) {
			return errs.E(op, errs.IO, err)
		}
	}

	return nil
}

// User returns the cached profile, or nil when none is stored.
func (s *Store) User() (*User, error) {
	const op errs.Op = "session.Store.User"

	user := &User{}

	err := s.db.Get(profileKey, user)
	if err != nil {
		if errors.Is(err, pudge.ErrKeyNotFound) {
			return nil, nil
		}

		return nil, errs.E(op, errs.IO, err)
	}

	return user, nil
}

func (s *Store) SetUser(user *User) error {
	const op errs.Op = "session.Store.SetUser"

	err := s.db.Set(profileKey, user)
	if err != nil {
		return errs.E(op, errs.IO, err)
	}

	return nil
}

// TokenExpired reports whether the stored token is a JWT whose exp
// claim is in the past. The signature is not verified here, that is
// the backend's job; this only avoids sending a token we already know
// is dead. Opaque tokens and tokens without exp report false.
func (s *Store) TokenExpired(now time.Time) (bool, error) {
	token, err := s.Token()
	if err != nil {
		return false, err
	}

	if token == "" {
		return true, nil
	}

	claims := &jwt.RegisteredClaims{}

	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	if err != nil || claims.ExpiresAt == nil {
		return false, nil
	}

	return claims.ExpiresAt.Time.Before(now), nil
}
