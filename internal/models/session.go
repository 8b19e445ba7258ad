package models

import (
	"context"
	"time"
)

// Session is the server-side record behind a session cookie, joined with the
// owning user's profile.
type Session struct {
	SessionToken string    `json:"-" db:"session_token"`
	UserID       string    `json:"userId" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email,omitempty" db:"email"`
	Image        string    `json:"image,omitempty" db:"image"`
	Expires      time.Time `json:"expires" db:"expires"`
}

// IsExpired reports whether the session is no longer valid at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.Expires)
}

// SessionUser is the user shape procedures see.
type SessionUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Image    string `json:"image,omitempty"`
}

func (s *Session) User() SessionUser {
	return SessionUser{
		ID:       s.UserID,
		Name:     s.Name,
		Username: s.Name,
		Image:    s.Image,
	}
}

// SessionRepository defines session data access. Lookups return (nil, nil)
// when nothing matches.
type SessionRepository interface {
	FindByToken(ctx context.Context, token string) (*Session, error)
	UpdateExpiry(ctx context.Context, token string, expires time.Time) error
	Delete(ctx context.Context, token string) error
	DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) (int64, error)
}
