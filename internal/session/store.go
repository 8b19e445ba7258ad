package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"exbuddy/internal/models"
)

const (
	findByTokenQuery = `
		SELECT s.session_token, s.user_id, s.expires,
		       COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.image, '')
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.session_token = $1`

	updateExpiryQuery = `UPDATE sessions SET expires = $2 WHERE session_token = $1`

	deleteQuery = `DELETE FROM sessions WHERE session_token = $1`

	deleteExpiredForUserQuery = `DELETE FROM sessions WHERE user_id = $1 AND expires < $2`
)

// PostgresStore persists sessions in the sessions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ models.SessionRepository = (*PostgresStore)(nil)

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	var sess models.Session
	err := s.db.QueryRowContext(ctx, findByTokenQuery, token).Scan(
		&sess.SessionToken,
		&sess.UserID,
		&sess.Expires,
		&sess.Name,
		&sess.Email,
		&sess.Image,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) UpdateExpiry(ctx context.Context, token string, expires time.Time) error {
	if _, err := s.db.ExecContext(ctx, updateExpiryQuery, token, expires); err != nil {
		return fmt.Errorf("update session expiry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, deleteQuery, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredForUser removes the user's sessions that expired before now.
func (s *PostgresStore) DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteExpiredForUserQuery, userID, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}
