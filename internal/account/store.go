package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"exbuddy/internal/models"
)

const (
	findByUserProviderQuery = `
		SELECT user_id, provider, provider_account_id,
		       COALESCE(access_token, ''), COALESCE(refresh_token, ''),
		       COALESCE(expires_at, 0), COALESCE(token_type, ''), COALESCE(scope, '')
		FROM accounts
		WHERE user_id = $1 AND provider = $2`

	updateTokensQuery = `
		UPDATE accounts
		SET access_token = $3, refresh_token = $4, expires_at = $5, token_type = $6, scope = $7
		WHERE user_id = $1 AND provider = $2`
)

// PostgresStore persists provider accounts in the accounts table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ models.AccountRepository = (*PostgresStore)(nil)

func (s *PostgresStore) FindByUserProvider(ctx context.Context, userID string, provider models.AuthProvider) (*models.ProviderAccount, error) {
	var a models.ProviderAccount
	err := s.db.QueryRowContext(ctx, findByUserProviderQuery, userID, string(provider)).Scan(
		&a.UserID,
		&a.Provider,
		&a.ProviderAccountID,
		&a.AccessToken,
		&a.RefreshToken,
		&a.ExpiresAt,
		&a.TokenType,
		&a.Scope,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &a, nil
}

// ErrAccountGone is returned when the row disappeared between read and write.
var ErrAccountGone = errors.New("account no longer exists")

// UpdateTokens writes the token fields in one statement; concurrent writers
// are serialized by the row lock.
func (s *PostgresStore) UpdateTokens(ctx context.Context, a *models.ProviderAccount) error {
	res, err := s.db.ExecContext(ctx, updateTokensQuery,
		a.UserID, string(a.Provider),
		a.AccessToken, a.RefreshToken, a.ExpiresAt, a.TokenType, a.Scope,
	)
	if err != nil {
		return fmt.Errorf("update account tokens: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAccountGone
	}
	return nil
}
