package models

import "context"

// AuthProvider names an OAuth identity provider.
type AuthProvider string

const ProviderDiscord AuthProvider = "discord"

// ProviderAccount links a local user to the provider's OAuth credentials.
// There is at most one per (user, provider).
type ProviderAccount struct {
	UserID            string       `json:"userId" db:"user_id"`
	Provider          AuthProvider `json:"provider" db:"provider"`
	ProviderAccountID string       `json:"providerAccountId" db:"provider_account_id"`
	AccessToken       string       `json:"-" db:"access_token"`
	RefreshToken      string       `json:"-" db:"refresh_token"`
	ExpiresAt         int64        `json:"expiresAt" db:"expires_at"` // epoch seconds
	TokenType         string       `json:"tokenType,omitempty" db:"token_type"`
	Scope             string       `json:"scope,omitempty" db:"scope"`
}

// IsStale compares in milliseconds: expires_at*1000 < now.
func (a *ProviderAccount) IsStale(nowMs int64) bool {
	return a.ExpiresAt*1000 < nowMs
}

// AccountRepository defines provider account data access. Lookups return
// (nil, nil) when nothing matches.
type AccountRepository interface {
	FindByUserProvider(ctx context.Context, userID string, provider AuthProvider) (*ProviderAccount, error)
	UpdateTokens(ctx context.Context, account *ProviderAccount) error
}
