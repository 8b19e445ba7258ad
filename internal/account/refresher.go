// Package account keeps provider access tokens usable by refreshing them
// lazily when a request finds them expired.
package account

import (
	"context"
	stderrors "errors"
	"time"

	"exbuddy/internal/common/auth"
	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/common/metrics"
	"exbuddy/internal/models"

	"golang.org/x/sync/singleflight"
)

// TokenExchanger performs the refresh_token grant against a provider.
type TokenExchanger interface {
	Name() string
	RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenResponse, error)
}

// Refresher refreshes stale provider tokens. Concurrent refreshes for the
// same (user, provider) share one exchange.
type Refresher struct {
	store     models.AccountRepository
	exchanger TokenExchanger
	provider  models.AuthProvider
	timeout   time.Duration
	now       func() time.Time
	group     singleflight.Group
	logger    logger.Logger
}

type Option func(*Refresher)

func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

func NewRefresher(store models.AccountRepository, exchanger TokenExchanger, timeout time.Duration, log logger.Logger, opts ...Option) *Refresher {
	r := &Refresher{
		store:     store,
		exchanger: exchanger,
		provider:  models.AuthProvider(exchanger.Name()),
		timeout:   timeout,
		now:       time.Now,
		logger:    logger.ForComponent(log, "token-refresher"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Provider is the provider whose accounts this refresher manages.
func (r *Refresher) Provider() models.AuthProvider {
	return r.provider
}

// EnsureFresh loads the user's account for the configured provider and
// refreshes it if stale. A user with no linked account yields (nil, nil).
func (r *Refresher) EnsureFresh(ctx context.Context, userID string) (*models.ProviderAccount, error) {
	acct, err := r.store.FindByUserProvider(ctx, userID, r.provider)
	if err != nil {
		return nil, errors.NewInternalError("Failed to load provider account", err, map[string]interface{}{
			"userId":   userID,
			"provider": string(r.provider),
		})
	}
	if acct == nil {
		return nil, nil
	}
	return r.Refresh(ctx, acct)
}

// Refresh returns acct untouched when its access token is still valid.
// Otherwise it exchanges the refresh token once, persists the new tokens and
// returns the updated account. Any failure is an INTERNAL_SERVER_ERROR
// carrying the provider payload and the user id; nothing is retried.
func (r *Refresher) Refresh(ctx context.Context, acct *models.ProviderAccount) (*models.ProviderAccount, error) {
	if !acct.IsStale(r.now().UnixMilli()) {
		return acct, nil
	}

	key := acct.UserID + "|" + string(acct.Provider)
	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		// detached so one caller's cancellation doesn't fail the others
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.refresh(rctx, acct)
	})
	if shared {
		r.logger.Debug("Joined in-flight token refresh", map[string]interface{}{"userId": acct.UserID})
	}
	if err != nil {
		return nil, err
	}

	updated := *v.(*models.ProviderAccount)
	return &updated, nil
}

func (r *Refresher) refresh(ctx context.Context, acct *models.ProviderAccount) (*models.ProviderAccount, error) {
	provider := string(acct.Provider)

	// a refresh that finished just before this flight started already wrote
	// newer tokens; reusing them avoids replaying a rotated refresh token
	if latest, err := r.store.FindByUserProvider(ctx, acct.UserID, acct.Provider); err == nil && latest != nil {
		if !latest.IsStale(r.now().UnixMilli()) {
			metrics.TokenRefreshes.WithLabelValues(provider, "reused").Inc()
			return latest, nil
		}
		acct = latest
	}

	tok, err := r.exchanger.RefreshToken(ctx, acct.RefreshToken)
	if err != nil {
		outcome, message := "failed", "Failed to refresh provider access token"
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome, message = "timeout", "Provider token refresh timed out"
		}
		metrics.TokenRefreshes.WithLabelValues(provider, outcome).Inc()

		payload := err.Error()
		var te *auth.TokenError
		if stderrors.As(err, &te) && te.Body != "" {
			payload = te.Body
		}
		r.logger.Error(message, map[string]interface{}{
			"userId":   acct.UserID,
			"provider": provider,
			"payload":  payload,
		})
		return nil, errors.NewInternalError(message, err, map[string]interface{}{
			"userId":   acct.UserID,
			"provider": provider,
			"payload":  payload,
		})
	}

	updated := *acct
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	updated.ExpiresAt = r.now().Unix() + tok.ExpiresIn
	if tok.TokenType != "" {
		updated.TokenType = tok.TokenType
	}
	if tok.Scope != "" {
		updated.Scope = tok.Scope
	}

	if err := r.store.UpdateTokens(ctx, &updated); err != nil {
		metrics.TokenRefreshes.WithLabelValues(provider, "persist_failed").Inc()
		return nil, errors.NewInternalError("Failed to persist refreshed tokens", err, map[string]interface{}{
			"userId":   acct.UserID,
			"provider": provider,
		})
	}

	metrics.TokenRefreshes.WithLabelValues(provider, "refreshed").Inc()
	r.logger.Info("Refreshed provider access token", map[string]interface{}{
		"userId":    acct.UserID,
		"provider":  provider,
		"expiresAt": updated.ExpiresAt,
	})
	return &updated, nil
}
