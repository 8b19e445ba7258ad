// Package session resolves the authenticated session behind a request.
package session

import (
	"context"
	"net/http"
	"time"

	"exbuddy/internal/common/config"
	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/logger"
	"exbuddy/internal/common/metrics"
	"exbuddy/internal/models"
	"exbuddy/internal/route"
)

// Resolver looks up the session for private procedures and slides its
// expiry forward.
type Resolver struct {
	store     models.SessionRepository
	cookies   Cookies
	maxAge    time.Duration
	updateAge time.Duration
	now       func() time.Time
	logger    logger.Logger
}

type Option func(*Resolver)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(store models.SessionRepository, cfg config.SessionConfig, log logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:     store,
		cookies:   NewCookies(cfg.CookieName, cfg.SecureCookie),
		maxAge:    cfg.MaxAgeDuration(),
		updateAge: cfg.UpdateAgeDuration(),
		now:       time.Now,
		logger:    logger.ForComponent(log, "session-resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns (nil, nil) for public routes without touching the store.
// For private routes it returns the live session or the NO_SESSION error.
// w may be nil, in which case a renewed expiry is persisted but no cookie
// is written.
func (r *Resolver) Resolve(ctx context.Context, w http.ResponseWriter, req *http.Request, vis route.Visibility) (*models.Session, error) {
	if vis == route.Public {
		metrics.SessionResolutions.WithLabelValues("public").Inc()
		return nil, nil
	}

	token := r.cookies.Token(req)
	if token == "" {
		metrics.SessionResolutions.WithLabelValues("missing").Inc()
		return nil, errors.NewNoSessionError()
	}

	sess, err := r.store.FindByToken(ctx, token)
	if err != nil {
		metrics.SessionResolutions.WithLabelValues("error").Inc()
		return nil, errors.NewInternalError("session lookup failed", err, nil)
	}
	if sess == nil {
		metrics.SessionResolutions.WithLabelValues("missing").Inc()
		return nil, errors.NewNoSessionError()
	}

	now := r.now()
	if sess.IsExpired(now) {
		metrics.SessionResolutions.WithLabelValues("expired").Inc()
		if err := r.store.Delete(ctx, token); err != nil {
			r.logger.Warn("Failed to delete expired session", map[string]interface{}{
				"userId": sess.UserID,
				"error":  err.Error(),
			})
		}
		if w != nil {
			r.cookies.Clear(w)
		}
		return nil, errors.NewNoSessionError()
	}

	if r.dueForUpdate(sess, now) {
		expires := now.Add(r.maxAge)
		if err := r.store.UpdateExpiry(ctx, token, expires); err != nil {
			// the session is still valid; renewal can happen on the next call
			r.logger.Warn("Failed to extend session", map[string]interface{}{
				"userId": sess.UserID,
				"error":  err.Error(),
			})
		} else {
			sess.Expires = expires
			if w != nil {
				r.cookies.Set(w, token, expires)
			}
			metrics.SessionResolutions.WithLabelValues("renewed").Inc()
			return sess, nil
		}
	}

	metrics.SessionResolutions.WithLabelValues("found").Inc()
	return sess, nil
}

// dueForUpdate is true once updateAge has passed since the expiry was last
// set to now+maxAge.
func (r *Resolver) dueForUpdate(sess *models.Session, now time.Time) bool {
	due := sess.Expires.Add(-r.maxAge).Add(r.updateAge)
	return !now.Before(due)
}
