package reqctx

import (
	"context"
	"net/http"

	"exbuddy/internal/common/logger"
	"exbuddy/internal/models"
	"exbuddy/internal/route"
)

// SessionResolver resolves the session for a request. Public routes yield
// (nil, nil).
type SessionResolver interface {
	Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request, vis route.Visibility) (*models.Session, error)
}

// AccountRefresher returns the user's provider account with a usable access
// token, or (nil, nil) when none is linked.
type AccountRefresher interface {
	EnsureFresh(ctx context.Context, userID string) (*models.ProviderAccount, error)
}

// Builder composes route classification, session resolution and token
// refresh. Errors from either step are returned unchanged.
type Builder struct {
	sessions SessionResolver
	accounts AccountRefresher
	logger   logger.Logger
}

// NewBuilder; accounts may be nil to skip provider token handling.
func NewBuilder(sessions SessionResolver, accounts AccountRefresher, log logger.Logger) *Builder {
	return &Builder{
		sessions: sessions,
		accounts: accounts,
		logger:   logger.ForComponent(log, "context-builder"),
	}
}

func (b *Builder) Build(ctx context.Context, t Transport, path string) (*Context, error) {
	vis := route.Classify(path)

	sess, err := b.sessions.Resolve(ctx, t.Writer, t.Request, vis)
	if err != nil {
		return nil, err
	}

	rc := &Context{
		transport:  t,
		path:       path,
		visibility: vis,
		session:    sess,
	}
	if sess == nil || b.accounts == nil {
		return rc, nil
	}

	acct, err := b.accounts.EnsureFresh(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	rc.account = acct

	b.logger.Debug("Built request context", map[string]interface{}{
		"path":       path,
		"userId":     sess.UserID,
		"hasAccount": acct != nil,
		"requestId":  t.RequestID,
	})
	return rc, nil
}
