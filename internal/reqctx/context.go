// Package reqctx builds the immutable per-request context handed to every
// procedure.
package reqctx

import (
	"context"
	"net/http"

	"exbuddy/internal/models"
	"exbuddy/internal/route"
)

// Transport is the raw request metadata a context is built from.
type Transport struct {
	Request   *http.Request
	Writer    http.ResponseWriter
	RequestID string
}

// Context is read-only once built.
type Context struct {
	transport  Transport
	path       string
	visibility route.Visibility
	session    *models.Session
	account    *models.ProviderAccount
}

func (c *Context) Request() *http.Request { return c.transport.Request }

func (c *Context) RequestID() string { return c.transport.RequestID }

func (c *Context) Path() string { return c.path }

func (c *Context) Visibility() route.Visibility { return c.visibility }

// Session returns a copy of the resolved session, or nil on public routes.
func (c *Context) Session() *models.Session {
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Account returns a copy of the caller's provider account after any
// refresh, or nil if none is linked.
func (c *Context) Account() *models.ProviderAccount {
	if c.account == nil {
		return nil
	}
	a := *c.account
	return &a
}

// User is the session user, if there is a session.
func (c *Context) User() (models.SessionUser, bool) {
	if c.session == nil {
		return models.SessionUser{}, false
	}
	return c.session.User(), true
}

type ctxKey struct{}

func WithContext(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

func FromContext(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*Context)
	return rc, ok && rc != nil
}
