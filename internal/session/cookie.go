package session

import (
	"net/http"
	"time"
)

const securePrefix = "__Secure-"

// Cookies reads and writes the session token cookie.
type Cookies struct {
	name   string
	secure bool
}

func NewCookies(name string, secure bool) Cookies {
	return Cookies{name: name, secure: secure}
}

func (c Cookies) cookieName() string {
	if c.secure {
		return securePrefix + c.name
	}
	return c.name
}

// Token returns the session token carried by r, or "".
func (c Cookies) Token(r *http.Request) string {
	for _, name := range []string{c.cookieName(), securePrefix + c.name, c.name} {
		if ck, err := r.Cookie(name); err == nil && ck.Value != "" {
			return ck.Value
		}
	}
	return ""
}

// Set writes the token with the given expiry.
func (c Cookies) Set(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the cookie on the client.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
