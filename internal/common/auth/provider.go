// internal/common/auth/provider.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"exbuddy/internal/common/config"

	"golang.org/x/oauth2"
)

// TokenResponse is the subset of the provider's token endpoint response the
// account store persists.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
}

// TokenError describes a rejected or failed token exchange. Body carries the
// provider's response payload when there was one.
type TokenError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token request failed: %v", e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// Transient reports whether a retry could plausibly succeed.
func (e *TokenError) Transient() bool {
	switch e.StatusCode {
	case 0, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return e.StatusCode >= 500
}

// ProviderClient talks to an OAuth2 provider's token endpoint.
type ProviderClient struct {
	name       string
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewProviderClient builds a client that sends credentials in the form
// body, which is what Discord expects.
func NewProviderClient(cfg config.ProviderConfig, httpClient *http.Client) *ProviderClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ProviderClient{
		name: cfg.Name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

func (p *ProviderClient) Name() string {
	return p.name
}

// RefreshToken performs one refresh_token grant. The form body carries
// client_id, client_secret, refresh_token and grant_type.
func (p *ProviderClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, &TokenError{Err: errors.New("no refresh token on account")}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	// empty access token forces the exchange
	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, &TokenError{StatusCode: re.Response.StatusCode, Body: string(re.Body), Err: err}
		}
		return nil, &TokenError{Err: err}
	}

	out := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		TokenType:    tok.TokenType,
	}
	if out.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out, nil
}
