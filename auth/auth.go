// Package auth supplies bearer tokens to the HTTP clients. Tokens are held
// per scope by an explicitly constructed Cache; nothing here is global.
package auth

import (
	"context"
	"errors"
	"time"
)

const (
	ScopeDatastore = "https://www.googleapis.com/auth/datastore"
	ScopeStorage   = "https://www.googleapis.com/auth/devstorage.full_control"

	DefaultTokenURI = "https://oauth2.googleapis.com/token"
)

var (
	ErrKeyFileMissing  = errors.New("service account key file is required")
	ErrClientEmail     = errors.New("service account key has no client_email")
	ErrPrivateKey      = errors.New("service account key has no private_key")
	ErrEmptyScope      = errors.New("token scope cannot be empty")
	ErrExchangerNeeded = errors.New("token cache requires an exchanger")
)

// TokenSource returns a bearer token valid for scope.
type TokenSource interface {
	Token(ctx context.Context, scope string) (string, error)
}

// Token is an access token and the moment it stops being accepted. A zero
// Expiry never expires.
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// Exchanger performs an uncached token exchange.
type Exchanger interface {
	Exchange(ctx context.Context, scope string) (Token, error)
}

// Static always returns the same token, whatever the scope. It fronts the
// source API token read from the environment.
type Static string

func (s Static) Token(ctx context.Context, scope string) (string, error) {
	return string(s), nil
}

var _ TokenSource = Static("")
