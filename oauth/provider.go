// Package oauth reconciles federated identities with local user records.
// Providers are plain values in an injected registry, so each one can be
// tested in isolation.
package oauth

import (
	"context"
	"time"
)

// Token is the opaque credential pair obtained from a provider's code
// exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Profile is what a provider knows about the authenticated user. Email may
// be empty; reconciliation refuses to proceed without one.
type Profile struct {
	ProviderUserID string
	Email          string
	DisplayName    string
}

// Provider is one external identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Token, error)
	FetchProfile(ctx context.Context, token *Token) (*Profile, error)
}

// Registry maps provider name to implementation.
type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	registry := make(Registry, len(providers))
	for _, p := range providers {
		registry[p.Name()] = p
	}
	return registry
}

func (r Registry) Lookup(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}
