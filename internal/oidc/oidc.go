// Package oidc verifies ID tokens issued by the configured identity provider
// (Keycloak) for the write API.
package oidc

import (
	"context"
	"fmt"

	"github.com/buildcore/erp-core/pkg/middleware"
	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier checks tokens against a discovered OIDC provider.
type Verifier struct {
	issuer   string
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the provider at issuer. Tokens must be issued for clientID.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider %s: %w", issuer, err)
	}
	return &Verifier{
		issuer:   issuer,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (v *Verifier) Issuer() string { return v.issuer }

// Verify satisfies middleware.Verifier. *oidc.IDToken already exposes Claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}
