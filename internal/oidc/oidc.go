package oidc

import (
	"context"
	"crypto"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/jurisfix/jurisfix/backend/go-services/pkg/middleware"
)

// Verifier checks Keycloak-issued tokens.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

func config(clientID string) *oidc.Config {
	// an empty client id accepts any audience (Keycloak access tokens carry "account")
	return &oidc.Config{ClientID: clientID, SkipClientIDCheck: clientID == ""}
}

// NewVerifier discovers the provider at issuer and verifies tokens for
// clientID.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &Verifier{verifier: provider.Verifier(config(clientID))}, nil
}

// NewStaticVerifier verifies against fixed public keys without discovery.
func NewStaticVerifier(issuer, clientID string, keys ...crypto.PublicKey) *Verifier {
	ks := &oidc.StaticKeySet{PublicKeys: keys}
	return &Verifier{verifier: oidc.NewVerifier(issuer, ks, config(clientID))}
}

// Verify implements middleware.Verifier.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// Claims verifies raw and decodes its claims.
func (v *Verifier) Claims(ctx context.Context, raw string) (map[string]interface{}, error) {
	tok, err := v.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}
