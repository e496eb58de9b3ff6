package auth

import (
	"context"
	"fmt"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier validates ID tokens issued by an OpenID Connect provider.
type OIDCVerifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewOIDCVerifier performs provider discovery against issuer and verifies
// tokens for the given audience.
func NewOIDCVerifier(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery %s: %w", issuer, err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&gooidc.Config{ClientID: audience})}, nil
}

// Verify validates the token and maps it onto Claims.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var extra struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&extra); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if idToken.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		Sub:   idToken.Subject,
		Email: extra.Email,
		Name:  extra.Name,
		Exp:   idToken.Expiry.Unix(),
		Iat:   idToken.IssuedAt.Unix(),
	}, nil
}
