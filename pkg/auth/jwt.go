// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/kadirpekel/a2ui/pkg/config"
)

// TokenValidator validates a raw token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// keySource yields the key set tokens are checked against.
type keySource func(ctx context.Context) (jwk.Set, error)

// JWTValidator verifies signature, expiry, issuer and audience.
type JWTValidator struct {
	keys     keySource
	issuer   string
	audience string
}

// NewJWTValidator creates a validator that fetches the JWKS from jwksURL
// and refreshes it at most every refresh. The first fetch happens here so
// a bad URL fails at startup.
func NewJWTValidator(ctx context.Context, jwksURL, issuer, audience string, refresh time.Duration) (*JWTValidator, error) {
	if jwksURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if refresh <= 0 {
		refresh = 15 * time.Minute
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(refresh)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWTValidator{
		keys: func(ctx context.Context) (jwk.Set, error) {
			return cache.Get(ctx, jwksURL)
		},
		issuer:   issuer,
		audience: audience,
	}, nil
}

// NewStaticValidator validates against a fixed key set.
func NewStaticValidator(keys jwk.Set, issuer, audience string) *JWTValidator {
	return &JWTValidator{
		keys: func(context.Context) (jwk.Set, error) {
			return keys, nil
		},
		issuer:   issuer,
		audience: audience,
	}
}

// NewValidatorFromConfig creates the validator described by cfg. It
// returns nil when authentication is disabled.
func NewValidatorFromConfig(ctx context.Context, cfg *config.AuthConfig) (TokenValidator, error) {
	if !cfg.IsEnabled() {
		return nil, nil
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	v, err := NewJWTValidator(ctx, cfg.JWKSURL, cfg.Issuer, cfg.Audience, cfg.RefreshInterval)
	if err != nil {
		return nil, err
	}
	return v, nil
}

var registeredClaims = map[string]bool{
	"sub": true, "email": true, "role": true, "tenant_id": true,
	"iss": true, "aud": true, "exp": true, "iat": true, "nbf": true,
}

// ValidateToken parses and verifies tokenString.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{
		Subject: token.Subject(),
		Custom:  make(map[string]any),
	}
	claims.Email = stringClaim(token, "email")
	claims.Role = stringClaim(token, "role")
	claims.TenantID = stringClaim(token, "tenant_id")

	for iter := token.Iterate(ctx); iter.Next(ctx); {
		pair := iter.Pair()
		key, ok := pair.Key.(string)
		if !ok || registeredClaims[key] {
			continue
		}
		claims.Custom[key] = pair.Value
	}
	return claims, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
