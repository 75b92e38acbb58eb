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

// Package auth validates JWT bearer tokens for the A2UI server.
//
// Tokens are verified against a JSON Web Key Set, fetched from the
// configured URL and refreshed in the background so key rotation needs no
// restart. Validated claims travel in the request context.
package auth

import (
	"context"
	"errors"
)

// Common authentication errors.
var (
	// ErrUnauthorized is returned when authentication is required but not provided.
	ErrUnauthorized = errors.New("unauthorized: authentication required")

	// ErrForbidden is returned when the caller lacks a required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrInvalidToken is returned when a token cannot be validated.
	ErrInvalidToken = errors.New("invalid token")
)

type contextKey string

const claimsContextKey contextKey = "a2ui_auth_claims"

// Claims are the validated claims of a token.
type Claims struct {
	// Subject identifies the caller (sub claim).
	Subject string `json:"sub"`

	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`

	// Custom holds every claim not mapped above.
	Custom map[string]any `json:"-"`
}

// GetStringClaim returns a custom claim as a string, or "".
func (c *Claims) GetStringClaim(key string) string {
	if c == nil || c.Custom == nil {
		return ""
	}
	s, _ := c.Custom[key].(string)
	return s
}

// HasAnyRole reports whether the caller has one of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	if c == nil {
		return false
	}
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}

// ClaimsFromContext returns the claims stored by the middleware, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}

// ContextWithClaims returns a context carrying claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
