package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/a2ui/pkg/config"
)

const (
	testIssuer   = "https://issuer.test"
	testAudience = "a2ui"
	testKeyID    = "test-key"
)

func newKeyPair(t testing.TB) (*rsa.PrivateKey, jwk.Set) {
	t.Helper()
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	public, err := jwk.FromRaw(&private.PublicKey)
	require.NoError(t, err)
	require.NoError(t, public.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, public.Set(jwk.AlgorithmKey, jwa.RS256))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(public))
	return private, set
}

func signToken(t testing.TB, private *rsa.PrivateKey, issuer string, ttl time.Duration, claims map[string]any) string {
	t.Helper()
	tok := jwt.New()
	require.NoError(t, tok.Set(jwt.IssuerKey, issuer))
	require.NoError(t, tok.Set(jwt.AudienceKey, testAudience))
	require.NoError(t, tok.Set(jwt.SubjectKey, "user-1"))
	require.NoError(t, tok.Set(jwt.IssuedAtKey, time.Now().Add(-time.Minute)))
	require.NoError(t, tok.Set(jwt.ExpirationKey, time.Now().Add(ttl)))
	for k, v := range claims {
		require.NoError(t, tok.Set(k, v))
	}

	key, err := jwk.FromRaw(private)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}

// ===== VALIDATOR =====

func TestJWTValidator(t *testing.T) {
	private, set := newKeyPair(t)
	other, _ := newKeyPair(t)
	v := NewStaticValidator(set, testIssuer, testAudience)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid", token: signToken(t, private, testIssuer, time.Hour, nil)},
		{name: "expired", token: signToken(t, private, testIssuer, -time.Minute, nil), wantErr: true},
		{name: "wrong issuer", token: signToken(t, private, "https://evil.test", time.Hour, nil), wantErr: true},
		{name: "wrong key", token: signToken(t, other, testIssuer, time.Hour, nil), wantErr: true},
		{name: "garbage", token: "not.a.token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.ValidateToken(context.Background(), tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", claims.Subject)
		})
	}
}

func TestJWTValidator_Claims(t *testing.T) {
	private, set := newKeyPair(t)
	v := NewStaticValidator(set, testIssuer, testAudience)

	token := signToken(t, private, testIssuer, time.Hour, map[string]any{
		"email":     "a@b.test",
		"role":      "admin",
		"tenant_id": "acme",
		"team":      "ui",
	})

	claims, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.test", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "ui", claims.GetStringClaim("team"))
	assert.NotContains(t, claims.Custom, "iss")
	assert.True(t, claims.HasAnyRole("viewer", "admin"))
	assert.False(t, claims.HasAnyRole("viewer"))
}

func TestNewJWTValidator_FetchesJWKS(t *testing.T) {
	private, set := newKeyPair(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := NewValidatorFromConfig(ctx, &config.AuthConfig{
		Enabled:  true,
		JWKSURL:  srv.URL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	require.NoError(t, err)
	require.NotNil(t, v)

	_, err = v.ValidateToken(ctx, signToken(t, private, testIssuer, time.Hour, nil))
	assert.NoError(t, err)
}

func TestNewValidatorFromConfig(t *testing.T) {
	v, err := NewValidatorFromConfig(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, v)

	v, err = NewValidatorFromConfig(context.Background(), &config.AuthConfig{})
	assert.NoError(t, err)
	assert.Nil(t, v)

	_, err = NewValidatorFromConfig(context.Background(), &config.AuthConfig{Enabled: true})
	assert.Error(t, err)
}

// ===== MIDDLEWARE =====

func TestMiddleware(t *testing.T) {
	private, set := newKeyPair(t)
	token := signToken(t, private, testIssuer, time.Hour, map[string]any{"role": "viewer"})

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(NewStaticValidator(set, testIssuer, testAudience), "/health")(next)

	tests := []struct {
		name       string
		method     string
		target     string
		header     string
		wantStatus int
		wantClaims bool
	}{
		{name: "bearer header", target: "/message", header: "Bearer " + token, wantStatus: http.StatusNoContent, wantClaims: true},
		{name: "query token", target: "/stream?access_token=" + token, wantStatus: http.StatusNoContent, wantClaims: true},
		{name: "excluded path", target: "/health", wantStatus: http.StatusNoContent},
		{name: "preflight", method: http.MethodOptions, target: "/message", wantStatus: http.StatusNoContent},
		{name: "missing", target: "/message", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/message", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", target: "/message", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
			if tt.wantClaims {
				require.NotNil(t, seen)
				assert.Equal(t, "user-1", seen.Subject)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		claims *Claims
		want   int
	}{
		{name: "no claims", want: http.StatusUnauthorized},
		{name: "wrong role", claims: &Claims{Role: "viewer"}, want: http.StatusForbidden},
		{name: "admin", claims: &Claims{Role: "admin"}, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.claims != nil {
				req = req.WithContext(ContextWithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
