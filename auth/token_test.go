package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func mintToken(t *testing.T, secret, subject, email string, ttl time.Duration) string {
	t.Helper()
	claims := &ServiceClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestValidateRoundTrip(t *testing.T) {
	v := NewValidator("test-secret")
	tok := mintToken(t, "test-secret", "user-1", "dev@homegames.io", time.Minute)

	claims, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "dev@homegames.io", claims.Email)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	tok := mintToken(t, "secret-a", "user-1", "", time.Minute)

	_, err := NewValidator("secret-b").Validate(tok)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	v := NewValidator("test-secret")
	tok := mintToken(t, "test-secret", "user-1", "", -time.Minute)

	_, err := v.Validate(tok)
	assert.Error(t, err)
}

func TestMiddlewarePassesThroughWithoutHeader(t *testing.T) {
	v := NewValidator("test-secret")
	rec := httptest.NewRecorder()
	v.Middleware(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/api/requests", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsBadToken(t *testing.T) {
	v := NewValidator("test-secret")
	req := httptest.NewRequest("GET", "/api/requests", nil)
	req.Header.Set("X-Homegames-Jwt", "garbage")
	rec := httptest.NewRecorder()
	v.Middleware(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// With no fallback layer behind it, a missing header must not slip through.
func TestRequireMiddlewareRejectsMissingHeader(t *testing.T) {
	v := NewValidator("test-secret")
	rec := httptest.NewRecorder()
	v.RequireMiddleware(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/api/requests", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireMiddlewareAcceptsValidToken(t *testing.T) {
	v := NewValidator("test-secret")
	req := httptest.NewRequest("GET", "/api/requests", nil)
	req.Header.Set("X-Homegames-Jwt", mintToken(t, "test-secret", "user-1", "", time.Minute))
	rec := httptest.NewRecorder()
	v.RequireMiddleware(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req.Header.Set("X-Homegames-Jwt", "garbage")
	rec = httptest.NewRecorder()
	v.RequireMiddleware(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireMiddlewareExemptPaths(t *testing.T) {
	v := NewValidator("test-secret")
	mw := v.RequireMiddleware(ok)

	for _, path := range []string{"/api/health", "/ws", "/verify_publish_request?code=abc&requestId=r1"} {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestBearerToken(t *testing.T) {
	mw := BearerToken("sekrit")(ok)

	req := httptest.NewRequest("GET", "/api/requests", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("GET", "/api/requests", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("GET", "/api/requests", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerTokenExemptPaths(t *testing.T) {
	mw := BearerToken("sekrit")(ok)

	for _, path := range []string{"/api/health", "/ws", "/verify_publish_request?code=abc&requestId=r1"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
