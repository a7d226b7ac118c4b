package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims holds the validated claims from a Homegames service JWT.
type ServiceClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Validator validates HS256 JWTs minted by the Homegames auth service.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate parses and validates a service JWT string.
func (v *Validator) Validate(tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware validates the X-Homegames-Jwt header. Requests without the
// header are passed through to allow bearer token fallback; pair it with
// BearerToken, or use RequireMiddleware when no fallback is configured.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Homegames-Jwt")
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := v.Validate(token); err != nil {
			http.Error(w, "invalid service token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireMiddleware validates the X-Homegames-Jwt header and rejects requests
// without one, except on the exempt paths. Used when the JWT is the only
// configured auth layer.
func (v *Validator) RequireMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-Homegames-Jwt")
		if token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := v.Validate(token); err != nil {
			http.Error(w, "invalid service token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// exempt paths reachable without credentials: the email confirmation link,
// the websocket upgrade, and the health probe.
func exempt(path string) bool {
	return path == "/api/health" || path == "/ws" || strings.HasPrefix(path, "/verify_publish_request")
}

// BearerToken returns middleware requiring Authorization: Bearer <token>.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(auth[7:]), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
