package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/example/freight-matching/internal/apperr"
	"github.com/example/freight-matching/internal/models"
)

// Identity is the authenticated caller extracted from a bearer token. It is
// passed explicitly into every core operation; nothing below the HTTP layer
// reads ambient session state.
type Identity struct {
	ID   string
	Role models.Role
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseBearer extracts and validates the Authorization header.
func ParseBearer(r *http.Request, secret string) (Identity, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return Identity{}, apperr.New(apperr.AuthenticationRequired, "authentication required")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Identity{}, apperr.New(apperr.AuthenticationRequired, "invalid authorization header")
	}
	return parseJWT(strings.TrimSpace(parts[1]), secret)
}

func parseJWT(tokenStr, secret string) (Identity, error) {
	if secret == "" {
		return Identity{}, apperr.New(apperr.AuthenticationRequired, "jwt secret is empty")
	}
	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, apperr.New(apperr.AuthenticationRequired, "unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, apperr.Wrap(apperr.AuthenticationRequired, err, "invalid token")
	}
	c, _ := tok.Claims.(*claims)
	if c == nil || c.Subject == "" || c.Role == "" {
		return Identity{}, apperr.New(apperr.AuthenticationRequired, "invalid claims")
	}
	return Identity{ID: c.Subject, Role: models.Role(strings.ToLower(c.Role))}, nil
}

// SignToken mints an HS256 token for the given identity. The API server does
// not issue tokens itself in production; this exists for tooling and tests.
func SignToken(id Identity, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
