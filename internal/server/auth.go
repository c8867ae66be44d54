package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	serrors "github.com/x5uw/SyncRoom/internal/errors"
)

// ErrInvalidToken is returned for bearer tokens that are not valid principal
// tokens.
var ErrInvalidToken = errors.New("invalid token")

// Authenticator verifies HS256 principal tokens. The principal id is the
// token's subject.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator for secret. An empty secret
// rejects every token.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Verify returns the principal id carried by token.
func (a *Authenticator) Verify(token string) (string, error) {
	if len(a.secret) == 0 || token == "" {
		return "", ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Issue signs a token for principalID valid for ttl.
func (a *Authenticator) Issue(principalID string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrInvalidToken
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principalID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

type ctxKey int

const (
	principalKey ctxKey = iota
	bearerKey
)

// Middleware resolves the caller. A bearer that verifies sets the principal.
// A principal token that fails verification is rejected with 401; any other
// bearer is kept as a provider access token for pass-through routes.
// WebSocket clients may send the token as ?access_token=.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		principal, err := a.Verify(token)
		switch {
		case err == nil:
			ctx = context.WithValue(ctx, principalKey, principal)
		case isPrincipalToken(token):
			log.Debugw("rejecting principal token", "path", r.URL.Path)
			writeError(w, r, serrors.ErrNotAuthenticated)
			return
		default:
			ctx = context.WithValue(ctx, bearerKey, token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePrincipal rejects requests without an authenticated principal.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Principal(r.Context()) == "" {
			writeError(w, r, serrors.ErrNotAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Principal returns the authenticated principal id, or "".
func Principal(ctx context.Context) string {
	p, _ := ctx.Value(principalKey).(string)
	return p
}

// ProviderBearer returns a provider access token sent in place of a
// principal token, or "".
func ProviderBearer(ctx context.Context) string {
	t, _ := ctx.Value(bearerKey).(string)
	return t
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// isPrincipalToken reports whether token is shaped like a signed principal
// token, regardless of whether it verifies.
func isPrincipalToken(token string) bool {
	_, _, err := jwt.NewParser().ParseUnverified(token, &jwt.RegisteredClaims{})
	return err == nil
}
