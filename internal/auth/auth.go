// Package auth is the boundary to the authentication provider. Tokens are
// HS256 JWTs whose userId (or sub) claim names the caller; the rest of the
// service trusts that identifier as-is.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kazz187/prepboard/pkg/cerr"
	"github.com/kazz187/prepboard/pkg/clog"
)

type userIDKey struct{}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// RequireUserID returns the authenticated caller or an Unauthenticated error.
func RequireUserID(ctx context.Context) (string, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", cerr.NewError(cerr.Unauthenticated, "authentication required", nil)
	}
	return id, nil
}

type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify parses token and returns the user it identifies.
func (v *Verifier) Verify(token string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return "", cerr.NewError(cerr.Unauthenticated, "invalid token", err)
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", cerr.NewError(cerr.Unauthenticated, "token carries no user", nil)
	}
	return userID, nil
}

// Issue mints a token for userID. A zero ttl produces a token without expiry.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := v.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// TokenFromRequest reads a bearer token from the Authorization header, then
// falls back to the token query parameter used by WebSocket clients.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return strings.TrimSpace(h)
	}
	return r.URL.Query().Get("token")
}

// Authenticate resolves the caller of r.
func (v *Verifier) Authenticate(r *http.Request) (string, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return "", cerr.NewError(cerr.Unauthenticated, "authentication required", nil)
	}
	return v.Verify(token)
}

// NewChiMiddleware authenticates every request below it. It must run inside
// cerr.NewJSONEnvelopeChiMiddleware so failures render as envelopes.
func (v *Verifier) NewChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := v.Authenticate(r)
			if err != nil {
				cerr.SetJSONError(r.Context(), err)
				return
			}
			ctx := ContextWithUserID(r.Context(), userID)
			clog.AddUser(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRawChiMiddleware is NewChiMiddleware for routes that write their own
// responses, such as file downloads.
func (v *Verifier) NewRawChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := v.Authenticate(r)
			if err != nil {
				cerr.WriteJSONError(r.Context(), w, err)
				return
			}
			ctx := ContextWithUserID(r.Context(), userID)
			clog.AddUser(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
