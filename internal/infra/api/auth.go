package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"linkhub-membership/internal/domain"
)

// AuthManager verifies HS256 bearer tokens issued by the main app. Token
// issuance lives there; Mint exists for tooling and tests.
type AuthManager struct {
	secret []byte
}

func NewAuthManager(secret string) *AuthManager {
	return &AuthManager{secret: []byte(secret)}
}

type UserClaims struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *UserClaims) UserIDOrSubject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

func (a *AuthManager) Mint(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*UserClaims, error) {
	tok, ok := bearer(r)
	if !ok {
		return nil, errors.New("missing token")
	}
	return a.parse(tok)
}

func (a *AuthManager) parse(tok string) (*UserClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	claims := &UserClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserIDOrSubject() == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func bearer(r *http.Request) (string, bool) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(hdr[7:])
	return tok, tok != ""
}

// RequireAdminKey guards operator endpoints with a static bearer key.
func RequireAdminKey(apiKey string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				writeError(w, r, domain.NewReason(domain.ErrUnauthorized, "admin_disabled", "Admin API is not configured."), false, nil)
				return
			}
			tok, ok := bearer(r)
			if !ok || subtle.ConstantTimeCompare([]byte(tok), []byte(apiKey)) != 1 {
				writeError(w, r, domain.NewReason(domain.ErrUnauthorized, "unauthorized", "Invalid admin key."), false, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
