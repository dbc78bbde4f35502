package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates a bearer token that failed verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotAdmin indicates a valid token without administrator rights.
	ErrNotAdmin = errors.New("administrator role required")
)

// Claims are the JWT claims understood by the admin gate. Tokens issued by the
// HishamOS user service carry user_id plus either a role or the staff flags.
type Claims struct {
	UserID      any    `json:"user_id,omitempty"`
	Role        string `json:"role,omitempty"`
	IsStaff     bool   `json:"is_staff,omitempty"`
	IsSuperuser bool   `json:"is_superuser,omitempty"`
	jwt.RegisteredClaims
}

// ActorID returns the subject, falling back to user_id.
func (c *Claims) ActorID() string {
	if c.Subject != "" {
		return c.Subject
	}
	if c.UserID != nil {
		return fmt.Sprint(c.UserID)
	}
	return ""
}

// IsAdmin reports whether the claims grant administrator access.
func (c *Claims) IsAdmin(adminRole string) bool {
	if c.IsStaff || c.IsSuperuser {
		return true
	}
	return adminRole != "" && c.Role == adminRole
}

// TokenVerifier validates HS256 bearer tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewTokenVerifier creates a verifier for tokens signed with secret. A
// non-empty issuer is enforced on every token.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 30 * time.Second,
	}
}

// Verify parses and validates token.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
