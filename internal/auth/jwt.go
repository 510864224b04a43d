// Package auth provides credential hashing, JWT issuance/validation and the
// bearer-token middleware for the jokes API.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client POSTs email + password to /api/v1/login (or completes Google sign-in)
//  2. Server verifies the password digest and issues a signed access token
//  3. Client sends "Authorization: Bearer <token>" on write requests
//  4. Middleware validates the token and puts the Actor (user id + role) in
//     the request context
//
// ROLE-IN-TOKEN STALENESS:
// The role travels inside the token as a claim so authorization never needs
// a database round-trip. The price: changing a user's role does not affect
// tokens already issued. A demoted admin keeps admin rights until their token
// expires, so the staleness window is bounded by the token TTL (1h default).
// There is no revocation list.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/jokes-api/internal/model"
)

const (
	issuer = "jokes-api"

	// DefaultTokenTTL is how long an access token stays valid.
	DefaultTokenTTL = time.Hour
)

// ErrInvalidToken is wrapped by every Validate failure: expired, malformed,
// badly signed, wrong issuer or missing subject.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
// The same secret must be used for both operations.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and TTL.
// A zero ttl falls back to DefaultTokenTTL.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the lifetime of tokens issued by Issue.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload: registered claims plus the role.
//
// "sub" carries the internal user ID.
type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Claims is what a validated token tells us about its bearer.
type Claims struct {
	UserID    string
	Role      model.Role // empty when the token carried an unknown role
	ExpiresAt time.Time
}

// Actor converts the claims into the request actor.
func (c Claims) Actor() model.Actor {
	return model.Actor{UserID: c.UserID, Role: c.Role}
}

// Issue creates and signs an access token for the given user and role.
//
// Signing algorithm: HS256 (HMAC-SHA256), symmetric, fine for one service
// that both issues and verifies.
func (s *TokenService) Issue(userID string, role model.Role) (string, error) {
	return s.IssueWithDuration(userID, role, s.ttl)
}

// IssueWithDuration creates a token with a custom expiry duration.
// Used in tests to mint already-expired tokens.
func (s *TokenService) IssueWithDuration(userID string, role model.Role, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}

	now := time.Now()
	c := claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid and the algorithm is HS256 (no "none" confusion)
//   - Token is not expired and carries an expiry at all
//   - Issuer matches
//
// A token whose role claim is absent or unknown still validates, but its
// Claims.Role is empty, which the policy package treats as no authority.
func (s *TokenService) Validate(tokenStr string) (Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	if c.Subject == "" {
		return Claims{}, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	role, _ := model.ParseRole(c.Role)

	out := Claims{UserID: c.Subject, Role: role}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
