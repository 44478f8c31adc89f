// Package auth issues and checks session tokens and hashes passwords.
//
// SESSION FLOW:
//  1. POST /users or POST /users/login → TokenService.Generate signs a JWT
//  2. The service appends {access:"auth", token} to the user's stored tokens
//  3. The raw token goes back once, in the x-auth response header
//  4. Later requests send it back in x-auth; Authenticate verifies it
//  5. DELETE /users/me/token pulls the entry, which revokes the token
//
// WHY STORE A SIGNED TOKEN?
// The signature alone proves the token was issued by us. Keeping a copy on
// the user record adds revocation: a token whose entry was removed fails
// verification even though its signature is still good.
//
// JWT STRUCTURE:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   {"sub":"<user id>","access":"auth","jti":"<xid>","iat":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/sakif/cards/internal/docstore"
)

// MinSecretLength is the shortest signing secret NewTokenService accepts.
const MinSecretLength = 16

// ErrInvalidToken is returned by Parse for every token it rejects.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService signs and parses session tokens with an HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService.
//
// ttl = 0 issues tokens without an expiry: a session lasts until it is
// revoked through logout. A positive ttl adds an "exp" claim.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	if ttl < 0 {
		return nil, errors.New("auth: token TTL must not be negative")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// claims is the JWT payload: the standard claims plus the purpose tag.
type claims struct {
	Access string `json:"access"`
	jwt.RegisteredClaims
}

// Generate signs a token for userID with the given purpose tag.
//
// Every token gets a unique "jti" (an xid), so two logins within the same
// second still produce two different tokens, and logging out of one session
// leaves the other alone.
func (s *TokenService) Generate(userID docstore.ID, access string) (string, error) {
	now := s.now()

	c := claims{
		Access: access,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID.Hex(),
			ID:       xid.New().String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies tokenStr and returns the user id it was issued for.
//
// Checks:
//   - signature is valid and the algorithm is HS256 (rejects "none" and
//     algorithm confusion)
//   - exp, when present, is in the future
//   - the purpose tag equals access
//   - the subject is a well-formed user id
//
// Parse does not know about revocation; the caller must still find the token
// on the user's record.
func (s *TokenService) Parse(tokenStr, access string) (docstore.ID, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return docstore.ID{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return docstore.ID{}, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	if c.Access != access {
		return docstore.ID{}, fmt.Errorf("%w: purpose %q, want %q", ErrInvalidToken, c.Access, access)
	}

	userID, err := docstore.ParseID(c.Subject)
	if err != nil {
		return docstore.ID{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return userID, nil
}
