package auth

// WHY BCRYPT?
// bcrypt is deliberately slow and salts every hash on its own:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
//
// The salt and cost live inside the hash string, so the stored value is all
// CompareHashAndPassword needs.

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the production bcrypt work factor (~250ms per hash).
const DefaultCost = 12

var (
	// ErrPasswordMismatch is returned by Verify when the password is wrong.
	ErrPasswordMismatch = errors.New("auth: password does not match")

	// ErrPasswordTooLong is returned by Hash for passwords bcrypt would truncate.
	ErrPasswordTooLong = errors.New("auth: password longer than 72 bytes")
)

// MaxPasswordBytes is the longest password bcrypt looks at in full.
const MaxPasswordBytes = 72

// PasswordService hashes and verifies passwords.
//
// The cost is a field so tests can use bcrypt.MinCost (4) and stay fast.
type PasswordService struct {
	cost  int
	dummy []byte
}

// NewPasswordService creates a PasswordService. cost 0 means DefaultCost.
func NewPasswordService(cost int) (*PasswordService, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	// A hash of a random-looking string with the same cost as real hashes.
	// VerifyDummy compares against it so an unknown email costs as much
	// time as a wrong password.
	dummy, err := bcrypt.GenerateFromPassword([]byte("unknown-user-placeholder"), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: preparing dummy hash: %w", err)
	}

	return &PasswordService{cost: cost, dummy: dummy}, nil
}

// Hash returns the bcrypt hash of plaintext.
//
// bcrypt only looks at the first 72 bytes; longer passwords are rejected
// instead of silently truncated.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks plaintext against a stored hash. A wrong password returns
// ErrPasswordMismatch; a malformed hash returns a different error.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	if err != nil {
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// VerifyDummy spends the time of one Verify call and always fails.
// Login calls it when the email is unknown.
func (p *PasswordService) VerifyDummy(plaintext string) error {
	_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(plaintext))
	return ErrPasswordMismatch
}
