// password.go

// Password hashing and verification. New hashes are bcrypt (cost 12); PHC-encoded
// Argon2id hashes imported from older deployments still verify.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for new hashes.
const BcryptCost = 12

// MinPasswordLength is the minimum rune count for local registration.
const MinPasswordLength = 6

// maxPasswordBytes is bcrypt's input limit; longer passwords are rejected, not truncated.
const maxPasswordBytes = 72

// ErrUnknownHashFormat is returned by VerifyPassword for hashes it cannot parse.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// dummyPasswordHash is a precomputed cost-12 bcrypt hash for timing attack mitigation.
// When a user doesn't exist or has no password, verify against this so both paths take equal time.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// HashPassword returns a bcrypt hash of password with a fresh random salt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks password against encodedHash.
// Returns (false, nil) on mismatch and an error only for malformed hashes.
// A password over bcrypt's limit never matches a bcrypt hash.
func VerifyPassword(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$2a$"), strings.HasPrefix(encodedHash, "$2b$"), strings.HasPrefix(encodedHash, "$2y$"):
		tooLong := len(password) > maxPasswordBytes
		if tooLong {
			// Still pay for the comparison so timing matches a real mismatch.
			password = password[:maxPasswordBytes]
		}
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if tooLong && (err == nil || errors.Is(err, bcrypt.ErrMismatchedHashAndPassword)) {
			return false, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("comparing bcrypt hash: %w", err)
		}
		return true, nil
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return verifyArgon2id(password, encodedHash)
	}
	return false, ErrUnknownHashFormat
}

// verifyArgon2id checks password against a PHC-formatted Argon2id hash.
// Format: $argon2id$v=19$m=65536,t=3,p=2$<base64 salt>$<base64 hash>
// Params come from the hash itself so any cost setting verifies.
func verifyArgon2id(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, fmt.Errorf("invalid argon2id hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parsing hash version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("parsing hash params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decoding hash: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(hash, expected) == 1, nil
}

// NormalizeEmail trims and lowercases an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks format and length constraints; returns error message or empty string.
// RFC 5321: min ~5 chars (a@b.c), max 254.
func ValidateEmail(email string) string {
	if email == "" {
		return "email is required"
	}
	if len(email) < 5 || len(email) > 254 {
		return "invalid email format"
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "invalid email format"
	}
	return ""
}

// ValidatePassword checks length constraints; returns error message or empty string.
func ValidatePassword(password string) string {
	if password == "" {
		return "password is required"
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Sprintf("password must be at least %d characters long", MinPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Sprintf("password must be at most %d bytes long", maxPasswordBytes)
	}
	return ""
}
