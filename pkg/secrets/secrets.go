// Package secrets generates and digests the shared secrets behind emergency
// access: the opaque scan token and the 6-digit keypad PIN.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	dErrors "healthpass/pkg/domain-errors"
)

// PINLength is the number of decimal digits in an emergency PIN.
const PINLength = 6

const pinSpace = 1000000

// GenerateToken creates a cryptographically secure random token.
// Returns a base64url string carrying 256 bits of entropy.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GeneratePIN creates a uniformly random 6-digit PIN using rejection
// sampling, so every value in [000000, 999999] is equally likely.
func GeneratePIN() (string, error) {
	// Largest multiple of pinSpace below 2^32; values at or above it would
	// bias the low PINs if taken mod pinSpace.
	const limit = (1 << 32) / pinSpace * pinSpace
	buf := make([]byte, 4)
	for {
		if _, err := rand.Read(buf); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate pin")
		}
		n := binary.BigEndian.Uint32(buf)
		if n >= limit {
			continue
		}
		return fmt.Sprintf("%06d", n%pinSpace), nil
	}
}

// Digest returns the hex SHA3-256 digest of a secret. Stores index
// credentials by digest so neither token nor PIN is retrievable in plain
// form after issuance.
func Digest(secret string) string {
	sum := sha3.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IsPINShaped reports whether the presented value looks like a keypad PIN
// rather than a scan token.
func IsPINShaped(presented string) bool {
	if len(presented) != PINLength {
		return false
	}
	for _, r := range presented {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
