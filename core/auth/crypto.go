package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const otpDigits = 6

var (
	otpMax = big.NewInt(1_000_000)

	randIntFunc = rand.Int // mockable
)

// HashPassword applies a salted, slow hash with a fixed work factor; the
// output embeds the salt and parameters.
func HashPassword(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
}

// VerifyPassword reports whether plaintext matches hash. A malformed hash is
// treated as a mismatch, never an error.
func VerifyPassword(plaintext string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// GenerateOTP draws a zero-padded 6-digit code from a cryptographically
// secure random source. Codes are keyed per email; collisions across emails
// are harmless and not checked.
func GenerateOTP() (string, error) {
	n, err := randIntFunc(rand.Reader, otpMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
