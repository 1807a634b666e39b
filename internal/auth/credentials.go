// Package auth provides the authentication primitives of Volunteer Hub: session tokens,
// credential hashing, temporary credential generation and the capability matrix.
// See internal/middleware/session.go for the request-time logic that uses them.
package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	// TemporaryCredentialLength is the length of generated first-login passwords
	TemporaryCredentialLength = 12

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!@#$%^&*-_+="
)

// GenerateTemporaryCredential returns a random credential of TemporaryCredentialLength
// characters that contains at least one lowercase letter, uppercase letter, digit and symbol.
func GenerateTemporaryCredential() (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	all := lowerChars + upperChars + digitChars + symbolChars

	out := make([]byte, 0, TemporaryCredentialLength)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < TemporaryCredentialLength {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the guaranteed classes are not always in front
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("failed to shuffle credential: %w", err)
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return set[n.Int64()], nil
}

// HashCredential hashes a password with bcrypt for storage
func HashCredential(credential string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}
	return string(hash), nil
}

// CheckCredential reports whether a provided password matches the stored hash
func CheckCredential(provided, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(provided)) == nil
}
