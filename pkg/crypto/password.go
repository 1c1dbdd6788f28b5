package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/bcrypt"
)

// NewToken returns a random, URL-safe secret suitable for one-time links.
func NewToken() string {
	return rand.Text()
}

// HashToken hashes a one-time secret using bcrypt.
func HashToken(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// CompareToken compares plaintext to a hash produced by HashToken.
func CompareToken(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}
