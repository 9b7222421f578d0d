package security

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// refreshHashCost is the bcrypt cost for refresh token hashes. Lower than the
// password cost: refresh tokens have far more entropy than passwords, and the
// comparison runs inside the rotation transaction while the row lock is held.
const refreshHashCost = 10

// HashRefreshToken returns a salted, one-way bcrypt hash of the refresh token,
// suitable for storage in the sessions table. The token is pre-digested with
// SHA-256 because bcrypt only consumes the first 72 bytes of input and JWTs
// are longer than that.
func HashRefreshToken(token string) (string, error) {
	digest := sha256.Sum256([]byte(token))
	b, err := bcrypt.GenerateFromPassword(digest[:], refreshHashCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CompareRefreshToken reports whether the raw refresh token matches the
// stored hash. The comparison is constant-time and deliberately slow.
func CompareRefreshToken(token, storedHash string) bool {
	digest := sha256.Sum256([]byte(token))
	return bcrypt.CompareHashAndPassword([]byte(storedHash), digest[:]) == nil
}
