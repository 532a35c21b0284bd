package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt password hasher
// Will be used as default one if user not provide it's own
type BcryptHasher struct {
	// If zero bcrypt.DefaultCost is used
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(hash), err
}

func (h BcryptHasher) Compare(hashedPassword string, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
