package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
	"github.com/nkiryanov/userdir/internal/repository"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Verifier checks identifier + password pairs against stored hashes
type Verifier struct {
	users  repository.UserRepo
	hasher PasswordHasher

	// Compared against when there is no user, so a miss costs the same as a wrong password
	dummyHash string
}

func NewVerifier(users repository.UserRepo, hasher PasswordHasher) (*Verifier, error) {
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	dummyHash, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("can't prepare dummy hash. Err: %w", err)
	}

	return &Verifier{users: users, hasher: hasher, dummyHash: dummyHash}, nil
}

// VerifyPassword returns the user if the password matches
// Identifiers with '@' are looked up as email first, others as username first
// Unknown user, user without password and wrong password are all apperrors.ErrInvalidCredentials
func (v *Verifier) VerifyPassword(ctx context.Context, identifier string, password string) (models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		v.burn(password)
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	user, err := v.lookup(ctx, identifier)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		v.burn(password)
		return models.User{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, fmt.Errorf("can't load user. Err: %w", err)
	}

	if !user.HasPassword() {
		v.burn(password)
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	if err := v.hasher.Compare(user.PasswordHash, password); err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

func (v *Verifier) lookup(ctx context.Context, identifier string) (models.User, error) {
	lookups := []func(context.Context, string) (models.User, error){v.users.GetUserByUsername, v.users.GetUserByEmail}
	if strings.Contains(identifier, "@") {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	var err error
	for _, get := range lookups {
		var user models.User
		user, err = get(ctx, identifier)
		if !errors.Is(err, apperrors.ErrUserNotFound) {
			return user, err
		}
	}
	return models.User{}, err
}

func (v *Verifier) burn(password string) {
	_ = v.hasher.Compare(v.dummyHash, password)
}
