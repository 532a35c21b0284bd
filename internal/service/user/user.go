package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
	"github.com/nkiryanov/userdir/internal/repository"
	"github.com/nkiryanov/userdir/internal/service/auth"
	"github.com/nkiryanov/userdir/internal/service/oauth"
)

type CreateParams struct {
	Username string
	Email    string
	Name     string
	Address  string

	// Optional, user without password can sign in only through oauth provider
	Password string
}

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage

	// Clock, replaced in tests
	now func() time.Time
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
		now:     time.Now,
	}
}

func (s *UserService) Create(ctx context.Context, p CreateParams) (models.User, error) {
	var hash string
	if p.Password != "" {
		var err error
		hash, err = s.hasher.Hash(p.Password)
		if err != nil {
			return models.User{}, fmt.Errorf("can't use this as password, Err: %w", err)
		}
	}

	return s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Username:     strings.TrimSpace(p.Username),
		Email:        strings.TrimSpace(p.Email),
		Name:         strings.TrimSpace(p.Name),
		Address:      strings.TrimSpace(p.Address),
		PasswordHash: hash,
		Role:         models.RoleUser,
	})
}

func (s *UserService) Get(ctx context.Context, id int64) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.storage.User().ListUsers(ctx)
}

// Update only the fields that are set
func (s *UserService) Update(ctx context.Context, id int64, p repository.UpdateUserParams) (models.User, error) {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}

	return s.storage.User().UpdateUser(ctx, id, repository.UpdateUserParams{
		Username: trim(p.Username),
		Email:    trim(p.Email),
		Name:     trim(p.Name),
		Address:  trim(p.Address),
	})
}

// Delete user and revoke all its refresh tokens
func (s *UserService) Delete(ctx context.Context, id int64) error {
	return s.storage.InTx(ctx, func(tx repository.Storage) error {
		if err := tx.User().DeleteUser(ctx, id); err != nil {
			return err
		}
		_, err := tx.Refresh().RevokeAllForUser(ctx, id, s.now())
		return err
	})
}

// ResolveOAuth finds or creates the local user for provider identity
// Linked account wins, then a user with the same email, otherwise new user is created
func (s *UserService) ResolveOAuth(ctx context.Context, identity oauth.Identity) (models.User, error) {
	if identity.Provider == "" || identity.Subject == "" {
		return models.User{}, apperrors.ErrOAuthIdentity
	}

	var user models.User
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		link, err := tx.OAuthAccount().Get(ctx, identity.Provider, identity.Subject)
		switch {
		case err == nil:
			user, err = tx.User().GetUserByID(ctx, link.UserID)
			return err
		case !errors.Is(err, apperrors.ErrUserNotFound):
			return err
		}

		user, err = s.findOrCreate(ctx, tx, identity)
		if err != nil {
			return err
		}

		_, err = tx.OAuthAccount().Link(ctx, models.OAuthAccount{
			Provider:       identity.Provider,
			ProviderUserID: identity.Subject,
			UserID:         user.ID,
		})
		return err
	})
	if err != nil {
		return models.User{}, fmt.Errorf("can't resolve oauth user. Err: %w", err)
	}

	return user, nil
}

func (s *UserService) findOrCreate(ctx context.Context, tx repository.Storage, identity oauth.Identity) (models.User, error) {
	if identity.Email != "" {
		user, err := tx.User().GetUserByEmail(ctx, identity.Email)
		if !errors.Is(err, apperrors.ErrUserNotFound) {
			return user, err
		}
	}

	fallback := identity.Provider + "_" + identity.Subject
	candidates := []string{fallback}
	if local, _, ok := strings.Cut(identity.Email, "@"); ok && local != "" {
		candidates = []string{local, fallback}
	}

	var err error
	for _, username := range candidates {
		var user models.User
		// Nested transaction is a savepoint, failed insert does not abort the outer one
		err = tx.InTx(ctx, func(sp repository.Storage) error {
			var createErr error
			user, createErr = sp.User().CreateUser(ctx, repository.CreateUserParams{
				Username: username,
				Email:    identity.Email,
				Name:     identity.Name,
				Role:     models.RoleUser,
			})
			return createErr
		})
		if !errors.Is(err, apperrors.ErrUserAlreadyExists) {
			return user, err
		}
	}

	return models.User{}, err
}
