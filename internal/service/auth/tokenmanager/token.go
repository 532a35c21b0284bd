package tokenmanager

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
	"github.com/nkiryanov/userdir/internal/repository"
)

const (
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// Raw refresh token length in bytes (before hex encoding)
	tokenBytes = 32
)

type Config struct {
	// If not set than default is used
	RefreshTTL time.Duration
}

// Manager owns the refresh token lifecycle: issue, rotate and revoke
// Only sha-256 digests of the raw tokens reach the storage
type Manager struct {
	storage repository.Storage
	ttl     time.Duration

	// Clock, replaced in tests
	now func() time.Time
}

func New(cfg Config, storage repository.Storage) (*Manager, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	return &Manager{
		storage: storage,
		ttl:     cfg.RefreshTTL,
		now:     time.Now,
	}, nil
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// HashToken returns sha-256 hex digest of the raw token
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue new refresh token for the user and return its raw value
func (m *Manager) Issue(ctx context.Context, userID int64) (models.IssuedToken, error) {
	return m.issue(ctx, m.storage.Refresh(), userID)
}

func (m *Manager) issue(ctx context.Context, repo repository.RefreshTokenRepo, userID int64) (models.IssuedToken, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while generate refresh token. Err: %w", err)
	}
	raw := hex.EncodeToString(b)

	now := m.now()
	saved, err := repo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	})
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: raw, ExpiresAt: saved.ExpiresAt}, nil
}

// Rotate revokes the presented token and issues a new one for the same user
// The token row stays locked till commit, so of two concurrent rotations only one succeeds
func (m *Manager) Rotate(ctx context.Context, oldRaw string, expectedUserID int64) (models.IssuedToken, error) {
	var issued models.IssuedToken

	err := m.storage.InTx(ctx, func(s repository.Storage) error {
		repo := s.Refresh()

		old, err := repo.GetForUpdate(ctx, HashToken(oldRaw))
		if err != nil {
			return refreshError(err)
		}

		now := m.now()
		switch {
		case old.UserID != expectedUserID:
			return fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, apperrors.ErrRefreshTokenOwner)
		case old.IsRevoked():
			return fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, apperrors.ErrRefreshTokenRevoked)
		case old.IsExpired(now):
			return fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, apperrors.ErrRefreshTokenExpired)
		}

		if _, err := repo.Revoke(ctx, old.TokenHash, now); err != nil {
			return err
		}

		issued, err = m.issue(ctx, repo, old.UserID)
		return err
	})

	return issued, err
}

// Owner returns id of the user the active token belongs to
func (m *Manager) Owner(ctx context.Context, raw string) (int64, error) {
	token, err := m.storage.Refresh().Get(ctx, HashToken(raw))
	if err != nil {
		return 0, refreshError(err)
	}

	switch {
	case token.IsRevoked():
		return 0, fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, apperrors.ErrRefreshTokenRevoked)
	case token.IsExpired(m.now()):
		return 0, fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, apperrors.ErrRefreshTokenExpired)
	}

	return token.UserID, nil
}

// Revoke the token if it is active. Unknown, revoked or empty tokens are ignored
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}

	_, err := m.storage.Refresh().Revoke(ctx, HashToken(raw), m.now())
	return err
}

func refreshError(err error) error {
	if errors.Is(err, apperrors.ErrRefreshTokenNotFound) {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, err)
	}
	return err
}
