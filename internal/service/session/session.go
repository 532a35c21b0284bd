package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
	"github.com/nkiryanov/userdir/internal/repository"
)

const (
	DefaultCookieName = "sid"
	DefaultTTL        = 7 * 24 * time.Hour
)

type Config struct {
	// If not set than default is used
	CookieName string
	TTL        time.Duration

	// Set Secure attribute on the cookie (production)
	Secure bool
}

// Server side cookie sessions
// Cookie carries random id, storage knows only its sha-256 digest
type Manager struct {
	storage    repository.Storage
	cookieName string
	ttl        time.Duration
	secure     bool

	// Clock, replaced in tests
	now func() time.Time
}

func New(cfg Config, storage repository.Storage) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Manager{
		storage:    storage,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
		now:        time.Now,
	}
}

// UserID returns id of the user bound to request session
// apperrors.ErrSessionNotFound if there is no cookie, no session or session is anonymous
func (m *Manager) UserID(ctx context.Context, r *http.Request) (int64, error) {
	s, err := m.current(ctx, r)
	if err != nil {
		return 0, err
	}
	if s.UserID == nil {
		return 0, apperrors.ErrSessionNotFound
	}
	return *s.UserID, nil
}

// Login binds the user to a brand new session id, previous session is dropped
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := newID()
	if err != nil {
		return err
	}

	now := m.now()
	err = m.storage.InTx(ctx, func(tx repository.Storage) error {
		if old, ok := m.cookie(r); ok {
			if err := tx.Session().Delete(ctx, hashID(old)); err != nil {
				return err
			}
		}

		_, err := tx.Session().Create(ctx, models.Session{
			IDHash:    hashID(id),
			UserID:    &userID,
			CreatedAt: now,
			ExpiresAt: now.Add(m.ttl),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("can't start session. Err: %w", err)
	}

	m.setCookie(w, id, now.Add(m.ttl))
	return nil
}

// SaveOAuthState stores nonce in the current session, anonymous session is created if needed
func (m *Manager) SaveOAuthState(ctx context.Context, w http.ResponseWriter, r *http.Request, state string) error {
	if id, ok := m.cookie(r); ok {
		err := m.storage.Session().SetOAuthState(ctx, hashID(id), state, m.now())
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperrors.ErrSessionNotFound) {
			return fmt.Errorf("can't save oauth state. Err: %w", err)
		}
	}

	id, err := newID()
	if err != nil {
		return err
	}

	now := m.now()
	_, err = m.storage.Session().Create(ctx, models.Session{
		IDHash:     hashID(id),
		OAuthState: &state,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	})
	if err != nil {
		return fmt.Errorf("can't save oauth state. Err: %w", err)
	}

	m.setCookie(w, id, now.Add(m.ttl))
	return nil
}

// TakeOAuthState returns saved nonce and clears it, so every nonce is accepted once
func (m *Manager) TakeOAuthState(ctx context.Context, r *http.Request) (string, error) {
	id, ok := m.cookie(r)
	if !ok {
		return "", apperrors.ErrSessionNotFound
	}
	return m.storage.Session().TakeOAuthState(ctx, hashID(id), m.now())
}

func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if id, ok := m.cookie(r); ok {
		if err := m.storage.Session().Delete(ctx, hashID(id)); err != nil {
			return fmt.Errorf("can't delete session. Err: %w", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) current(ctx context.Context, r *http.Request) (models.Session, error) {
	id, ok := m.cookie(r)
	if !ok {
		return models.Session{}, apperrors.ErrSessionNotFound
	}
	return m.storage.Session().Get(ctx, hashID(id), m.now())
}

func (m *Manager) cookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (m *Manager) setCookie(w http.ResponseWriter, id string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generate session id. Err: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// PurgeExpired drops sessions that can't be used anymore
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.storage.Session().DeleteExpired(ctx, m.now())
}
