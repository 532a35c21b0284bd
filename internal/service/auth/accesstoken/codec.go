package accesstoken

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/userdir/internal/apperrors"
	"github.com/nkiryanov/userdir/internal/models"
)

const (
	DefaultTTL    = 15 * time.Minute
	signingMethod = "HS256"
)

type Config struct {
	// Secret key to sign access tokens
	// Required to be set
	SecretKey string

	// If not set than DefaultTTL is used
	TTL time.Duration
}

// Codec signs and verifies short lived access tokens
type Codec struct {
	key []byte
	alg jwt.SigningMethod
	ttl time.Duration

	// Clock, replaced in tests
	now func() time.Time
}

func New(cfg Config) (*Codec, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Codec{
		key: []byte(cfg.SecretKey),
		alg: jwt.GetSigningMethod(signingMethod),
		ttl: cfg.TTL,
		now: time.Now,
	}, nil
}

func (c *Codec) TTL() time.Duration {
	return c.ttl
}

type accessClaims struct {
	jwt.RegisteredClaims

	// Shadows RegisteredClaims.Subject, user id is not a string in every issuer
	Subject subject     `json:"sub"`
	Role    models.Role `json:"role"`
}

func (c accessClaims) GetSubject() (string, error) {
	return strconv.FormatInt(int64(c.Subject), 10), nil
}

func (c *Codec) Sign(userID int64, role models.Role) (models.IssuedToken, error) {
	if userID <= 0 {
		return models.IssuedToken{}, fmt.Errorf("user id must be positive, got %d", userID)
	}

	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(c.ttl)

	token := jwt.NewWithClaims(c.alg, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Subject: subject(userID),
		Role:    role,
	})

	signed, err := token.SignedString(c.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify signature, algorithm and expiration
// Every failure wraps apperrors.ErrInvalidToken
func (c *Codec) Verify(token string) (models.AccessClaims, error) {
	claims := &accessClaims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return c.key, nil
		},
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return models.AccessClaims{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	if claims.Subject <= 0 {
		return models.AccessClaims{}, fmt.Errorf("%w: subject is missing", apperrors.ErrInvalidToken)
	}

	verified := models.AccessClaims{
		UserID:    int64(claims.Subject),
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		verified.IssuedAt = claims.IssuedAt.Time
	}

	return verified, nil
}

var ttlPattern = regexp.MustCompile(`^(\d+)([smhd])?$`)

// ParseTTL reads durations like "15m", "7d", "2h", "10s" or "3600" (seconds)
// Anything else falls back to DefaultTTL
func ParseTTL(value string) time.Duration {
	d, err := ParseDuration(value)
	if err != nil {
		return DefaultTTL
	}
	return d
}

// ParseDuration is strict flavour of ParseTTL
func ParseDuration(value string) (time.Duration, error) {
	m := ttlPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}

	unit := time.Second
	switch m[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}

	if n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("duration %q is too long", value)
	}

	return time.Duration(n) * unit, nil
}
