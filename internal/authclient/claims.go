package authclient

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Payload of the access token as the client sees it
type Claims struct {
	UserID    int64
	Role      string
	ExpiresAt time.Time
}

// Claims decodes current access token without verifying its signature
// Good for display only, the server is the one who decides
func (c *Client) Claims() (Claims, error) {
	token := c.Token()
	if token == "" {
		return Claims{}, errors.New("no access token")
	}

	var mc jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &mc); err != nil {
		return Claims{}, fmt.Errorf("can't decode access token. Err: %w", err)
	}

	var claims Claims
	switch sub := mc["sub"].(type) {
	case string:
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return Claims{}, fmt.Errorf("unexpected subject %q", sub)
		}
		claims.UserID = id
	case float64:
		claims.UserID = int64(sub)
	default:
		return Claims{}, errors.New("access token has no subject")
	}

	claims.Role, _ = mc["role"].(string)
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}
