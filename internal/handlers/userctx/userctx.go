package userctx

import (
	"context"

	"github.com/nkiryanov/userdir/internal/models"
)

// Scheme that authenticated the request
type Scheme string

const (
	SchemeSession Scheme = "session"
	SchemeBearer  Scheme = "bearer"
	SchemeAPIKey  Scheme = "apikey"
	SchemeBasic   Scheme = "basic"
)

// Authenticated caller
// API key callers are machines, they have no user id
type Identity struct {
	UserID int64
	Role   models.Role
	Scheme Scheme
}

type ctxKey string

const identityKey ctxKey = "identity"

// Create a new context with the identity
func New(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Extract the identity from the context
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
