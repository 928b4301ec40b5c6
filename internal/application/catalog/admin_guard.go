package catalog

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// adminTokenKey is the context key an admin-facing caller (bot command
// handler, future HTTP admin API) stores its bearer token under before
// invoking a mutating CategoryService/AchievementService method.
type adminTokenKey struct{}

// WithAdminToken returns a copy of ctx carrying the caller's admin token, for
// use by whatever surface terminates the admin request. Nothing in this
// repository calls it.
func WithAdminToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, adminTokenKey{}, token)
}

// ErrUnauthorized is returned by a mutating method when ctx carries no token,
// or a token that does not match the configured admin token hash.
var ErrUnauthorized = errors.New("catalog: caller is not authorized to mutate the catalog")

// AdminGuard checks a caller's admin token against a bcrypt hash before a
// catalog mutation proceeds. A nil *AdminGuard authorizes every call, so a
// service that never has one configured behaves exactly as if admin auth
// didn't exist — the deployment default until an operator sets
// ADMIN_TOKEN_HASH.
type AdminGuard struct {
	tokenHash []byte
}

// NewAdminGuard wraps a bcrypt hash of the admin token, as produced by
// bcrypt.GenerateFromPassword at provisioning time.
func NewAdminGuard(tokenHash []byte) *AdminGuard {
	return &AdminGuard{tokenHash: tokenHash}
}

// Authorize compares ctx's admin token against the guard's hash.
func (g *AdminGuard) Authorize(ctx context.Context) error {
	if g == nil {
		return nil
	}
	token, _ := ctx.Value(adminTokenKey{}).(string)
	if token == "" {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(g.tokenHash, []byte(token)); err != nil {
		return ErrUnauthorized
	}
	return nil
}
