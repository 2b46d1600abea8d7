// Package userctx carries the authenticated wallet owner through request context.
package userctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/models"
)

type userKey struct{}

// WithUser returns a copy of ctx holding the authenticated user
func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// FromContext returns the user set by auth middleware
// Zero user ids are treated as missing
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey{}).(models.User)
	if !ok || u.ID == uuid.Nil {
		return models.User{}, false
	}
	return u, true
}
