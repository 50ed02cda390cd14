package ports

import (
	"context"
	"errors"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// ErrUserNotFound is returned by IdentityProvider.FindUser for unknown ids.
var ErrUserNotFound = errors.New("user not found")

// IdentityProvider resolves acting users and their roles.
type IdentityProvider interface {
	FindUser(ctx context.Context, id string) (*model.User, error)
	// UsersWithRoles returns every user holding one of roles, in directory order.
	UsersWithRoles(ctx context.Context, roles ...model.Role) ([]model.User, error)
}
