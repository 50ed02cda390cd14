// Package identity provides the user directory behind ports.IdentityProvider.
package identity

import (
	"context"
	"fmt"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
)

// StaticDirectory serves the users listed in the configuration.
type StaticDirectory struct {
	users []model.User
	byID  map[string]model.User
}

// NewStaticDirectory indexes cfg.ETL.Users. A later duplicate id overrides an earlier one.
func NewStaticDirectory(cfg *config.Config) *StaticDirectory {
	d := &StaticDirectory{byID: make(map[string]model.User, len(cfg.ETL.Users))}
	for _, u := range cfg.ETL.Users {
		if _, dup := d.byID[u.ID]; !dup {
			d.users = append(d.users, u)
		}
		d.byID[u.ID] = u
	}
	return d
}

func (d *StaticDirectory) FindUser(ctx context.Context, id string) (*model.User, error) {
	u, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrUserNotFound, id)
	}
	return &u, nil
}

func (d *StaticDirectory) UsersWithRoles(ctx context.Context, roles ...model.Role) ([]model.User, error) {
	wanted := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}
	out := []model.User{}
	for _, u := range d.users {
		if current := d.byID[u.ID]; wanted[current.Role] {
			out = append(out, current)
		}
	}
	return out, nil
}

var _ ports.IdentityProvider = (*StaticDirectory)(nil)
