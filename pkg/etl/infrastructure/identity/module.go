package identity

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
)

// Module provides the configured user directory as the ports.IdentityProvider.
var Module = fx.Provide(fx.Annotate(NewStaticDirectory, fx.As(new(ports.IdentityProvider))))
