package reader

import "go.uber.org/fx"

// Module provides the reader Registry.
var Module = fx.Provide(NewRegistry)
