package logger

import "go.uber.org/fx"

// Module installs NewFxLogger as the container's event logger.
var Module = fx.WithLogger(NewFxLogger)
