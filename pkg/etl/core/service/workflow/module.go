package workflow

import "go.uber.org/fx"

// Module provides the workflow Engine.
var Module = fx.Provide(NewEngine)
