package schema

import "go.uber.org/fx"

// Module provides the schema Detector.
var Module = fx.Provide(NewDetector)
