package metrics

import "go.uber.org/fx"

// Module provides the (possibly nil) Recorder
var Module = fx.Module("metrics",
	fx.Provide(New),
)
