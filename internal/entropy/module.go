package entropy

import "go.uber.org/fx"

// Module provides the configured entropy Source
var Module = fx.Module("entropy",
	fx.Provide(New),
)
