package events

import "go.uber.org/fx"

var Module = fx.Module("events.hub",
	fx.Provide(NewHub),
)
