package payout

import "go.uber.org/fx"

var Module = fx.Module("payout",
	fx.Provide(NewGateway),
)
