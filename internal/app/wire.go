//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"github.com/satter0827/market-decision-engine/internal/config"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	panic(wire.Build(
		provideAppBuilder,
		wire.Bind(new(appBuilderDeps), new(*AppBuilder)),
		provideAppFromBuilder,
	))
}
