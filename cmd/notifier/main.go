// Command notifier emails order receipts published by the API server.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/kart-storefront/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadNotifierConfig()
		if err != nil {
			return err
		}
		return appkg.RunNotifier(ctx, lg, m, cfg)
	})
}
