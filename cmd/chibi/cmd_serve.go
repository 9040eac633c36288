package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/gateway"
	"github.com/fjod/chibi-storefront/internal/storefront"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the storefront session as a local REST gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != "" {
			cfg.Gateway.HTTPPort = servePort
		}
		ctx := cmd.Context()

		app, err := storefront.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				log.Warn("closing storefront failed", zap.Error(err))
			}
		}()
		if err := app.Start(ctx); err != nil {
			return err
		}
		return gateway.Serve(ctx, app, log)
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP port (overrides config)")
}
