// -- cmd/serve.go --
package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/internal/observability"
	"github.com/xkilldash9x/accountsmith/internal/server"
)

// newServeCmd creates the `serve` command, which hosts the operator API
// until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the operator dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := observability.GetLogger()
			defer observability.Sync()

			coord, accounts, err := assemble(appConfig, logger)
			if err != nil {
				return err
			}

			srv := server.New(appConfig.Server, coord, accounts, logger)
			serveErr := srv.Start(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownGrace)
			defer cancel()
			if err := coord.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Coordinator did not shut down cleanly", zap.Error(err))
			}
			return serveErr
		},
	}
}
