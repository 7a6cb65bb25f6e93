// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/api/schemas"
	"github.com/xkilldash9x/accountsmith/internal/observability"
)

// newRunCmd creates the `run` command: a one-shot batch without the HTTP
// surface. Challenges that need a human cannot be solved in this mode and
// time out; it suits flows where auto-solve usually clears them.
func newRunCmd() *cobra.Command {
	var count int

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Creates a batch of accounts and prints the results as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := observability.GetLogger()
			defer observability.Sync()

			coord, _, err := assemble(appConfig, logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownGrace)
				defer cancel()
				if err := coord.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Coordinator did not shut down cleanly", zap.Error(err))
				}
			}()

			jobID, err := coord.Submit(count)
			if err != nil {
				return err
			}
			logger.Info("Batch started", zap.String("job_id", jobID), zap.Int("count", count))

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			var progress schemas.JobProgress
			for progress.Status != schemas.JobComplete {
				select {
				case <-ctx.Done():
					return fmt.Errorf("interrupted with %d/%d attempts finished", progress.Created, count)
				case <-ticker.C:
				}
				if progress, err = coord.Poll(jobID); err != nil {
					return err
				}
			}

			out, err := json.MarshalIndent(progress, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	runCmd.Flags().IntVar(&count, "count", 5, "number of accounts to create")
	return runCmd
}
