package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coldtrack-sync/internal/service"
	"coldtrack-sync/internal/syncer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ServeCmd runs the scheduler, the listeners and the HTTP API until signalled
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync scheduler and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap()
			if err != nil {
				return err
			}
			log := rt.logger
			defer log.Sync()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			svc, err := service.NewSyncService(ctx, rt.cfg, syncer.ProcessLifecycle(), log)
			if err != nil {
				log.Error("Failed to create sync service", zap.Error(err))
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				if err := svc.Start(ctx); err != nil {
					errChan <- err
				}
			}()

			var runErr error
			select {
			case sig := <-sigChan:
				log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
			case runErr = <-errChan:
				log.Error("Service error", zap.Error(runErr))
			}
			cancel()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			if err := svc.Stop(stopCtx); err != nil {
				log.Error("Error stopping service", zap.Error(err))
			}
			return runErr
		},
	}
}
