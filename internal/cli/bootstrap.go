package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logpkg "coldtrack-sync/common/logger"
	"coldtrack-sync/internal/config"
	"coldtrack-sync/internal/service"
	"coldtrack-sync/internal/syncer"

	"go.uber.org/zap"
)

const serviceName = "coldtrack-sync"

// runtime is what every command needs before doing work
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
}

func bootstrap() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logpkg.New(logpkg.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: serviceName,
		File:        cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger}, nil
}

// withService runs fn against a fully wired service and closes it afterwards.
// SIGINT/SIGTERM cancel ctx.
func withService(fn func(ctx context.Context, rt *runtime, svc *service.SyncService) error) error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := service.NewSyncService(ctx, rt.cfg, syncer.ProcessLifecycle(), rt.logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(ctx, rt, svc)
}
