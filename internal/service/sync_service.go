package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coldtrack-sync/common/database"
	commonmqtt "coldtrack-sync/common/mqtt"
	commonredis "coldtrack-sync/common/redis"
	"coldtrack-sync/internal/backfill"
	"coldtrack-sync/internal/cache"
	"coldtrack-sync/internal/config"
	httpapi "coldtrack-sync/internal/http"
	"coldtrack-sync/internal/identity"
	"coldtrack-sync/internal/livestore"
	"coldtrack-sync/internal/notify"
	"coldtrack-sync/internal/repository"
	"coldtrack-sync/internal/syncer"

	"go.uber.org/zap"
)

// ErrLiveStoreDisabled live store settings are missing
var ErrLiveStoreDisabled = errors.New("live store is not configured")

// ErrUserSyncDisabled identity provider settings are missing
var ErrUserSyncDisabled = errors.New("user sync is not configured")

// SyncService wires the warehouse, the live store and the optional Redis and
// MQTT sides into the scheduler, the backfill orchestrator and the HTTP API.
type SyncService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *commonredis.Client
	mqttClient  *commonmqtt.Client

	live      *livestore.Client
	engine    *syncer.Engine
	users     *syncer.UserSyncer
	scheduler *syncer.Scheduler
	backfill  *backfill.Orchestrator
	server    *Server

	// lifecycle shared by every scheduler this process builds
	lifecycle *syncer.Lifecycle
}

// NewSyncService connects to the warehouse (required) and builds every
// component the configuration allows. A missing live store configuration is
// logged and leaves the scheduler and backfill disabled; the HTTP API still
// serves health and status. A nil lifecycle means syncer.ProcessLifecycle().
func NewSyncService(ctx context.Context, cfg *config.Config, lifecycle *syncer.Lifecycle, logger *zap.Logger) (*SyncService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if lifecycle == nil {
		lifecycle = syncer.ProcessLifecycle()
	}
	s := &SyncService{
		config:    cfg,
		logger:    logger,
		db:        db,
		lifecycle: lifecycle,
	}

	var kv cache.KVStore = cache.NewMemoryKVStore()
	var runs syncer.RunPublisher = notify.NopRuns{}
	if cfg.Redis.Enabled {
		client := commonredis.NewRedisClient(&cfg.Redis.RedisConfig)
		if err := commonredis.Ping(ctx, client); err != nil {
			_ = client.Close()
			database.Close(db)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redisClient = client
		kv = cache.NewRedisKVStore(client)
		runs = notify.NewRunPublisher(client, cfg.Sync.RunStream, cfg.Sync.RunStreamMaxLen, logger)
	} else {
		logger.Info("Redis disabled, using in-memory caches")
	}

	var notifier syncer.Notifier = notify.Nop{}
	if cfg.MQTT.Enabled {
		client, err := commonmqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT unavailable, event notices disabled", zap.Error(err))
		} else {
			s.mqttClient = client
			notifier = notify.NewMQTTNotifier(client, cfg.Sync.EventTopicPrefix, client.QoS(), logger)
		}
	}

	cameras := repository.NewCameraRepository(db, logger)
	events := repository.NewEventRepository(db, logger)
	readings := repository.NewReadingRepository(db, logger)
	summaries := repository.NewSummaryRepository(db, logger)
	usersRepo := repository.NewUserRepository(db, logger)

	s.engine = syncer.NewEngine(
		cameras,
		syncer.NewReconciler(events, notifier, logger),
		syncer.NewIngestor(readings, logger),
		logger,
	)

	if err := cfg.ValidateIdentity(); err != nil {
		logger.Info("User sync disabled", zap.Error(err))
	} else {
		idClient, err := identity.NewClient(ctx, identity.Options{
			ProjectID:       cfg.Firebase.ProjectID,
			CredentialsPath: cfg.Firebase.CredentialsPath,
			Timeout:         cfg.Firebase.Timeout,
		}, logger)
		if err != nil {
			logger.Error("Failed to create identity client, user sync disabled", zap.Error(err))
		} else {
			s.users = syncer.NewUserSyncer(idClient, usersRepo, logger)
		}
	}

	if err := cfg.ValidateLiveStore(); err != nil {
		logger.Error("Live store not configured, scheduler and backfill disabled", zap.Error(err))
	} else {
		live, err := livestore.NewClient(ctx, livestore.Options{
			DatabaseURL:     cfg.Firebase.DatabaseURL,
			CredentialsPath: cfg.Firebase.CredentialsPath,
			DatabaseSecret:  cfg.Firebase.DatabaseSecret,
			Timeout:         cfg.Firebase.Timeout,
			Location:        cfg.Sync.Location,
		}, logger)
		if err != nil {
			logger.Error("Failed to create live store client, scheduler and backfill disabled", zap.Error(err))
		} else {
			s.live = live
			s.buildSyncers(kv, runs, summaries)
		}
	}

	router := httpapi.NewRouter(cfg.HTTP.AdminToken, logger)
	var b httpapi.Backfiller
	if s.backfill != nil {
		b = s.backfill
	}
	var status httpapi.SchedulerStatus
	if s.scheduler != nil {
		status = s.scheduler
	}
	router.RegisterSyncRoutes(httpapi.NewSyncHandler(b, status, logger))
	s.server = NewServer(cfg.HTTP.Addr, router, logger)

	return s, nil
}

func (s *SyncService) buildSyncers(kv cache.KVStore, runs syncer.RunPublisher, summaries syncer.SummaryStore) {
	cfg := s.config

	var listeners *syncer.Listeners
	if cfg.Sync.ListenersEnabled {
		seen := cache.NewSeenCache(kv, cfg.Sync.SeenTTL, s.logger)
		listeners = syncer.NewListeners(s.live, s.live, s.engine, seen, cfg.Sync.Location, s.logger)
	}

	s.scheduler = syncer.NewScheduler(syncer.Options{
		Interval:             cfg.Sync.Interval,
		UserEveryCycles:      cfg.Sync.UserEveryCycles,
		ReadingLookbackDays:  cfg.Sync.ReadingLookbackDays,
		FullReadingScanEvery: cfg.Sync.FullReadingScanEvery,
		Location:             cfg.Sync.Location,
	}, syncer.Dependencies{
		Live:      s.live,
		Engine:    s.engine,
		Users:     s.users,
		LiveCache: cache.NewLiveCache(kv, cfg.Sync.LiveTTL, s.logger),
		Runs:      runs,
		Listeners: listeners,
		Lifecycle: s.lifecycle,
	}, s.logger)

	s.backfill = backfill.NewOrchestrator(s.live, s.engine, summaries, runs, backfill.Options{
		Location: cfg.Sync.Location,
	}, s.logger)
}

// Start launches the scheduler and blocks serving HTTP. A scheduler that
// cannot start is logged; the HTTP API keeps serving.
func (s *SyncService) Start(ctx context.Context) error {
	s.logger.Info("Starting coldtrack-sync service",
		zap.Bool("scheduler_enabled", s.scheduler != nil),
		zap.Bool("listeners_enabled", s.config.Sync.ListenersEnabled),
		zap.Bool("user_sync_enabled", s.users != nil),
		zap.Bool("redis_enabled", s.redisClient != nil),
		zap.Bool("mqtt_enabled", s.mqttClient != nil),
	)

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			s.logger.Error("Sync scheduler not started, serving HTTP only", zap.Error(err))
		}
	}
	return s.server.Start()
}

// Backfill the orchestrator, ErrLiveStoreDisabled when unavailable
func (s *SyncService) Backfill() (*backfill.Orchestrator, error) {
	if s.backfill == nil {
		return nil, ErrLiveStoreDisabled
	}
	return s.backfill, nil
}

// SyncUsers runs one user sync
func (s *SyncService) SyncUsers(ctx context.Context) (syncer.UserReport, error) {
	if s.users == nil {
		return syncer.UserReport{}, ErrUserSyncDisabled
	}
	return s.users.Sync(ctx)
}

// Stop shuts the HTTP server and the scheduler down, then closes connections.
// When the scheduler does not stop before ctx ends the connections stay open
// under the running cycle and the error is returned.
func (s *SyncService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping coldtrack-sync service")

	if s.server != nil {
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Error("Error stopping HTTP server", zap.Error(err))
		}
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Error("Sync cycle still running, leaving connections open", zap.Error(err))
			return err
		}
	}
	s.Close()

	s.logger.Info("coldtrack-sync service stopped")
	return nil
}

// Close releases connections without touching the scheduler or server
func (s *SyncService) Close() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
		s.mqttClient = nil
	}
	if s.redisClient != nil {
		if err := commonredis.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
		s.redisClient = nil
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
		s.db = nil
	}
}
