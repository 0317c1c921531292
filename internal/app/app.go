package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/screener-back/internal/api"
	apiHandlers "github.com/screener-back/internal/api/handlers"
	"github.com/screener-back/internal/cache"
	"github.com/screener-back/internal/database"
	"github.com/screener-back/internal/exchange"
	"github.com/screener-back/internal/external"
	"github.com/screener-back/internal/messaging"
	"github.com/screener-back/internal/services"
	"github.com/screener-back/pkg/config"
	"github.com/screener-back/pkg/models"
)

// App owns the connections shared by every command and builds the
// long-running components on top of them
type App struct {
	cfg    *config.Config
	logger *logrus.Logger

	mysqlDB    *database.MySQLClient
	redisCache *cache.RedisClient
	natsClient *messaging.NATSClient
	influxDB   *database.InfluxClient
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Initialize connects to MySQL and to every enabled optional backend.
// MySQL is required; an optional backend that cannot be reached is disabled
// with a warning.
func (a *App) Initialize(ctx context.Context) error {
	mysqlClient, err := database.NewMySQLClient(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.mysqlDB = mysqlClient

	if a.cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&a.cfg.Redis, a.logger)
		if err != nil {
			a.logger.WithError(err).Warn("Redis unavailable, latest-snapshot cache disabled")
		} else {
			a.redisCache = redisClient
		}
	}

	if a.cfg.NATS.Enabled {
		natsClient, err := messaging.NewNATSClient(&a.cfg.NATS, a.logger)
		if err != nil {
			a.logger.WithError(err).Warn("NATS unavailable, event publishing disabled")
		} else {
			a.natsClient = natsClient
		}
	}

	if a.cfg.InfluxDB.Enabled {
		influxClient := database.NewInfluxClient(&a.cfg.InfluxDB, a.logger)
		if err := influxClient.Health(ctx); err != nil {
			a.logger.WithError(err).Warn("InfluxDB unavailable, time series mirror disabled")
			influxClient.Close()
		} else {
			a.influxDB = influxClient
		}
	}

	a.logger.WithFields(logrus.Fields{
		"redis":  a.redisCache != nil,
		"nats":   a.natsClient != nil,
		"influx": a.influxDB != nil,
	}).Info("Application initialized")

	return nil
}

// Close releases every connection
func (a *App) Close() {
	if a.natsClient != nil {
		if err := a.natsClient.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing NATS")
		}
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing Redis")
		}
	}
	if a.influxDB != nil {
		a.influxDB.Close()
	}
	if a.mysqlDB != nil {
		if err := a.mysqlDB.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing MySQL")
		}
	}
}

// MySQL returns the snapshot store
func (a *App) MySQL() *database.MySQLClient {
	return a.mysqlDB
}

// NewIngestor builds the ingestion loop for one market segment with every
// enabled sink attached
func (a *App) NewIngestor(market models.MarketType) *services.Ingestor {
	client := exchange.NewBinanceRESTClient(market, &a.cfg.Exchange, a.logger)

	ing := services.NewIngestor(client, a.mysqlDB, services.IngestorOptions{
		Interval:   a.cfg.Ingest.Interval,
		Workers:    a.cfg.Ingest.Workers,
		MaxBackoff: a.cfg.Ingest.MaxBackoff,
	}, a.logger)

	if a.redisCache != nil {
		ing.WithCache(a.redisCache)
	}
	if a.natsClient != nil {
		ing.WithPublisher(a.natsClient)
	}
	if a.influxDB != nil {
		ing.WithSeries(a.influxDB)
	}
	return ing
}

// NewSnapshotService builds the snapshot reader; single-symbol reads prefer
// the cache
func (a *App) NewSnapshotService() *services.SnapshotService {
	if a.redisCache != nil {
		return services.NewSnapshotService(a.mysqlDB, a.redisCache, a.logger)
	}
	return services.NewSnapshotService(a.mysqlDB, nil, a.logger)
}

// NewAlertEvaluator builds the evaluator with the Telegram notifier. Rules are
// compared against the store's latest row, never a cached copy.
func (a *App) NewAlertEvaluator() (*services.AlertEvaluator, error) {
	if err := a.cfg.ValidateAlerts(); err != nil {
		return nil, err
	}

	notifier := external.NewTelegramClient(&a.cfg.Alerts, a.logger)
	evaluator := services.NewAlertEvaluator(a.mysqlDB, a.mysqlDB, notifier, a.cfg.Alerts.Cooldown, a.logger)
	if a.natsClient != nil {
		evaluator.WithPublisher(a.natsClient)
	}
	return evaluator, nil
}

// NewAlertRuleService builds the alert rule manager
func (a *App) NewAlertRuleService() *services.AlertRuleService {
	return services.NewAlertRuleService(a.mysqlDB, a.logger)
}

// NewUserService builds the user manager
func (a *App) NewUserService() *services.UserService {
	return services.NewUserService(a.mysqlDB, a.logger)
}

// NewRetentionService builds the snapshot retention cleaner
func (a *App) NewRetentionService() *services.RetentionService {
	return services.NewRetentionService(a.mysqlDB, a.cfg.Retention.BatchSize, a.logger)
}

// NewAPIServer builds the read API server
func (a *App) NewAPIServer() *api.Server {
	checks := map[string]api.HealthChecker{"mysql": a.mysqlDB}
	if a.redisCache != nil {
		checks["redis"] = a.redisCache
	}

	var series apiHandlers.SeriesReader
	if a.influxDB != nil {
		series = a.influxDB
		checks["influxdb"] = a.influxDB
	}

	handler := apiHandlers.NewSnapshotHandler(a.NewSnapshotService(), a.mysqlDB, series, a.cfg.Server.RecentWindow, a.logger)
	return api.NewServer(a.cfg, a.logger, handler, checks)
}

// RunServer serves the read API until ctx is cancelled
func (a *App) RunServer(ctx context.Context) error {
	server := a.NewAPIServer()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("Error stopping API server")
	}
	wg.Wait()
	return nil
}
