package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adiga-code/numerology/internal/alerting"
	"github.com/adiga-code/numerology/internal/api"
	"github.com/adiga-code/numerology/internal/bot"
	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/events"
	"github.com/adiga-code/numerology/internal/flow"
	"github.com/adiga-code/numerology/internal/logging"
	"github.com/adiga-code/numerology/internal/metrics"
	"github.com/adiga-code/numerology/internal/models"
	"github.com/adiga-code/numerology/internal/payment"
	"github.com/adiga-code/numerology/internal/provider"
	"github.com/adiga-code/numerology/internal/report"
	"github.com/adiga-code/numerology/internal/repository"
	"github.com/adiga-code/numerology/internal/service"
	"github.com/adiga-code/numerology/internal/storage"
	"github.com/adiga-code/numerology/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	catalog, err := loadCatalog(cfg, &logger)
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	sessions := initSessions(cfg, redisClient, &logger)

	botWrapper, err := bot.NewBotWrapper(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	tgService := service.NewTelegramService(botWrapper)

	store, err := initStore(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации хранилища отчётов")
		return err
	}

	reportProvider, closeProvider, err := provider.FromConfig(cfg.Generation, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации генератора отчётов")
		return err
	}
	if closeProvider != nil {
		defer func() { _ = closeProvider() }()
	}

	var gateway service.Gateway
	if cfg.Payments.Gateway.Enabled {
		gateway = payment.NewClient(cfg.Payments.Gateway, &logger)
	}

	eventBus := events.NewEventBus()
	alerter := alerting.NewTelegramAlerter(tgService, cfg.Alerts.OperatorChatID, &logger)

	orderService := service.NewOrderService(flow.NewMachine(catalog), sessions, db, eventBus, &logger)
	paymentService := service.NewPaymentService(db, tgService, gateway, catalog, eventBus, &logger)
	reviewService := service.NewReviewService(db, db, sessions, tgService, &logger)
	userService := service.NewUserService(db, cfg.Bot, &logger)

	var mirror worker.ScheduleMirror
	if redisClient != nil {
		mirror = repository.NewRedisReviewSchedule(redisClient)
	}
	reviewScheduler := worker.NewReviewScheduler(reviewService.RequestReview, mirror, &logger)
	defer reviewScheduler.Stop()

	deliveryService := service.NewDeliveryService(service.DeliveryDeps{
		Orders:         db,
		Attempts:       db,
		Renderer:       report.NewRenderer(cfg.Report, catalog),
		Store:          store,
		Telegram:       tgService,
		Reviews:        reviewScheduler,
		EventBus:       eventBus,
		Catalog:        catalog,
		ReviewDelay:    cfg.Bot.ReviewDelay,
		SupportContact: cfg.Bot.SupportContact,
	}, &logger)

	fulfillmentService := service.NewFulfillmentService(service.FulfillmentDeps{
		Orders:         db,
		Attempts:       db,
		Provider:       reportProvider,
		Delivery:       deliveryService,
		Telegram:       tgService,
		Alerter:        alerter,
		EventBus:       eventBus,
		SupportContact: cfg.Bot.SupportContact,
	}, cfg.Generation, &logger)

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	dispatchWorker := worker.NewDispatchWorker(db, db, fulfillmentService, redisClient, retryPolicy, &logger)
	eventBus.Subscribe(events.EventOrderPaid, dispatchWorker.HandleOrderPaid)
	subscribeOrderEvents(eventBus, &logger)

	if restored, err := reviewScheduler.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to restore review timers")
	} else if restored > 0 {
		logger.Info().Int("count", restored).Msg("Review timers restored")
	}

	telegramBot, err := bot.NewBot(tgService, cfg, catalog, bot.Services{
		Orders:   orderService,
		Payments: paymentService,
		Delivery: deliveryService,
		Reviews:  reviewService,
		Users:    userService,
		Limiter:  sessions,
	}, bot.NewMetrics(), &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	apiServer := api.NewHTTPServer(cfg.API, api.Deps{
		Callbacks:       fulfillmentService,
		Payments:        paymentService,
		Orders:          orderService,
		Catalog:         catalog,
		DB:              db,
		Redis:           redisClient,
		GenerationToken: cfg.Generation.SecretToken,
		WebhookSecret:   cfg.Payments.Gateway.WebhookSecret,
	}, &logger)

	var consumer *provider.ResultConsumer
	if hasProvider(cfg, config.ProviderKafka) && cfg.Generation.Kafka.ResultTopic != "" {
		consumer, err = provider.NewResultConsumer(cfg.Generation.Kafka, cfg.Generation.SecretToken, fulfillmentService.OnCallback, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("Ошибка подключения к Kafka")
			return err
		}
		defer consumer.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Msg("Бот запущен...")
		telegramBot.Start(gctx)
		return nil
	})
	g.Go(func() error { return dispatchWorker.Start(gctx) })
	g.Go(func() error {
		return worker.NewSweeper(fulfillmentService, cfg.Generation.StaleAfter, time.Minute, &logger).Start(gctx)
	})
	g.Go(func() error {
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		telegramBot.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		g.Go(func() error { return startMetricsServer(gctx, cfg.Monitoring.PrometheusPort, &logger) })
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		if cfg.Storage.S3.Enabled {
			backupService = backupService.WithUploader(store)
		}
		g.Go(func() error {
			backupService.Start(gctx)
			return nil
		})
	}

	if consumer != nil {
		g.Go(func() error { return consumer.Start(gctx) })
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Service stopped with error")
		return err
	}
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

// loadCatalog reads tariffs.yaml when present and applies price overrides
// from the main config.
func loadCatalog(cfg *config.Config, logger *zerolog.Logger) (*models.Catalog, error) {
	catalog := models.DefaultCatalog()

	tariffsPath := os.Getenv("TARIFFS_PATH")
	if tariffsPath == "" {
		tariffsPath = "configs/tariffs.yaml"
	}
	data, err := os.ReadFile(tariffsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info().Str("tariffs_path", tariffsPath).Msg("tariffs.yaml not found, using built-in tariffs")
	case err != nil:
		logger.Error().Err(err).Msgf("Ошибка чтения %s", tariffsPath)
		return nil, err
	default:
		var tariffsConfig struct {
			Tariffs []models.TariffInfo `yaml:"tariffs"`
		}
		if err := yaml.Unmarshal(data, &tariffsConfig); err != nil {
			logger.Error().Err(err).Msg("Ошибка парсинга tariffs.yaml")
			return nil, err
		}
		if err := config.ValidateTariffs(tariffsConfig.Tariffs); err != nil {
			logger.Error().Err(err).Msg("Tariffs validation failed")
			return nil, err
		}
		catalog = models.NewCatalog(tariffsConfig.Tariffs)
	}

	if len(cfg.Tariffs) == 0 {
		return catalog, nil
	}
	prices := make(map[models.Tariff]int64, len(cfg.Tariffs))
	stars := make(map[models.Tariff]int, len(cfg.Tariffs))
	for code, o := range cfg.Tariffs {
		prices[models.Tariff(code)] = o.Price
		stars[models.Tariff(code)] = o.Stars
	}
	return catalog.WithPrices(prices, stars), nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	dirs := []string{filepath.Dir(cfg.Database.Path), cfg.Bot.ExportPath}
	if !cfg.Storage.S3.Enabled {
		dirs = append(dirs, cfg.Storage.ArtifactDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("Ошибка создания директории")
			return err
		}
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}
	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, sessions fall back to memory")
	}
	return client
}

func initSessions(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	fallback := repository.NewMemorySessionRepository(cfg.Bot.SessionTTL)
	if client == nil {
		return fallback
	}
	primary := repository.NewRedisSessionRepository(client, cfg.Bot.SessionTTL)
	return repository.NewFailoverSessionRepository(primary, fallback, logger)
}

func initStore(cfg *config.Config) (domain.ArtifactStore, error) {
	if cfg.Storage.S3.Enabled {
		return storage.NewS3Store(cfg.Storage.S3)
	}
	return storage.NewLocalStore(cfg.Storage.ArtifactDir)
}

func hasProvider(cfg *config.Config, name string) bool {
	for _, p := range cfg.Generation.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// subscribeOrderEvents логирует переходы заказов для операторов
func subscribeOrderEvents(bus *events.EventBus, logger *zerolog.Logger) {
	logEvent := func(ev *events.Event) error {
		var payload events.OrderEventPayload
		if err := ev.Decode(&payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Info().
			Str("event", ev.Type).
			Int64("order_id", payload.OrderID).
			Str("status", payload.Status).
			Str("reason", payload.Reason).
			Msg("Order event")
		return nil
	}

	bus.Subscribe(events.EventOrderCreated, logEvent)
	bus.Subscribe(events.EventOrderPaid, logEvent)
	bus.Subscribe(events.EventOrderCompleted, logEvent)
	bus.Subscribe(events.EventOrderFailed, logEvent)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Int("port", port).Msg("Metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
