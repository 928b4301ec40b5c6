// Package main is the entry point for the achievement engine: event
// ingestion from Discord, progress tracking, award evaluation, and
// notification delivery all run in this one process.
//
// Architecture follows Clean Architecture / DDD, same as the rest of the
// module:
//   - Domain: achievement catalog, progress, events, notification — pure
//     business rules, no external dependencies.
//   - Application: catalog services, the progress tracker, the trigger
//     engine, the award service, the notification router.
//   - Infrastructure: PostgreSQL repositories, Redis cache, Discord gateway
//     and REST client, the background job scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/achievement-engine/engine/config"
	"github.com/achievement-engine/engine/internal/application/award"
	"github.com/achievement-engine/engine/internal/application/catalog"
	"github.com/achievement-engine/engine/internal/application/engine"
	"github.com/achievement-engine/engine/internal/application/notifier"
	"github.com/achievement-engine/engine/internal/application/progress"
	catalogdomain "github.com/achievement-engine/engine/internal/domain/catalog"
	"github.com/achievement-engine/engine/internal/domain/notification"
	"github.com/achievement-engine/engine/internal/evaluator"
	"github.com/achievement-engine/engine/internal/infrastructure/cache"
	"github.com/achievement-engine/engine/internal/infrastructure/external/discord"
	"github.com/achievement-engine/engine/internal/infrastructure/persistence/postgres"
	"github.com/achievement-engine/engine/internal/infrastructure/persistence/redis"
	"github.com/achievement-engine/engine/internal/infrastructure/scheduler"
	"github.com/achievement-engine/engine/internal/infrastructure/scheduler/jobs"
	"github.com/achievement-engine/engine/internal/observability"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the engine's runtime configuration.
type Config struct {
	AppEnv   string
	AppDebug bool

	DatabaseURL string

	RedisURL     string
	RedisEnabled bool

	DiscordToken string

	// AdminTokenHash is a bcrypt hash of the token that authorizes catalog
	// mutations (category/achievement create/update/delete). Empty disables
	// the admin guard entirely, so every caller is authorized — the
	// deployment-time default until an operator provisions one.
	AdminTokenHash string

	MetricsHost string
	MetricsPort int

	ArchiveRetention    time.Duration
	CleanupRetention    time.Duration
	NotificationRetries int
	RetryBatchSize      int
	DigestWindow        time.Duration

	ShutdownTimeout time.Duration
}

// LoadConfig reads engine configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		AppDebug:            getEnvBool("APP_DEBUG", false),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisEnabled:        getEnvBool("REDIS_ENABLED", false),
		DiscordToken:        getEnv("DISCORD_BOT_TOKEN", ""),
		AdminTokenHash:      getEnv("ADMIN_TOKEN_HASH", ""),
		MetricsHost:         getEnv("METRICS_HOST", "0.0.0.0"),
		MetricsPort:         getEnvInt("METRICS_PORT", 9090),
		ArchiveRetention:    getEnvDuration("EVENT_ARCHIVE_RETENTION", 30*24*time.Hour),
		CleanupRetention:    getEnvDuration("EVENT_CLEANUP_RETENTION", 30*24*time.Hour),
		NotificationRetries: getEnvInt("NOTIFICATION_MAX_RETRIES", 3),
		RetryBatchSize:      getEnvInt("NOTIFICATION_RETRY_BATCH_SIZE", 100),
		DigestWindow:        getEnvDuration("DIGEST_WINDOW", 24*time.Hour),
		ShutdownTimeout:     getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.DiscordToken == "" {
		return nil, errors.New("DISCORD_BOT_TOKEN is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting achievement engine", "env", cfg.AppEnv, "debug", cfg.AppDebug)

	featureFlags := config.LoadFeatureFlags()
	_ = featureFlags

	// Built before the repositories/cache below so every storage and cache
	// call site can be wired against the same monitor instance at
	// construction time, instead of the monitor arriving too late to
	// instrument the rest of startup.
	monitor := observability.NewMonitor()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS CACHE
	// ─────────────────────────────────────────────────────────────────────────
	var cacheManager *cache.Manager

	if cfg.RedisEnabled && cfg.RedisURL != "" {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		if host, port, ok := splitHostPort(cfg.RedisURL); ok {
			redisCfg.Host = host
			redisCfg.Port = port
		}

		redisStore, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer redisStore.Close()
			cacheManager = cache.NewManager(redisStore, cache.WithMonitor(monitor))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	var categoryRepo catalogdomain.CategoryRepository = postgres.NewCategoryRepository(dbConn)
	var achievementRepo catalogdomain.AchievementRepository = postgres.NewAchievementRepository(dbConn)
	progressRepo := postgres.NewProgressRepository(dbConn)
	awardRepo := postgres.NewAwardRepository(dbConn)
	eventRepo := postgres.NewEventRepository(dbConn)
	notificationRepo := postgres.NewNotificationRepository(dbConn)
	preferenceRepo := postgres.NewPreferenceRepository(dbConn)
	settingsRepo := postgres.NewGlobalSettingsRepository(dbConn)
	_ = postgres.NewDeliveryAttemptRepository(dbConn)

	// The §4.G cache sits in front of the category/achievement repositories
	// wherever Redis is reachable, so every downstream component (catalog
	// service, tracker, trigger engine) shares the same cached lookups
	// instead of only the admin-facing catalog endpoints benefiting.
	if cacheManager != nil {
		categoryRepo = cache.NewCachedCategoryRepository(categoryRepo, cacheManager)
		achievementRepo = cache.NewCachedAchievementRepository(achievementRepo, cacheManager)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER (catalog, progress, award)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")
	categoryService := catalog.NewCategoryService(categoryRepo, achievementRepo)
	achievementService := catalog.NewAchievementService(categoryRepo, achievementRepo, progressRepo, awardRepo)
	if cfg.AdminTokenHash != "" {
		guard := catalog.NewAdminGuard([]byte(cfg.AdminTokenHash))
		categoryService.SetAdminGuard(guard)
		achievementService.SetAdminGuard(guard)
	}
	_ = categoryService
	_ = achievementService

	tracker := progress.NewTracker(achievementRepo, progressRepo)
	tracker.SetMonitor(monitor)
	awardService := award.NewService(achievementRepo, progressRepo, awardRepo, log)
	awardService.SetMonitor(monitor)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVALUATOR REGISTRY
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing evaluator registry...")
	discordEventTypes := []string{
		discord.EventMessageSent,
		discord.EventReactionAdded,
		discord.EventMemberJoined,
		discord.EventVoiceJoined,
		discord.EventVoiceLeft,
		discord.EventCommandInvoked,
	}

	registry := evaluator.NewRegistry()
	registry.Register(catalogdomain.TypeCounter, evaluator.NewCounterEvaluator(discordEventTypes))
	registry.Register(catalogdomain.TypeMilestone, evaluator.NewMilestoneEvaluator(discordEventTypes))
	registry.Register(catalogdomain.TypeTimeBased, evaluator.NewTimeBasedEvaluator(discordEventTypes))
	registry.Register(catalogdomain.TypeConditional, evaluator.NewConditionalEvaluator(discordEventTypes, nil))

	// ─────────────────────────────────────────────────────────────────────────
	// 8. TRIGGER ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing trigger engine...")
	engineCfg := engine.DefaultConfig()
	if getEnv("ENGINE_BACKPRESSURE_POLICY", "block") == "shed" {
		engineCfg.Policy = engine.PolicyShed
	}
	engineCfg.Logger = log
	triggerEngine := engine.NewTriggerEngine(eventRepo, achievementRepo, registry, tracker, awardService, engineCfg)
	triggerEngine.BuildCandidateIndex([]catalogdomain.AchievementType{
		catalogdomain.TypeCounter,
		catalogdomain.TypeMilestone,
		catalogdomain.TypeTimeBased,
		catalogdomain.TypeConditional,
	})
	defer triggerEngine.Shutdown()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. DISCORD CLIENT AND GATEWAY
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing Discord client...")
	discordCfg := discord.DefaultClientConfig(cfg.DiscordToken)
	discordCfg.Logger = log
	discordCfg.Debug = cfg.AppDebug

	dmClient, err := discord.NewClient(discordCfg, notification.ChannelTypeDirectMessage)
	if err != nil {
		return fmt.Errorf("failed to create discord dm client: %w", err)
	}
	announcementClient, err := discord.NewClient(discordCfg, notification.ChannelTypeGuildAnnouncement)
	if err != nil {
		return fmt.Errorf("failed to create discord announcement client: %w", err)
	}
	// The announcement client has its own session, separate from the DM
	// client's. It is never opened as a gateway connection; it only posts
	// announcements through the REST API.

	gateway := discord.NewGateway(dmClient, eventRepo, triggerEngine, log)
	gateway.Register()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. NOTIFICATION ROUTER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing notification router...")
	channels := map[notification.ChannelType]notification.NotificationChannel{
		notification.ChannelTypeDirectMessage:     dmClient,
		notification.ChannelTypeGuildAnnouncement: announcementClient,
	}

	router := notifier.NewRouter(preferenceRepo, settingsRepo, notificationRepo, channels, awardService, notifier.Config{
		Logger: log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 11. SCHEDULER AND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: log})

	archiveJob := jobs.NewArchiveEventsJob(eventRepo, log, jobs.ArchiveEventsConfig{RetentionPeriod: cfg.ArchiveRetention})
	cleanupJob := jobs.NewCleanupEventsJob(eventRepo, log, jobs.CleanupEventsConfig{ArchiveAfter: cfg.CleanupRetention, KeepProcessed: true})
	retryJob := jobs.NewRetryNotificationsJob(router, log, jobs.RetryNotificationsConfig{
		MaxRetries: cfg.NotificationRetries,
		BatchSize:  cfg.RetryBatchSize,
	})
	digestJob := jobs.NewDailyDigestJob(settingsRepo, preferenceRepo, notificationRepo, awardRepo, channels, log, jobs.DailyDigestConfig{
		Window: cfg.DigestWindow,
	})

	if err := sched.Register(archiveJob, scheduler.NewIntervalSchedule(24*time.Hour)); err != nil {
		return fmt.Errorf("register archive_events job: %w", err)
	}
	if err := sched.Register(cleanupJob, scheduler.NewIntervalSchedule(24*time.Hour)); err != nil {
		return fmt.Errorf("register cleanup_events job: %w", err)
	}
	if err := sched.Register(retryJob, scheduler.NewIntervalSchedule(15*time.Minute)); err != nil {
		return fmt.Errorf("register retry_notifications job: %w", err)
	}
	if err := sched.Register(digestJob, scheduler.NewIntervalSchedule(24*time.Hour)); err != nil {
		return fmt.Errorf("register daily_digest job: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. OBSERVABILITY
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing observability...")
	baseline := &observability.Baseline{Operations: make(map[observability.Operation]time.Duration)}
	if path := getEnv("BASELINE_FILE", ""); path != "" {
		loaded, err := observability.LoadBaseline(path)
		if err != nil {
			log.Warn("failed to load regression baseline, using empty baseline", "error", err)
		} else {
			baseline = loaded
		}
	}
	detector := observability.NewDetector(monitor, baseline, 2.0, 5*time.Minute)
	detector.Start()
	defer detector.Stop()

	go func() {
		for regression := range detector.Regressions() {
			log.Warn("performance regression detected",
				"operation", regression.Operation,
				"baseline", regression.Baseline.String(),
				"observed", regression.Observed.String(),
				"factor_over", regression.FactorOver,
			)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort),
		Handler: mux,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. START SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting services...")

	errCh := make(chan error, 3)

	if err := dmClient.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	defer func() {
		log.Info("closing discord gateway...")
		_ = dmClient.Close()
	}()

	router.Start()
	defer router.Stop()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		log.Info("starting metrics server", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 14. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("achievement engine is running", "metrics_address", metricsServer.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
		shutdownErr = err
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop metrics server gracefully", "error", err)
		shutdownErr = err
	}

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.AppDebug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.AppEnv == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// splitHostPort parses a simple "host:port" string, used for a bare Redis
// address rather than a full redis:// URL.
func splitHostPort(addr string) (host string, port int, ok bool) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			p, err := strconv.Atoi(addr[i+1:])
			if err != nil {
				return "", 0, false
			}
			return addr[:i], p, true
		}
	}
	return "", 0, false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
