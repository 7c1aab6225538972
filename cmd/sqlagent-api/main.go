package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlagent/sqlagent/internal/agent"
	"github.com/sqlagent/sqlagent/internal/api"
	"github.com/sqlagent/sqlagent/internal/auth"
	"github.com/sqlagent/sqlagent/internal/config"
	"github.com/sqlagent/sqlagent/internal/export"
	"github.com/sqlagent/sqlagent/internal/lexicon"
	"github.com/sqlagent/sqlagent/internal/llm"
	"github.com/sqlagent/sqlagent/internal/memory"
	"github.com/sqlagent/sqlagent/internal/nl2sql"
	"github.com/sqlagent/sqlagent/internal/observability"
	"github.com/sqlagent/sqlagent/internal/query"
	"github.com/sqlagent/sqlagent/internal/query/sqldb"
	"github.com/sqlagent/sqlagent/internal/session"
	"github.com/sqlagent/sqlagent/internal/storage"
	s3store "github.com/sqlagent/sqlagent/internal/storage/s3"
	"github.com/sqlagent/sqlagent/internal/transcript"
	transcriptpostgres "github.com/sqlagent/sqlagent/internal/transcript/postgres"
	"github.com/sqlagent/sqlagent/internal/warehouse"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("sqlagent-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()
	var checks []api.ReadinessCheck

	var objectStore storage.ObjectStore
	var exporter api.Exporter
	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(ctx, s3store.ConfigFromSettings(cfg.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
		checks = append(checks, api.NamedCheck("object store", store.HealthCheck))
		exp, err := export.New(store, 0)
		if err != nil {
			logger.Error("failed to initialize exporter", slog.Any("error", err))
			os.Exit(1)
		}
		exporter = exp
	}

	connector, err := warehouse.NewConnector(cfg.Warehouse, objectStore, logger)
	if err != nil {
		logger.Error("failed to configure warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = connector.Close() }()
	conn, err := connector.Connect(ctx)
	if err != nil {
		logger.Error("failed to connect to warehouse", slog.String("driver", connector.Name()), slog.Any("error", err))
		os.Exit(1)
	}
	if checker, ok := conn.(healthChecker); ok {
		checks = append(checks, api.NamedCheck("warehouse", checker.HealthCheck))
	}
	logger.Info("warehouse connected", slog.String("driver", connector.Name()))

	model, err := llm.New(ctx, cfg.AI)
	if err != nil {
		logger.Error("failed to initialize language model", slog.String("provider", cfg.AI.Provider), slog.Any("error", err))
		os.Exit(1)
	}
	lex, err := lexicon.Load(cfg.Lexicon.Path)
	if err != nil {
		logger.Error("failed to load lexicon", slog.Any("error", err))
		os.Exit(1)
	}
	preamble := nl2sql.DefaultPreamble()
	if cfg.Prompt.PreamblePath != "" {
		preamble, err = nl2sql.LoadPreamble(cfg.Prompt.PreamblePath)
		if err != nil {
			logger.Error("failed to load prompt preamble", slog.Any("error", err))
			os.Exit(1)
		}
	}

	newMemory := func(string) memory.Memory { return memory.NewLog() }
	if cfg.Session.MemoryBackend == config.MemoryBackendRedis {
		redisClient, err := memory.ConnectRedis(ctx, memory.RedisOptions{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = redisClient.Close() }()
		checks = append(checks, api.NamedCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		newMemory = func(id string) memory.Memory {
			return memory.NewRedisLog(redisClient, cfg.Redis.KeyPrefix+id, cfg.Session.TTL)
		}
	}

	var transcripts transcript.Store
	if cfg.Transcript.Enabled {
		db, err := sqldb.Open(ctx, sqldb.DBConfig{
			Driver:          sqldb.DriverPGX,
			DSN:             cfg.Transcript.DSN,
			MaxOpenConns:    cfg.Transcript.MaxOpenConns,
			MaxIdleConns:    cfg.Transcript.MaxIdleConns,
			ConnMaxIdleTime: cfg.Transcript.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Transcript.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open transcript db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		repo := transcriptpostgres.NewRepository(db)
		checks = append(checks, api.NamedCheck("transcripts", repo.HealthCheck))
		transcripts = repo
	}

	executor := query.NewExecutor(cfg.Warehouse.MaxRows, cfg.Warehouse.QueryTimeout, logger)
	manager, err := session.NewManager(session.ManagerOptions{
		TTL:             cfg.Session.TTL,
		CleanupInterval: cfg.Session.CleanupInterval,
		NewMemory:       newMemory,
		NewRunner: func(mem memory.Memory) (session.Runner, error) {
			generator, err := nl2sql.NewGenerator(nl2sql.Options{
				Model:    model,
				Memory:   mem,
				Lexicon:  lex,
				Preamble: preamble,
				Window:   cfg.Session.HistoryWindow,
				Logger:   logger,
			})
			if err != nil {
				return nil, err
			}
			return agent.New(generator, executor, conn, logger)
		},
		Store:  transcripts,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to initialize session manager", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(checks...),
		DependencyTimeout: time.Second,
		Sessions:          manager,
		Executor:          executor,
		Warehouse:         conn,
		Exporter:          exporter,
		Transcripts:       transcripts,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if validator.Len() == 0 {
			logger.Warn("auth required but no static keys configured; every protected request will be rejected")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("model", cfg.AI.Model),
			slog.String("memory_backend", cfg.Session.MemoryBackend),
			slog.String("cors_origins", strings.Join(cfg.CORS.AllowedOrigins, ",")),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
