package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/visayasmed/access-management/internal"
	"github.com/visayasmed/access-management/internal/auth"
	authpostgres "github.com/visayasmed/access-management/internal/auth/postgres"
	"github.com/visayasmed/access-management/internal/core/events"
	"github.com/visayasmed/access-management/internal/entitlement"
	entitlementpostgres "github.com/visayasmed/access-management/internal/entitlement/postgres"
	entitlementredis "github.com/visayasmed/access-management/internal/entitlement/redis"
	"github.com/visayasmed/access-management/internal/portal"
	"github.com/visayasmed/access-management/internal/transport/rest"
	"github.com/visayasmed/access-management/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config      *internal.Config
	GormDB      *gorm.DB
	SQLDB       *sql.DB
	RedisClient *redis.Client
	Router      *chi.Mux
	AuthService *auth.Service
	Unsubscribe func()
	Logger      *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		deps.Unsubscribe()
		if err := deps.SQLDB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
		if deps.RedisClient != nil {
			if err := deps.RedisClient.Close(); err != nil {
				slog.Error("Redis close error", "error", err)
			}
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	log := logger.LoggerWrapper()

	gormDB, sqlDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var redisClient *redis.Client
	if config.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	kv, err := selectKV(config, gormDB, redisClient)
	if err != nil {
		return nil, err
	}

	store := entitlement.NewStore(kv, config.Entitlements.DesignatedAdminEmail, log)
	guard := entitlement.NewGuard(log)
	sessionListener := entitlement.NewSessionListener(store, log)

	eventBus := events.NewEventBus(log)
	tokenGenerator := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)

	userRepo := authpostgres.NewRepository(gormDB)
	authService := auth.NewService(userRepo, tokenGenerator, store, eventBus, config.Security.BCryptCost, log)

	// Keep the cached per-session entitlement view in step with sign-ins
	// and sign-outs.
	unsubscribe := authService.OnSessionChange(func(p *auth.Principal) {
		if p == nil {
			sessionListener.OnSessionChange("")
			return
		}
		sessionListener.OnSessionChange(p.ID)
	})

	authHandler := auth.NewHandler(authService, store)
	entitlementHandler := entitlement.NewHandler(store)
	portalHandler := portal.NewHandler()

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, sqlDB, config, authHandler, entitlementHandler, portalHandler, guard, log)

	return &Dependencies{
		Config:      config,
		GormDB:      gormDB,
		SQLDB:       sqlDB,
		RedisClient: redisClient,
		Router:      router,
		AuthService: authService,
		Unsubscribe: unsubscribe,
		Logger:      log,
	}, nil
}

// initDB opens the configured database. Postgres goes through the pgx
// stdlib driver so health checks and goose share the same *sql.DB; sqlite
// is the zero-setup development path and gets its schema auto-migrated.
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, *sql.DB, error) {
	switch cfg.Driver {
	case "postgres":
		dbConn, err := sqlx.Connect("pgx", cfg.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
		}

		dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
		dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
		dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

		gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: dbConn.DB}), &gorm.Config{})
		if err != nil {
			_ = dbConn.Close()
			return nil, nil, fmt.Errorf("failed to open gorm connection: %w", err)
		}
		return gormDB, dbConn.DB, nil

	case "sqlite":
		gormDB, err := gorm.Open(gormsqlite.Open(cfg.Source), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if err := migrateSQLite(gormDB); err != nil {
			return nil, nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to unwrap sqlite connection: %w", err)
		}
		return gormDB, sqlDB, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func migrateSQLite(db *gorm.DB) error {
	if err := db.AutoMigrate(&entitlementpostgres.KVEntry{}); err != nil {
		return fmt.Errorf("failed to migrate kv entries: %w", err)
	}
	err := db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`).Error
	if err != nil {
		return fmt.Errorf("failed to migrate users: %w", err)
	}
	return nil
}

func selectKV(cfg *internal.Config, gormDB *gorm.DB, redisClient *redis.Client) (entitlement.KV, error) {
	switch cfg.Entitlements.Store {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("entitlement store is redis but redis is not enabled")
		}
		return entitlementredis.NewKV(redisClient), nil
	default:
		return entitlementpostgres.NewKV(gormDB), nil
	}
}
