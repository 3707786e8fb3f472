package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/recordvault/recordvault/internal/config"
	"github.com/recordvault/recordvault/internal/domain/access"
	"github.com/recordvault/recordvault/internal/domain/history"
	"github.com/recordvault/recordvault/internal/domain/ledger"
	"github.com/recordvault/recordvault/internal/domain/record"
	"github.com/recordvault/recordvault/internal/domain/user"
	"github.com/recordvault/recordvault/internal/platform/auth"
	"github.com/recordvault/recordvault/internal/platform/chain"
	"github.com/recordvault/recordvault/internal/platform/db"
	"github.com/recordvault/recordvault/internal/platform/ipfs"
	"github.com/recordvault/recordvault/internal/platform/keyvault"
	"github.com/recordvault/recordvault/internal/platform/middleware"
)

// devMasterKey seals keys in development when MASTER_KEY is unset. Production
// refuses to start without a real key (see config.Validate).
const devMasterKey = "0000000000000000000000000000000000000000000000000000000000000000"

const migrationsDir = "migrations"

func main() {
	root := &cobra.Command{
		Use:   "vault-server",
		Short: "Tokenized medical record vault API",
	}

	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				applied, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("applied %d migration(s)\n", applied)
				return nil
			})
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Printf("%03d %-30s %s\n", s.Version, s.Name, state)
				}
				return nil
			})
		},
	})

	return migrate
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := db.NewMigrator(pool, migrationsDir)
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return err
	}
	return fn(ctx, m)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("database pool ready")

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		logger.Info().Msg("redis connected")
	} else {
		logger.Warn().Msg("REDIS_URL unset, access cache disabled")
	}

	masterKey := cfg.MasterKey
	if masterKey == "" {
		logger.Warn().Msg("MASTER_KEY unset, using development sealing key")
		masterKey = devMasterKey
	}
	sealer, err := keyvault.New(masterKey)
	if err != nil {
		return err
	}

	var contract chain.AccessContract
	if cfg.ChainGatewayURL != "" {
		contract, err = chain.NewClient(cfg.ChainGatewayURL, cfg.ChainGatewaySecret)
		if err != nil {
			return err
		}
		logger.Info().Str("gateway", cfg.ChainGatewayURL).Msg("chain gateway configured")
	} else {
		logger.Warn().Msg("CHAIN_GATEWAY_URL unset, using in-memory contract")
		contract = chain.NewFake()
	}

	var pinner record.Pinner
	if cfg.IPFSAPIURL != "" {
		client, err := ipfs.NewClient(cfg.IPFSAPIURL)
		if err != nil {
			return err
		}
		pinner = client
		logger.Info().Str("api", cfg.IPFSAPIURL).Msg("ipfs pinning enabled")
	} else {
		logger.Warn().Msg("IPFS_API_URL unset, pinning disabled")
	}

	accessCache := chain.NewAccessCache(rdb, 0)

	// Repositories.
	userRepo := user.NewRepoPG(pool)
	recordRepo := record.NewRepoPG(pool)
	ledgerRepo := ledger.NewRepoPG(pool)
	historyRepo := history.NewRepoPG(pool)

	// Services. The ledger depends on narrow views of records and users; the
	// record registry in turn consults the ledger for approved requests.
	userSvc := user.NewService(userRepo)
	historySvc := history.NewService(historyRepo)

	recordDir := &recordDirectory{repo: recordRepo}
	ledgerSvc := ledger.NewService(ledgerRepo, recordDir, &userDirectory{svc: userSvc},
		&txRunner{pool: pool}, logger)

	accessSvc := access.NewService(contract, accessCache, ledgerSvc, logger)
	recordSvc := record.NewService(recordRepo, sealer, pinner,
		accessSvc, ledgerSvc, historySvc, logger)

	interval, err := time.ParseDuration(cfg.ReconcileInterval)
	if err != nil {
		return fmt.Errorf("parse RECONCILE_INTERVAL: %w", err)
	}
	reconciler := ledger.NewReconciler(ledgerRepo, contract, recordDir, historySvc,
		&cacheInvalidator{cache: accessCache}, &txRunner{pool: pool}, interval, logger)
	go reconciler.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
	}))
	e.GET("/health", db.HealthHandler(pool))

	// Auth runs first on the API group so the rate limiter can key on the
	// caller's wallet and the audit trail records the principal.
	api := e.Group("/api/v1",
		auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}),
		middleware.Audit(logger),
	)

	user.NewHandler(userSvc).RegisterRoutes(api)
	record.NewHandler(recordSvc, userSvc).RegisterRoutes(api)
	ledger.NewHandler(ledgerSvc, userSvc).RegisterRoutes(api)
	access.NewHandler(accessSvc, userSvc).RegisterRoutes(api)
	history.NewHandler(historySvc, userSvc).RegisterRoutes(api)

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// recordDirectory narrows the record repository to what the ledger needs.
type recordDirectory struct{ repo record.Repository }

func (d *recordDirectory) ByTokenID(ctx context.Context, tokenID string) (*ledger.RecordInfo, error) {
	rec, err := d.repo.GetByTokenID(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return &ledger.RecordInfo{ID: rec.ID, OwnerID: rec.OwnerID, TokenID: rec.TokenID}, nil
}

func (d *recordDirectory) ByID(ctx context.Context, id uuid.UUID) (*ledger.RecordInfo, error) {
	rec, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ledger.RecordInfo{ID: rec.ID, OwnerID: rec.OwnerID, TokenID: rec.TokenID}, nil
}

type userDirectory struct{ svc *user.Service }

func (d *userDirectory) Get(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return d.svc.Get(ctx, id)
}

func (d *userDirectory) ByWallet(ctx context.Context, address string) (*user.User, error) {
	return d.svc.ByWallet(ctx, address)
}

type txRunner struct{ pool *pgxpool.Pool }

func (t *txRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, t.pool, fn)
}

type cacheInvalidator struct{ cache *chain.AccessCache }

func (i *cacheInvalidator) Invalidate(ctx context.Context, tokenID, address string) error {
	i.cache.Invalidate(ctx, tokenID, address)
	return nil
}
