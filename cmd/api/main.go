package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"zhardem.org/internal/auth"
	"zhardem.org/internal/config"
	"zhardem.org/internal/httpapi"
	"zhardem.org/internal/obs"
	"zhardem.org/internal/records"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	obs.InitLogger(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()

	db, err := sql.Open("pgx", cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer,
		cfg.AccessTokenTTL, time.Duration(cfg.RefreshTTLDays)*24*time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("token issuer")
	}

	accounts := auth.NewPGAccountStore(db)
	lockout := auth.NewLockoutGuard(accounts, cfg.LockoutThreshold, cfg.LockoutDuration)
	svc, err := auth.NewService(
		accounts,
		auth.NewPGSessionStore(db),
		auth.NewRedisRevocationList(rdb),
		issuer,
		lockout,
		auth.WithBcryptCost(cfg.BcryptCost),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("auth service")
	}

	recordSvc, err := records.NewService(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("record service")
	}

	rules := make(map[string]auth.OwnershipRule)
	for _, e := range records.Registry() {
		if !e.OwnershipScoped() {
			continue
		}
		rules[e.Name] = auth.OwnershipRule{
			Table:       e.Table,
			IDColumn:    e.IDColumn,
			OwnerColumn: e.OwnerColumn,
		}
	}
	registry, err := auth.NewOwnershipRegistry(rules)
	if err != nil {
		logger.Fatal().Err(err).Msg("ownership registry")
	}

	api := httpapi.New(httpapi.Options{
		Auth:      svc,
		Records:   recordSvc,
		Ownership: auth.NewOwnershipChecker(registry, auth.NewPGOwnerStore(db)),
		Probe: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		},
		Version: version,
		Cookies: httpapi.DefaultCookieConfig(cfg.Production()),
		LoginRate: httpapi.RateConfig{
			Enabled:   cfg.RLEnabled,
			Burst:     cfg.RLBurst,
			PerSecond: cfg.RLPerSec,
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting zhardem-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = rdb.Close()
	_ = db.Close()
	logger.Info().Msg("stopped")
}
