package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/coordination"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/crypto"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/database"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/platform/config"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/platform/logging"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/server"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/tokens"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/tokens/refresher"
)

const leaseTTL = 10 * time.Minute

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupCrypto builds the credential cipher and proves it can round-trip a
// payload before any real token is trusted to it. A service that starts
// with broken key material would corrupt every credential it touches.
func setupCrypto(cfg *config.Config) *crypto.Service {
	cipher, err := crypto.New(crypto.KeyConfig{
		EncryptionKeyHex: cfg.TokenEncryptionKey,
		Secret:           cfg.CredentialSecret,
		Salt:             cfg.CredentialSalt,
		SessionSecret:    cfg.SessionSecret,
	})
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}

	source, err := cipher.ValidateConfig()
	if err != nil {
		slog.Error("Credential encryption self-test failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Credential encryption ready", "key_source", string(source))

	return cipher
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := coordination.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, scheduler *tokens.Scheduler, cancelLoop context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		scheduler.Stop()
		cancelLoop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	cipher := setupCrypto(cfg)

	pool := setupDB(cfg)
	defer pool.Close()

	// Redis is optional: without it this instance assumes it is the only
	// replica and always runs maintenance.
	var redisClient *goredis.Client
	var leaser tokens.Leaser
	if cfg.RedisURL != "" {
		redisClient = setupRedis(context.Background(), cfg)
		defer func() { _ = redisClient.Close() }()
		leaser = coordination.NewMaintenanceLease(redisClient, uuid.NewString(), leaseTTL)
	}

	repo := database.NewCredentialRepo(pool)

	registry := refresher.NewRegistry()
	registry.Register(domain.ProviderSchwab, refresher.NewSchwab(cfg.SchwabClientID, cfg.SchwabClientSecret))
	registry.Register(domain.ProviderCoinbase, refresher.NewCoinbase(cfg.CoinbaseClientID, cfg.CoinbaseClientSecret))

	manager := tokens.NewManager(repo, cipher, registry, clock)

	scheduler := tokens.NewScheduler(manager, leaser, clock,
		tokens.WithInterval(cfg.MaintenanceInterval),
		tokens.WithStartupGrace(cfg.StartupGracePeriod))

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	go scheduler.Start(loopCtx)

	// Pass nil explicitly to avoid a typed-nil interface
	var srv *server.Server
	if redisClient != nil {
		srv = server.NewServer(cfg, repo, pool, redisClient, clock)
	} else {
		srv = server.NewServer(cfg, repo, pool, nil, clock)
	}

	done := runGracefulShutdown(srv, scheduler, cancelLoop)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
