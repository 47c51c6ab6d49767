package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vtupay/config"
	"vtupay/internal/adapter/http/handler"
	"vtupay/internal/adapter/provider"
	"vtupay/internal/adapter/storage/postgres"
	"vtupay/internal/adapter/storage/redis"
	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/internal/service"
	"vtupay/pkg/logger"

	"github.com/rs/zerolog"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Database, logger.For(log, "postgres"))
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := redis.NewClient(ctx, cfg.Redis, logger.For(log, "redis"))
	if err != nil {
		return err
	}
	defer redisClient.Close()

	walletRepo := postgres.NewWalletRepo(pool)
	txnRepo := postgres.NewTransactionRepo(pool)
	providerRepo := postgres.NewProviderRepo(pool)
	transactor := postgres.NewTransactor(pool)
	reconcileCache := redis.NewReconcileCache(redisClient)

	if err := seedProviders(ctx, providerRepo, cfg.Providers); err != nil {
		return err
	}

	adapters := make(map[string]ports.ProviderAdapter, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		adapters[pc.Name] = provider.NewHTTPAdapter(pc, nil, logger.For(log, "provider."+pc.Name))
	}

	transferFees := domain.FeePolicy{Rate: cfg.Fees.TransferRate, Minimum: cfg.Fees.TransferMinimum}

	walletSvc := service.NewWalletService(walletRepo, txnRepo, transactor, service.NewPinService(), logger.For(log, "wallet"))
	ledgerSvc := service.NewLedgerService(txnRepo, transactor, cfg.Settlement.MaxRetries, logger.For(log, "ledger"))
	registry := service.NewProviderRegistry(providerRepo, logger.For(log, "registry"))
	settlementSvc := service.NewSettlementService(walletRepo, txnRepo, transactor, registry, adapters, cfg.Settlement, logger.For(log, "settlement"))
	reconcilerSvc := service.NewReconcilerService(walletRepo, txnRepo, transactor, reconcileCache, logger.For(log, "reconciler"))
	transferSvc := service.NewTransferService(walletRepo, txnRepo, transactor, transferFees, logger.For(log, "transfer"))

	router := handler.SetupRouter(handler.RouterDeps{
		Cfg:        cfg,
		Log:        logger.For(log, "http"),
		Wallets:    walletSvc,
		Ledger:     ledgerSvc,
		Settlement: settlementSvc,
		Transfers:  transferSvc,
		Reconciler: reconcilerSvc,
		Tokens:     service.NewTokenService(cfg.JWT),
		Signatures: service.NewSignatureService(),
		Checkers: []ports.HealthChecker{
			postgres.NewHealthCheck(pool),
			redis.NewHealthCheck(redisClient),
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// seedProviders upserts the configured providers so routing state exists
// before the first settlement. Counters on existing rows are preserved.
func seedProviders(ctx context.Context, repo ports.ProviderRepository, configs []config.ProviderConfig) error {
	for _, pc := range configs {
		services := make([]domain.TransactionType, 0, len(pc.SupportedServices))
		for _, s := range pc.SupportedServices {
			t := domain.TransactionType(s)
			if !t.IsValid() {
				return fmt.Errorf("provider %s: unknown service %q", pc.Name, s)
			}
			services = append(services, t)
		}
		p := &domain.Provider{
			Name:              pc.Name,
			SupportedServices: services,
			Status:            domain.ProviderActive,
			Priority:          pc.Priority,
			UpdatedAt:         time.Now().UTC(),
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seeding provider %s: %w", pc.Name, err)
		}
	}
	return nil
}
