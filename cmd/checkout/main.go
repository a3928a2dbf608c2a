// Command checkout runs the chonkmart checkout service: it manages purchase
// flows, submits Solana payments, polls for on-chain confirmation, and
// unlocks content once payment lands.
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

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chonkmart/checkout/internal/catalog"
	"github.com/chonkmart/checkout/internal/circuitbreaker"
	"github.com/chonkmart/checkout/internal/config"
	"github.com/chonkmart/checkout/internal/httpserver"
	"github.com/chonkmart/checkout/internal/ledger"
	"github.com/chonkmart/checkout/internal/lifecycle"
	"github.com/chonkmart/checkout/internal/logger"
	"github.com/chonkmart/checkout/internal/metrics"
	"github.com/chonkmart/checkout/internal/purchase"
	"github.com/chonkmart/checkout/internal/txbuilder"
	"github.com/chonkmart/checkout/internal/wallet"
	"github.com/chonkmart/checkout/pkg/solanapay"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "checkout: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Best effort: a missing .env is fine, real env vars still apply.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "chonkmart-checkout",
		Version:     version,
		Environment: cfg.Logging.Environment,
	})

	resources := lifecycle.NewManager()
	defer func() {
		if err := resources.Close(); err != nil {
			appLogger.Error().Err(err).Msg("shutdown.cleanup_failed")
		}
	}()

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)
	breakers := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)

	catalogRepo, err := catalog.NewRepository(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}
	resources.Register("catalog", catalogRepo)

	rpcClient := rpc.New(cfg.Solana.RPCURL)
	chain := solanapay.NewClientWithRPC(rpcClient).
		WithMetrics(metricsCollector, cfg.Solana.Network)

	walletKey, err := wallet.ParsePrivateKey(cfg.Wallet.PrivateKey)
	if err != nil {
		return fmt.Errorf("parse wallet key (CHONK_WALLET_KEY): %w", err)
	}
	buyerWallet := wallet.NewKeypairWallet(walletKey, rpcClient).
		WithMetrics(metricsCollector, cfg.Solana.Network).
		WithSkipPreflight(cfg.Solana.SkipPreflight)

	builder, err := newBuilder(cfg, catalogRepo, chain, breakers)
	if err != nil {
		return fmt.Errorf("init transaction builder: %w", err)
	}

	commitment, err := solanapay.ParseCommitment(cfg.Solana.Commitment)
	if err != nil {
		return fmt.Errorf("parse commitment: %w", err)
	}

	registry := purchase.NewRegistry(purchase.Deps{
		Builder:      builder,
		Wallet:       buyerWallet,
		Ledger:       ledger.NewConfirmationSource(chain, breakers),
		Orders:       catalogRepo,
		Logger:       appLogger,
		Metrics:      metricsCollector,
		PollInterval: cfg.Purchase.PollInterval.Duration,
		Commitment:   commitment,
		UpdateBuffer: cfg.Purchase.UpdateBuffer,
	})
	resources.Register("purchase-flows", registry)

	server := httpserver.New(cfg, registry, catalogRepo, buyerWallet, breakers, metricsCollector, appLogger)

	appLogger.Info().
		Str("address", cfg.Server.Address).
		Str("network", cfg.Solana.Network).
		Str("commitment", cfg.Solana.Commitment).
		Str("builder_mode", cfg.Builder.Mode).
		Str("catalog_source", cfg.Catalog.Source).
		Str("buyer", logger.TruncateAddress(buyerWallet.PublicKey().String())).
		Msg("service.starting")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		appLogger.Info().Str("signal", sig.String()).Msg("service.stopping")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	appLogger.Info().Msg("service.stopped")
	return nil
}

// newBuilder selects the transaction builder implementation from config.
func newBuilder(cfg *config.Config, catalogRepo catalog.Repository, chain *solanapay.Client, breakers *circuitbreaker.Manager) (purchase.TransactionBuilder, error) {
	switch cfg.Builder.Mode {
	case "remote":
		b, err := txbuilder.NewRemoteBuilder(cfg.Builder.URL, cfg.Builder.Timeout.Duration)
		if err != nil {
			return nil, err
		}
		return b.WithBreakers(breakers), nil
	case "local":
		recipient, err := solana.PublicKeyFromBase58(cfg.Builder.PaymentAddress)
		if err != nil {
			return nil, fmt.Errorf("parse payment address: %w", err)
		}
		b, err := txbuilder.NewLocalBuilder(catalogRepo, chain, recipient)
		if err != nil {
			return nil, err
		}
		return b.WithMemoPrefix(cfg.Builder.MemoPrefix).WithBreakers(breakers), nil
	default:
		return nil, fmt.Errorf("unknown builder mode %q", cfg.Builder.Mode)
	}
}
