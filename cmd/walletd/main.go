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

	"yieldwallet/accrual"
	"yieldwallet/client"
	"yieldwallet/config"
	"yieldwallet/gateway"
	"yieldwallet/journal"
	"yieldwallet/observability/logging"
	"yieldwallet/observability/otel"
	"yieldwallet/operation"
	"yieldwallet/position"
	"yieldwallet/reconcile"
	"yieldwallet/wallet"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "walletd.toml", "path to the walletd configuration file")
	flag.Parse()

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "walletd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	env := os.Getenv("WALLETD_ENV")
	logger := logging.Setup("walletd", env, logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, otel.FromEnv("walletd", env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	registry, err := config.LoadChains(cfg.ChainsFile)
	if err != nil {
		return err
	}

	account := cfg.AccountAddress()
	chain := client.NewChain(registry.RPCEndpoints(), cfg.HubChainID)
	faucet := client.NewFaucet(registry.FaucetEndpoints())
	protocol := client.NewProtocol(registry.RPCEndpoints())
	signer := client.NewRemoteSigner(cfg.SignerEndpoint)

	jnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jnl.Close()

	recorders := []operation.Recorder{jnl}
	if cfg.RecorderEndpoint != "" {
		recorders = append(recorders, client.NewRecorder(cfg.RecorderEndpoint))
	}

	runner := operation.NewRunner(account, chain, faucet, signer, protocol)
	runner.SetRecorder(fanoutRecorder(recorders))
	runner.SetLogger(logger)

	store := position.NewStore()
	poller := reconcile.NewPoller(store, chain,
		reconcile.WithRetryPolicy(cfg.Reconcile.BaseDelay.Duration, cfg.Reconcile.MaxAttempts),
		reconcile.WithLogger(logger),
	)

	svc := wallet.NewService(account, registry.ChainIDs(), store, chain, runner, poller)
	svc.SetLogger(logger)
	svc.SetDisplayDigits(cfg.Display.MainDigits, cfg.Display.ExtraDigits)
	defer svc.Close()

	svc.Refresh(ctx)
	refresher := accrual.NewTicker(cfg.RefreshInterval.Duration, func(time.Time) {
		refreshCtx, cancel := context.WithTimeout(context.Background(), cfg.RefreshInterval.Duration)
		defer cancel()
		svc.Refresh(refreshCtx)
	})
	defer refresher.Stop()

	server := gateway.NewServer(svc,
		gateway.WithHistory(jnl),
		gateway.WithJWTSecret([]byte(cfg.Auth.JWTSecret)),
		gateway.WithTickInterval(cfg.TickInterval.Duration),
		gateway.WithLogger(logger),
	)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("walletd listening",
			"address", cfg.ListenAddress,
			"account", account.Hex(),
			"chains", len(registry.Chains),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// fanoutRecorder writes completed operations to every configured sink,
// returning the first failure after attempting all of them.
type fanoutRecorder []operation.Recorder

func (f fanoutRecorder) Record(ctx context.Context, op *operation.Operation) error {
	var firstErr error
	for _, rec := range f {
		if err := rec.Record(ctx, op); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
