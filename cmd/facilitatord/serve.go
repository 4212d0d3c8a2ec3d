package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	x402 "github.com/x402-foundation/x402-facilitator"
	x402http "github.com/x402-foundation/x402-facilitator/http"
	"github.com/x402-foundation/x402-facilitator/mechanisms/svm"
	"github.com/x402-foundation/x402-facilitator/notify"
	"github.com/x402-foundation/x402-facilitator/receipts"
	"github.com/x402-foundation/x402-facilitator/replay"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the facilitator HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", ".", "directory containing config.yml")
}

func serve() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	guard, cleanupGuard, err := newGuard(cfg)
	if err != nil {
		return err
	}
	defer cleanupGuard()

	signer, err := newSigner(cfg)
	if err != nil {
		return err
	}

	var mechOpts []svm.FacilitatorOption
	if cfg.Solana.RPCURL != "" {
		mechOpts = append(mechOpts, svm.WithLedger(x402.Network(cfg.Solana.Network), svm.NewRPCLedger(cfg.Solana.RPCURL)))
	}
	mechanism := svm.NewExactSvmFacilitator(signer, mechOpts...)

	facilitator := x402.NewFacilitator(guard)
	facilitator.Register(x402.Network(mechanism.CaipFamily()), mechanism)

	var recorder x402.SettlementRecorder
	if cfg.Receipts.Path != "" {
		store, err := receipts.Open(cfg.Receipts.Path)
		if err != nil {
			return err
		}
		recorder = store

		reconciler := receipts.NewReconciler(
			store, guard, newStatusFunc(cfg),
			cfg.Receipts.ReconcileInterval, cfg.Receipts.ReconcileMaxAge, logger)
		reconciler.Start()
		defer reconciler.Stop()
	}

	var notifier x402.NotificationSink
	if cfg.Gateway.WebhookURL != "" {
		sink := notify.NewWebhookSink(cfg.Gateway.WebhookURL, 256, logger)
		defer sink.Close()
		notifier = sink
	}

	router := gin.New()
	router.Use(gin.Recovery())

	x402http.NewService(facilitator, logger).RegisterRoutes(router)

	if len(cfg.Gateway.Routes) > 0 {
		mountGateway(router, cfg, facilitator, notifier, recorder, logger)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("facilitator listening", "addr", cfg.Server.Addr, "network", cfg.Solana.Network)
		errs <- server.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	case err := <-errs:
		return err
	}
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newGuard(cfg *Config) (x402.ReplayGuard, func(), error) {
	if cfg.Replay.RedisURL != "" {
		store, err := replay.NewRedisStore(cfg.Replay.RedisURL, cfg.Replay.Retention)
		if err != nil {
			return nil, nil, fmt.Errorf("replay guard: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
	return replay.NewMemoryStore(cfg.Replay.Retention), func() {}, nil
}

func newSigner(cfg *Config) (svm.Signer, error) {
	switch {
	case cfg.Solana.FeePayerKey != "":
		return svm.NewKeySigner(cfg.Solana.FeePayerKey)
	case cfg.Solana.FeePayerKeygenFile != "":
		return svm.NewKeySignerFromKeygenFile(cfg.Solana.FeePayerKeygenFile)
	default:
		return nil, nil
	}
}

// newStatusFunc builds the reconciler's finality check against the configured
// network's RPC endpoint.
func newStatusFunc(cfg *Config) receipts.StatusFunc {
	return func(ctx context.Context, network, txRef string) (receipts.TxStatus, error) {
		rpcURL := cfg.Solana.RPCURL
		if rpcURL == "" {
			networkConfig, err := svm.GetNetworkConfig(network)
			if err != nil {
				return receipts.TxPending, err
			}
			rpcURL = networkConfig.RPCURL
		}

		finalized, rejected, err := svm.NewRPCLedger(rpcURL).SignatureStatus(ctx, txRef)
		switch {
		case err != nil:
			return receipts.TxPending, err
		case rejected:
			return receipts.TxFailed, nil
		case finalized:
			return receipts.TxFinalized, nil
		default:
			return receipts.TxPending, nil
		}
	}
}

// mountGateway gates the configured routes behind payments, serving a small
// JSON confirmation as the protected resource.
func mountGateway(router *gin.Engine, cfg *Config, facilitator *x402.Facilitator, notifier x402.NotificationSink, recorder x402.SettlementRecorder, logger *slog.Logger) {
	routes := make(x402http.StaticRoutes, len(cfg.Gateway.Routes))
	for path, route := range cfg.Gateway.Routes {
		routes[path] = x402.Price{
			Asset:   route.Asset,
			Amount:  route.Amount,
			PayTo:   route.PayTo,
			Scheme:  x402.SchemeExact,
			Network: x402.Network(cfg.Solana.Network),
		}
	}

	gateway := x402http.NewGateway(x402http.GatewayConfig{
		Facilitator:       facilitator,
		Policy:            routes,
		Network:           x402.Network(cfg.Solana.Network),
		ChallengeTTL:      cfg.Gateway.ChallengeTTL,
		MaxTimeoutSeconds: cfg.Gateway.MaxTimeoutSeconds,
		Notifier:          notifier,
		Recorder:          recorder,
		Logger:            logger,
	})

	handler := func(c *gin.Context) {
		response := gin.H{"resource": c.Request.URL.Path, "paid": true}
		if payment := x402http.GetPaymentFromContext(c); payment != nil {
			response["payer"] = payment.Payer
		}
		c.JSON(http.StatusOK, response)
	}

	middleware := x402http.Middleware(gateway)
	for path := range cfg.Gateway.Routes {
		router.GET(path, middleware, handler)
	}
}
