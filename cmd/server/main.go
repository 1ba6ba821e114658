package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"faucet/internal/faucet/handler"
	faucetmetrics "faucet/internal/faucet/metrics"
	"faucet/internal/faucet/service/cooldown"
	"faucet/internal/faucet/service/eligibility"
	"faucet/internal/faucet/service/history"
	"faucet/internal/faucet/service/transfer"
	"faucet/internal/faucet/service/workflow"
	"faucet/internal/faucet/warmer"
	"faucet/internal/identity"
	"faucet/internal/ledger/neo"
	"faucet/internal/platform/config"
	"faucet/internal/platform/httpserver"
	"faucet/internal/platform/logger"
	"faucet/internal/platform/metrics"
	"faucet/internal/referenceset"
	"faucet/pkg/platform/httputil"
	"faucet/pkg/platform/middleware/admin"
	"faucet/pkg/platform/middleware/auth"
	"faucet/pkg/platform/middleware/device"
	"faucet/pkg/platform/middleware/metadata"
	"faucet/pkg/platform/middleware/ratelimit"
	"faucet/pkg/platform/middleware/request"
	"faucet/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		slog.Error("faucet exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := faucetmetrics.New(reg)

	store, err := openStore(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer store.close()

	auditPub, err := openAudit(ctx, cfg.Audit, log)
	if err != nil {
		return err
	}
	defer auditPub.close()

	ledger, err := neo.New(ctx, neo.Config{
		RPCURL:       cfg.Ledger.RPCURL,
		SenderWIF:    cfg.Ledger.SenderWIF,
		Amount:       cfg.Ledger.Amount,
		PollInterval: cfg.Ledger.PollInterval,
		DialTimeout:  cfg.Ledger.DialTimeout,
	}, neo.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connect ledger: %w", err)
	}
	defer ledger.Close()

	source, err := referenceset.New(cfg.RefSet.URL,
		referenceset.WithTimeout(cfg.RefSet.FetchTimeout),
		referenceset.WithLogger(log),
	)
	if err != nil {
		return err
	}

	wf, err := workflow.New(store,
		workflow.WithLogger(log),
		workflow.WithAuditPublisher(auditPub),
		workflow.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	elig, err := eligibility.New(store, wf, source,
		eligibility.WithLogger(log),
		eligibility.WithMetrics(m),
		eligibility.WithTTL(cfg.RefSet.TTL),
	)
	if err != nil {
		return err
	}
	cd, err := cooldown.New(store,
		cooldown.WithLogger(log),
		cooldown.WithWindow(cfg.Faucet.Cooldown()),
	)
	if err != nil {
		return err
	}
	hist, err := history.New(store,
		history.WithLogger(log),
		history.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	dist, err := transfer.New(store, ledger, elig, cd, hist,
		transfer.WithLogger(log),
		transfer.WithAuditPublisher(auditPub),
		transfer.WithMetrics(m),
		transfer.WithTransferTimeout(cfg.Faucet.TransferTimeout),
	)
	if err != nil {
		return err
	}

	sessions := identity.NewSessionService(cfg.Session.Secret, cfg.Session.Issuer)
	resolver := identity.NewGitHubResolver(
		identity.WithBaseURL(cfg.GitHub.APIURL),
		identity.WithToken(cfg.GitHub.Token),
		identity.WithGitHubLogger(log),
	)
	if cfg.Faucet.AdminEmail == "" {
		log.Warn("ADMIN_EMAIL is not set; admin routes will refuse every caller")
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", healthHandler(store))
	r.Handle("/metrics", metrics.Handler(reg))

	limiter := ratelimit.New(
		ratelimit.WithRate(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		ratelimit.WithDisabled(cfg.Server.RateLimitOff),
		ratelimit.WithLogger(log),
	)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		handler.New(dist, wf, elig, cd, hist, log).Register(r,
			auth.RequireSession(sessions, resolver, log),
			admin.RequireAdmin(cfg.Faucet.AdminEmail, auditPub, log),
		)
	})

	refresher, err := warmer.New(elig, cfg.RefSet.RefreshSchedule, log)
	if err != nil {
		return err
	}
	go refresher.Start(ctx)

	srv := httpserver.New(cfg.Server, r)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting faucet", "addr", cfg.Server.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	refresher.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// healthHandler reports liveness and whether the store is serving from its
// in-process fallback.
func healthHandler(store *appStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"store_degraded": store.degraded(),
		})
	}
}
