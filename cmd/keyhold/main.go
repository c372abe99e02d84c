package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericfisherdev/keyhold/internal/adapter/driven/jsonfile"
	sqliteadapter "github.com/ericfisherdev/keyhold/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/keyhold/internal/adapter/driving/http"
	"github.com/ericfisherdev/keyhold/internal/application"
	"github.com/ericfisherdev/keyhold/internal/config"
	"github.com/ericfisherdev/keyhold/internal/domain/port/driven"
	"github.com/ericfisherdev/keyhold/internal/identity"
	"github.com/ericfisherdev/keyhold/internal/metrics"
	"github.com/ericfisherdev/keyhold/internal/platform"
	"github.com/ericfisherdev/keyhold/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

// stopFunc adapts a function to httphandler.Stopper.
type stopFunc func()

func (f stopFunc) RequestStop() { f() }

func run(ctx context.Context, cfg *config.Config) error {
	// 1. Logger.
	logger, logCloser, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	// Restored before the file closes so main can still report a fatal error.
	prevLogger := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(prevLogger)

	// 2. Provision the TLS identity when either file is missing.
	provisioned, err := identity.Ensure(identityParams(cfg), cfg.TLS.Key, cfg.TLS.Cert)
	if err != nil {
		return err
	}
	if provisioned {
		logger.Info("generated self-signed certificate",
			"cert", cfg.TLS.Cert,
			"key", cfg.TLS.Key,
			"cn", cfg.Identity.CN,
			"san", cfg.Identity.SAN,
			"days", cfg.Identity.Days,
		)
	} else {
		logger.Info("using existing certificate", "cert", cfg.TLS.Cert)
	}

	// 3. Load the credential document once.
	store, err := jsonfile.Open(cfg.Store.Path, logger)
	if err != nil {
		return err
	}

	// 4. Optional audit journal.
	var auditLog driven.AuditLog
	if cfg.Audit.Path != "" {
		db, err := sqliteadapter.NewDB(ctx, cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				logger.Error("error closing audit database", "error", closeErr)
			}
		}()
		version, err := sqliteadapter.RunMigrations(db.Writer)
		if err != nil {
			return err
		}
		auditLog = sqliteadapter.NewAuditRepo(db)
		logger.Info("audit journal opened", "path", db.Path(), "schema_version", version)
	}

	// 5. Service, handler and server.
	m := metrics.New()
	svc := application.NewCredentialService(store, auditLog, m, logger)
	svc.SyncMetrics(ctx)

	var srv *server.Server
	h := httphandler.NewHandler(svc, stopFunc(func() { srv.RequestStop() }), os.DirFS(cfg.Server.DocRoot), logger)
	srv = server.New(cfg.Server.Addr, httphandler.NewServeMux(h, logger, m), cfg.TLS.Cert, cfg.TLS.Key, logger)

	if err := srv.Listen(); err != nil {
		return err
	}

	// 6. Optional metrics listener.
	if cfg.Metrics.Addr != "" {
		metricsSrv := startMetrics(cfg.Metrics.Addr, m, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	// 7. Signals stop the server the same way the shutdown endpoint does.
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("signal received, shutting down")
			srv.RequestStop()
		case <-srv.Done():
		}
	}()

	url := platform.LocalURL(srv.Addr(), cfg.ServerName())
	logger.Info("keyhold started", "addr", srv.Addr(), "url", url, "docroot", cfg.Server.DocRoot)

	if cfg.Browser.Open {
		if err := platform.NewSystemBrowser().Open(url); err != nil {
			logger.Warn("could not open browser", "error", err)
		}
	}
	if cfg.Console.Hide || !provisioned {
		if err := platform.NewConsole().Hide(); err != nil {
			logger.Warn("could not hide console", "error", err)
		}
	}

	// 8. Serve until stopped.
	if err := srv.Serve(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

func identityParams(cfg *config.Config) identity.Params {
	return identity.Params{
		Subject: identity.Subject{
			Country:    cfg.Identity.Country,
			State:      cfg.Identity.State,
			Locality:   cfg.Identity.Locality,
			Org:        cfg.Identity.Org,
			CommonName: cfg.Identity.CN,
		},
		SANs:         cfg.Identity.SAN,
		ValidityDays: cfg.Identity.Days,
	}
}

// startMetrics serves /metrics over plain HTTP on addr.
func startMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}
