package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adamvoss/pexeso-server/internal/admin"
	"github.com/adamvoss/pexeso-server/internal/config"
	"github.com/adamvoss/pexeso-server/internal/logging"
	"github.com/adamvoss/pexeso-server/internal/server"
)

// Application wires together one running server process, generalized from
// the teacher's backend/main.go Application struct: the same
// Initialize/Run/gracefulShutdown shape, with the HTTP+WebSocket stack
// replaced by the TCP acceptor (internal/server) and the admin HTTP surface
// (internal/admin) standing in for the teacher's combined API+WebSocket
// router.
type Application struct {
	config *config.Config
	logger *logging.Logger
	srv    *server.Server
	admin  *admin.Server
}

func main() {
	config.LoadDotEnv(".env")

	app := &Application{}
	if err := app.Initialize(os.Args[1:]); err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("application failed: %v", err)
	}
}

func (app *Application) Initialize(args []string) error {
	cfg, err := config.ParseArgs(args)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	app.config = cfg

	logger, err := logging.New(logging.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Service:   cfg.Service,
		SentryDSN: cfg.SentryDSN,
		AddSource: cfg.LogAddSource,
	})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	app.logger = logger

	if cfg.SentryDSN != "" {
		if err := logging.InitSentry(logging.SentryConfig{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          cfg.SentryRelease,
			TracesSampleRate: cfg.SentryTracesSampleRate,
		}); err != nil {
			return fmt.Errorf("sentry: %w", err)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	app.srv = srv

	if cfg.AdminAddr != "" {
		app.admin = admin.New(cfg.AdminAddr, srv.Clients(), srv.Rooms(), prometheus.NewRegistry(), cfg.MetricsNamespace)
	}

	app.logger.Info("application initialized", "addr", srv.Addr(), "max_rooms", cfg.MaxRooms, "max_clients", cfg.MaxClients)
	return nil
}

func (app *Application) Run() error {
	errCh := make(chan error, 2)

	go func() {
		if err := app.srv.Run(); err != nil {
			errCh <- fmt.Errorf("acceptor: %w", err)
		}
	}()

	if app.admin != nil {
		go func() {
			if err := app.admin.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("admin: %w", err)
			}
		}()
		// server.New already bound the listener synchronously, so the
		// acceptor above is accepting connections as soon as its goroutine
		// is scheduled.
		app.admin.MarkReady()
	}

	return app.waitForShutdownSignal(errCh)
}

func (app *Application) waitForShutdownSignal(errCh chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		app.logger.Error("component failed", "err", err)
		app.gracefulShutdown()
		return err
	case sig := <-quit:
		app.logger.Info("received shutdown signal", "signal", sig.String())
		app.gracefulShutdown()
		return nil
	}
}

func (app *Application) gracefulShutdown() {
	app.logger.Info("starting graceful shutdown")

	if app.admin != nil {
		app.admin.Quiesce()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.srv.Shutdown()
	}()

	if app.admin != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.admin.Shutdown(); err != nil {
				app.logger.Warn("admin shutdown error", "err", err)
			}
		}()
	}

	wg.Wait()
	logging.FlushSentry(app.config.SentryFlushTimeout)
	app.logger.Info("graceful shutdown complete")
}
