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

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/config"
	"github.com/brandon/mcp-mailbridge/internal/email"
	"github.com/brandon/mcp-mailbridge/internal/mcp"
	"github.com/brandon/mcp-mailbridge/internal/poller"
	"github.com/brandon/mcp-mailbridge/internal/sanitize"
	"github.com/brandon/mcp-mailbridge/internal/store"
	"github.com/brandon/mcp-mailbridge/internal/tracking"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mcp-mailbridge version %s\n", version)
		os.Exit(0)
	}
	// Set up logging; stdout carries the MCP protocol
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithField("version", version).Info("Starting mail bridge")

	// Initialize store
	db, err := store.Open(cfg.StorePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize store")
	}
	defer db.Close()

	st := store.NewStore(db.SQL(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Register tenants
	for i := range cfg.Accounts {
		if _, err := st.UpsertTenant(ctx, &cfg.Accounts[i]); err != nil {
			logger.WithError(err).WithField("tenant", cfg.Accounts[i].Name).Warn("Failed to register tenant")
		}
	}

	deps := email.Deps{
		Store:     st,
		Sanitizer: sanitize.New(),
	}

	// Tracking endpoint
	var trackingServer *http.Server
	if cfg.Tracking.Enabled {
		deps.Tracker = tracking.NewService(st, cfg.Tracking.BaseURL, logger)

		router := tracking.NewRouter(tracking.NewHandler(st, db, logger))
		trackingServer = &http.Server{
			Addr:              cfg.Tracking.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.WithField("addr", cfg.Tracking.Addr).Info("Tracking endpoint listening")
			if err := trackingServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Tracking endpoint stopped")
			}
		}()
	}

	// Initialize email manager
	emailManager := email.NewManager(cfg, deps, logger)

	// Background sync
	pollDone := make(chan struct{})
	if cfg.Poll.Enabled {
		p := poller.New(cfg.Poll.Interval, logger)
		for _, acc := range emailManager.Accounts() {
			if acc.CanRead() {
				p.Register(acc)
			}
		}
		go func() {
			p.Run(ctx)
			close(pollDone)
		}()
	} else {
		close(pollDone)
	}

	// Create MCP server
	server := mcp.NewServer(emailManager, version, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Run server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run(ctx)
	}()

	// Wait for shutdown signal, error or end of input
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Error("Server error")
		}
	}
	cancel()

	if trackingServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := trackingServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Tracking endpoint shutdown failed")
		}
		stop()
	}
	<-pollDone

	logger.Info("Shutting down mail bridge")
}
