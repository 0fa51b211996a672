package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dialdesk/dialdesk/internal/api"
	"github.com/dialdesk/dialdesk/internal/archive"
	"github.com/dialdesk/dialdesk/internal/config"
	"github.com/dialdesk/dialdesk/internal/database"
	"github.com/dialdesk/dialdesk/internal/database/models"
	"github.com/dialdesk/dialdesk/internal/media"
	"github.com/dialdesk/dialdesk/internal/metrics"
	"github.com/dialdesk/dialdesk/internal/pbxapi"
	"github.com/dialdesk/dialdesk/internal/softphone"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("starting dialdesk",
		"http_port", cfg.HTTPPort,
		"rtp_ports", fmt.Sprintf("%d-%d", cfg.RTPPortMin, cfg.RTPPortMax),
		"data_dir", cfg.DataDir,
	)

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	agents := database.NewAgentRepository(db)
	leads := database.NewLeadRepository(db)
	callLogs := database.NewCallLogRepository(db)
	callbacks := database.NewCallbackRepository(db)

	sysConfig, err := database.NewSystemConfigRepository(context.Background(), db)
	if err != nil {
		slog.Error("failed to load system config", "error", err)
		os.Exit(1)
	}

	if err := bootstrapAdmin(context.Background(), agents); err != nil {
		slog.Error("failed to bootstrap admin account", "error", err)
		os.Exit(1)
	}

	secret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}

	// Optional call-log archive mirror.
	engineOpts := softphone.EngineOptions{
		RTPPorts: media.PortRange{Min: cfg.RTPPortMin, Max: cfg.RTPPortMax},
	}
	if cfg.ArchiveDSN != "" {
		store, err := archive.New(cfg.ArchiveDSN, logger)
		if err != nil {
			slog.Error("failed to connect call-log archive", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		engineOpts.Archiver = store
		slog.Info("call-log archiving enabled")
	}

	resolver := softphone.NewResolver(sysConfig, logger)
	manager := softphone.NewManager(resolver, agents, callLogs, engineOpts, logger)

	pbx := pbxapi.NewClient(cfg.PBXAPIURL, cfg.PBXAPIUser, cfg.PBXAPIPass, logger)
	if pbx.Configured() {
		slog.Info("pbx management api configured", "url", cfg.PBXAPIURL)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(
		&engineStatusAdapter{manager: manager},
		callLogs,
		agents,
		time.Now(),
	))

	apiServer := api.NewServer(api.ServerOptions{
		Secret:    secret,
		Agents:    agents,
		Leads:     leads,
		CallLogs:  callLogs,
		Callbacks: callbacks,
		SysConfig: sysConfig,
		Engines:   manager,
		PBX:       pbx,
		Registry:  registry,
		Logger:    logger,
	})
	defer apiServer.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      apiServer,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // event streaming keeps responses open
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	manager.Close()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("dialdesk stopped")
}

// bootstrapAdmin creates an initial admin account on a fresh database,
// with a generated password printed once to the log.
func bootstrapAdmin(ctx context.Context, agents database.AgentRepository) error {
	count, err := agents.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting agents: %w", err)
	}
	if count > 0 {
		return nil
	}

	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generating admin password: %w", err)
	}
	password := hex.EncodeToString(raw)

	hash, err := database.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	admin := &models.Agent{
		Username:     "admin",
		PasswordHash: hash,
		DisplayName:  "Administrator",
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := agents.Create(ctx, admin); err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}

	slog.Warn("created initial admin account, change the password after first login",
		"username", "admin",
		"password", password,
	)
	return nil
}

// engineStatusAdapter bridges the softphone engine registry with the
// metrics collector's EngineStatusProvider interface.
type engineStatusAdapter struct {
	manager *softphone.Manager
}

func (a *engineStatusAdapter) EngineStatuses() []metrics.EngineStatusEntry {
	engines := a.manager.Engines()
	entries := make([]metrics.EngineStatusEntry, len(engines))
	for i, eng := range engines {
		st := eng.State()
		inCall := st.SessionState == softphone.SessionEstablishing ||
			st.SessionState == softphone.SessionEstablished ||
			st.SessionState == softphone.SessionTerminating
		entries[i] = metrics.EngineStatusEntry{
			Agent:           eng.Agent().Username,
			ConnectionState: st.Connection,
			InCall:          inCall,
		}
	}
	return entries
}
