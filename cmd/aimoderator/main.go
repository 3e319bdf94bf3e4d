// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

// Command aimoderator runs the Matrix room moderation service: it
// long-polls /sync on the configured homeserver and routes every
// message through the moderation pipeline.
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
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/williamkray/maubot-aimoderator/lib/config"
	"github.com/williamkray/maubot-aimoderator/lib/ref"
	"github.com/williamkray/maubot-aimoderator/messaging"
	"github.com/williamkray/maubot-aimoderator/moderation"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("aimoderator failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("aimoderator", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML config file (overrides AIMODERATOR_CONFIG)")
	homeserver := flags.String("homeserver", "", "homeserver URL (overrides config)")
	userID := flags.String("user-id", "", "moderator user ID (overrides config)")
	accessToken := flags.String("access-token", "", "access token (overrides config)")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *showVersion {
		fmt.Println("aimoderator " + version)
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if *homeserver != "" {
		cfg.HomeserverURL = *homeserver
	}
	if *userID != "" {
		cfg.UserID = *userID
	}
	if *accessToken != "" {
		cfg.AccessToken = *accessToken
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.HomeserverURL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	moderatorID, err := ref.ParseUserID(cfg.UserID)
	if err != nil {
		return fmt.Errorf("invalid user_id: %w", err)
	}
	session, err := client.SessionFromToken(moderatorID, cfg.AccessToken)
	if err != nil {
		return err
	}

	// Fail fast on a bad token instead of looping sync errors.
	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("access token check: %w", err)
	}
	if whoami != moderatorID {
		return fmt.Errorf("access token belongs to %q, config says %q", whoami, moderatorID)
	}
	logger.Info("authenticated", "user_id", moderatorID)

	scorer, err := moderation.NewContentScorer(moderation.ScorerConfig{
		Config:    cfg,
		Transport: session,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	pipeline, err := moderation.NewPipeline(moderation.PipelineConfig{
		Config:    cfg,
		Transport: session,
		Scorer:    scorer,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		startMetricsListener(ctx, logger, cfg.MetricsListen)
	}

	pump, err := messaging.NewPump(messaging.PumpConfig{
		Session: session,
		Logger:  logger,
		OnMessage: func(ctx context.Context, message *messaging.MessageEvent) {
			if _, err := pipeline.HandleMessage(ctx, message); err != nil {
				logger.Error("abandoning event",
					"room_id", message.RoomID,
					"event_id", message.EventID,
					"error", err,
				)
			}
		},
		OnJoin: pipeline.HandleJoin,
	})
	if err != nil {
		return err
	}

	logger.Info("moderation service starting",
		"version", version,
		"homeserver", cfg.HomeserverURL,
		"threshold", cfg.Threshold,
	)

	if err := pump.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// startMetricsListener serves Prometheus metrics on addr until ctx is
// canceled. Listener failures are logged, not fatal: moderation keeps
// running without metrics.
func startMetricsListener(ctx context.Context, logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics listener starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
