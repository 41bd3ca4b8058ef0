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

	"github.com/spf13/cobra"
	"github.com/user/threatsight/internal/alert"
	"github.com/user/threatsight/internal/config"
	"github.com/user/threatsight/internal/correlation"
	"github.com/user/threatsight/internal/feed"
	"github.com/user/threatsight/internal/ingest"
	"github.com/user/threatsight/internal/proxy"
	"github.com/user/threatsight/internal/server"
	"github.com/user/threatsight/internal/simulation"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the correlation service",
	RunE:  runServe,
}

func newStore(cfg *config.Config) *correlation.Store {
	classifier := correlation.NewClassifier(correlation.DefaultCategories(), correlation.ClassifierOptions{
		KeywordWeight:     cfg.Correlation.KeywordWeight,
		PayloadKeyWeight:  cfg.Correlation.PayloadKeyWeight,
		ConfidenceDivisor: cfg.Correlation.ConfidenceDivisor,
	})

	counter, err := simulation.NewTokenCounter()
	if err != nil {
		slog.Warn("token counter unavailable, token counts disabled", "error", err)
		counter = nil
	}

	return correlation.NewStore(correlation.Options{
		Capacity:     cfg.Correlation.Capacity,
		RevertDelay:  time.Duration(cfg.Correlation.RevertDelayMS) * time.Millisecond,
		RateWindow:   time.Duration(cfg.Correlation.RateWindowSec) * time.Second,
		Classifier:   classifier,
		TokenCounter: counter,
	})
}

// newDispatcher wires up the alert sinks that have credentials configured.
// Returns nil when no sink could be registered.
func newDispatcher(cfg *config.Config) *alert.Dispatcher {
	registry := alert.NewRegistry()

	if cfg.Alerts.TelegramToken != "" {
		sink, err := alert.NewTelegramSink(cfg.Alerts.TelegramToken)
		if err != nil {
			slog.Error("telegram sink init failed", "error", err)
		} else {
			registry.Register(sink)
		}
	}
	if cfg.Alerts.SlackToken != "" {
		registry.Register(alert.NewSlackSink(cfg.Alerts.SlackToken))
	}
	if cfg.Alerts.DiscordToken != "" {
		sink, err := alert.NewDiscordSink(cfg.Alerts.DiscordToken)
		if err != nil {
			slog.Error("discord sink init failed", "error", err)
		} else {
			registry.Register(sink)
		}
	}

	if len(registry.Sinks()) == 0 || len(cfg.Alerts.Targets) == 0 {
		slog.Warn("alerting disabled (no sinks or no targets configured)")
		return nil
	}

	return alert.NewDispatcher(registry, alert.DispatcherOptions{
		Targets:     cfg.Alerts.Targets,
		MinInterval: time.Duration(cfg.Alerts.MinIntervalSec) * time.Second,
		AdvisoryURL: cfg.Alerts.AdvisoryURL,
	})
}

func loadScenario(cfg *config.Config) (*simulation.Scenario, error) {
	if cfg.Simulation.ScenarioPath == "" {
		return simulation.DefaultScenario(), nil
	}
	return simulation.LoadScenario(cfg.Simulation.ScenarioPath)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	store := newStore(cfg)
	hub := feed.NewHub(store)

	pipe := ingest.New(store, int64(cfg.Ingest.MaxConcurrent), hub)
	if dispatcher := newDispatcher(cfg); dispatcher != nil {
		pipe.AddSink(dispatcher)
	}

	scenario, err := loadScenario(cfg)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	driver := simulation.NewDriver(scenario, store, pipe.Submit)
	driver.SetDrain(func() { pipe.Queue().WaitIdle(5 * time.Second) })

	fraudProxy, err := proxy.NewHandler("fraud", "/backend/fraud", cfg.Proxy.FraudURL)
	if err != nil {
		return fmt.Errorf("fraud proxy: %w", err)
	}
	graphProxy, err := proxy.NewHandler("graph", "/backend/graph", cfg.Proxy.GraphURL)
	if err != nil {
		return fmt.Errorf("graph proxy: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe.Start(ctx)
	go hub.Run(ctx, time.Duration(cfg.Feed.StatsIntervalSec)*time.Second)

	if cfg.Simulation.Enabled {
		if err := driver.Start(ctx); err != nil {
			return fmt.Errorf("start simulation: %w", err)
		}
	}

	srv := server.NewServer(store, pipe, hub, driver, fraudProxy, graphProxy)
	httpSrv := &http.Server{Addr: cfg.HTTP.Listen, Handler: srv}

	errCh := make(chan error, 1)
	if cfg.HTTP.Enabled {
		go func() {
			slog.Info("threatsight started",
				"listen", cfg.HTTP.Listen,
				"log_level", cfg.LogLevel,
				"capacity", cfg.Correlation.Capacity,
				"simulation", cfg.Simulation.Enabled,
				"scenario", scenario.Name,
			)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	} else {
		slog.Warn("http surface disabled; simulation and feed run headless")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sigChan:
	}

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", "error", err)
	}

	driver.Stop()
	pipe.Stop()
	hub.CloseAll()
	return nil
}
