// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/teradata-labs/liverl/internal/pubsub"
	"github.com/teradata-labs/liverl/pkg/liverl"
	"github.com/teradata-labs/liverl/pkg/llm"
	"github.com/teradata-labs/liverl/pkg/observability"
)

// healthService is the grpc.health.v1 service name that follows the gate.
const healthService = "liverl.Bridge"

const (
	maxEventLineBytes = 1 << 20
	shutdownTimeout   = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Feed agent lifecycle events into the live RL bridge",
	Long: `Reads JSON-lines agent events from a file or stdin and drives the live RL bridge.

Each line is one event:
  {"kind":"run_start"}
  {"kind":"message","role":"user","text":"..."}
  {"kind":"tool_end","is_error":true}
  {"kind":"turn_end"}
  {"kind":"safety_applied","blocked":true}
  {"kind":"run_end"}

Prometheus metrics are served on --metrics-addr and a grpc.health.v1 service on
--health-addr reports NOT_SERVING while the failure gate is holding. Send SIGHUP
to reopen a held gate once the underlying store problem is fixed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("events", "-", "JSON-lines event file (- for stdin)")
	serveCmd.Flags().String("metrics-addr", ":9464", "Prometheus /metrics listen address (empty disables)")
	serveCmd.Flags().String("health-addr", ":50061", "gRPC health listen address (empty disables)")
	serveCmd.Flags().String("llm-provider", "none", "LLM provider for prompt optimization (none, anthropic, openai)")
	serveCmd.Flags().String("llm-model", "", "LLM model for prompt optimization")

	_ = viper.BindPFlag("server.metrics_addr", serveCmd.Flags().Lookup("metrics-addr"))
	_ = viper.BindPFlag("server.health_addr", serveCmd.Flags().Lookup("health-addr"))
	_ = viper.BindPFlag("llm.provider", serveCmd.Flags().Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.model", serveCmd.Flags().Lookup("llm-model"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting liverl", zap.String("version", rootCmd.Version))
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Info("Config file loaded", zap.String("path", used))
	}

	runtimeCfg, err := runtimeConfig(viper.GetViper(), cliCfg.Store.Path)
	if err != nil {
		return fmt.Errorf("invalid live RL configuration: %w", err)
	}
	if !runtimeCfg.Enabled {
		logger.Warn("live RL bridge is disabled, events will be ignored",
			zap.String("enable_with", liverl.EnvEnabled+"=true"))
	}

	tracer := observability.NewPrometheusTracer(observability.PrometheusConfig{Logger: logger})

	store, err := openStore(ctx, cliCfg.Store.Backend, runtimeCfg.StorePath, tracer, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close training store", zap.Error(err))
		}
	}()
	logger.Info("Training store opened",
		zap.String("backend", cliCfg.Store.Backend),
		zap.String("path", runtimeCfg.StorePath))

	apo, err := apoRuntime(cliCfg.LLM, tracer)
	if err != nil {
		return err
	}
	if apo == nil && runtimeCfg.APOEnabled {
		logger.Info("No LLM provider configured, prompt optimization rounds will be skipped")
	}

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(healthService, gateServingStatus(liverl.GatePass))

	bridge, err := liverl.NewBridge(liverl.Config{
		Runtime: runtimeCfg,
		Store:   store,
		APO:     apo,
		Tracer:  tracer,
		Logger:  logger.Named("bridge"),
		OnGateChange: func(from, to liverl.Gate) {
			healthSrv.SetServingStatus(healthService, gateServingStatus(to))
		},
	})
	if err != nil {
		return err
	}

	eventsPath, _ := cmd.Flags().GetString("events")
	input, err := openEvents(cmd, eventsPath)
	if err != nil {
		return err
	}
	defer func() { _ = input.Close() }()

	broker := pubsub.NewBroker[liverl.Event]()
	events := broker.Subscribe(ctx)

	g, gctx := errgroup.WithContext(ctx)
	bridgeDone := make(chan struct{})

	var metricsSrv *http.Server
	if addr := cliCfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", tracer.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("Serving Prometheus metrics", zap.String("addr", addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
	}

	var grpcSrv *grpc.Server
	if addr := cliCfg.Server.HealthAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, healthSrv)
		g.Go(func() error {
			logger.Info("Serving gRPC health", zap.String("addr", lis.Addr().String()))
			if err := grpcSrv.Serve(lis); err != nil {
				return fmt.Errorf("health server failed: %w", err)
			}
			return nil
		})
	}

	resetSignals := make(chan os.Signal, 1)
	signal.Notify(resetSignals, syscall.SIGHUP)
	defer signal.Stop(resetSignals)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()

	g.Go(func() error {
		defer close(bridgeDone)
		defer stopWatch()
		if err := bridge.Run(gctx, events); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		resetGateOnSignal(watchCtx, resetSignals, bridge, logger)
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-bridgeDone:
		}
		healthSrv.Shutdown()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	// stdin reads cannot be interrupted, so the pump stays outside the group
	go func() {
		defer broker.Shutdown()
		n, err := pumpEvents(gctx, input, broker, logger)
		if err != nil {
			logger.Error("Event feed failed", zap.Error(err))
		}
		logger.Info("Event feed finished", zap.Int("events", n))
	}()

	err = g.Wait()
	logSnapshot(logger, bridge.Snapshot())
	return err
}

// resetGateOnSignal reopens the failure gate each time a signal arrives on
// sigs (SIGHUP under serve) until ctx is done.
func resetGateOnSignal(ctx context.Context, sigs <-chan os.Signal, bridge *liverl.Bridge, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			before := bridge.Snapshot()
			bridge.ResetGate()
			logger.Info("Failure gate reset by operator",
				zap.String("signal", sig.String()),
				zap.String("gate_before", string(before.Gate)),
				zap.Int("consecutive_failures_before", before.ConsecutiveFailures),
				zap.String("last_error", before.LastError))
		}
	}
}

// pumpEvents publishes every decodable line of r. Malformed lines are logged
// and skipped.
func pumpEvents(ctx context.Context, r io.Reader, broker *pubsub.Broker[liverl.Event], logger *zap.Logger) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)

	published, line := 0, 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return published, nil
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		ev, err := liverl.DecodeEvent([]byte(raw))
		if err != nil {
			logger.Warn("Skipping malformed event", zap.Int("line", line), zap.Error(err))
			continue
		}
		broker.Publish(pubsub.CreatedEvent, ev)
		published++
	}
	if err := scanner.Err(); err != nil {
		return published, fmt.Errorf("failed to read events: %w", err)
	}
	return published, nil
}

func openEvents(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	return f, nil
}

// apoRuntime returns nil when no provider is configured.
func apoRuntime(cfg LLMConfig, tracer observability.Tracer) (*liverl.APORuntime, error) {
	client, err := llm.NewClient(llm.ProviderConfig{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		RateLimit: llm.DefaultRateLimiterConfig(),
		Tracer:    tracer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	if client == nil {
		return nil, nil
	}
	model := cfg.Model
	if named, ok := client.(llm.Named); ok && model == "" {
		model = named.Model()
	}
	return &liverl.APORuntime{Client: client, Model: model, SeedPrompt: cfg.SeedPrompt}, nil
}

func gateServingStatus(gate liverl.Gate) healthpb.HealthCheckResponse_ServingStatus {
	if gate == liverl.GateHold {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

func logSnapshot(logger *zap.Logger, snap liverl.Snapshot) {
	fields := []zap.Field{
		zap.Bool("enabled", snap.Enabled),
		zap.String("gate", string(snap.Gate)),
		zap.Int("completed_rollouts", snap.CompletedRollouts),
		zap.Int("consecutive_failures", snap.ConsecutiveFailures),
	}
	if snap.LastError != "" {
		fields = append(fields, zap.String("last_error", snap.LastError))
	}
	if snap.ActiveRolloutID != "" {
		fields = append(fields, zap.String("active_rollout_id", snap.ActiveRolloutID))
	}
	if r := snap.LastOptimizerReport; r != nil {
		fields = append(fields, zap.Bool("optimizer_executed", r.Executed), zap.Int("optimizer_samples", r.Samples))
		if r.APO != nil {
			fields = append(fields, zap.String("apo_reason_code", r.APO.ReasonCode))
		}
	}
	logger.Info("Live RL bridge stopped", fields...)
}
