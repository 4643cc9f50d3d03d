package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/aide/internal/auth"
	"github.com/haasonsaas/aide/internal/autonomy"
	"github.com/haasonsaas/aide/internal/behavior"
	"github.com/haasonsaas/aide/internal/classifier"
	"github.com/haasonsaas/aide/internal/config"
	"github.com/haasonsaas/aide/internal/connectors"
	"github.com/haasonsaas/aide/internal/contextstore"
	"github.com/haasonsaas/aide/internal/dispatch"
	"github.com/haasonsaas/aide/internal/gateway"
	"github.com/haasonsaas/aide/internal/learning"
	"github.com/haasonsaas/aide/internal/llm"
	"github.com/haasonsaas/aide/internal/observability"
	"github.com/haasonsaas/aide/internal/storage"
	"github.com/haasonsaas/aide/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the aide server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("AIDE_CONFIG")
			}
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	dispatcher := dispatch.New(dispatch.WithMetrics(metrics))
	ctxStore := contextstore.New()

	registry := behavior.NewRegistry()
	defaults, err := behavior.DefaultBehaviors(time.Now)
	if err != nil {
		return fmt.Errorf("build default behaviors: %w", err)
	}
	for _, b := range defaults {
		if err := registry.Register(b); err != nil {
			return fmt.Errorf("register behavior: %w", err)
		}
	}

	engine := behavior.NewEngine(registry, ctxStore,
		behavior.WithLogger(logger.With("component", "behavior")),
		behavior.WithDispatcher(dispatcher),
		behavior.WithMetrics(metrics),
		behavior.WithTickInterval(cfg.Engine.TickInterval),
		behavior.WithActionTimeout(cfg.Engine.ActionTimeout),
	)

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	cls := classifier.New(cfg.Classifier, ctxStore, provider,
		classifier.WithLogger(logger.With("component", "classifier")))

	gate := autonomy.New(cfg.AutonomyLevels(),
		models.AutonomyLevel(cfg.Autonomy.DefaultLevel),
		cfg.Autonomy.HighUrgency,
		autonomy.WithLogger(logger.With("component", "autonomy")),
		autonomy.WithDispatcher(dispatcher),
	)

	registryConn := connectors.NewRegistry()
	registryConn.Register(connectors.NewLoopback(models.PlatformGeneric))
	registryConn.AttachAll(gate)

	learner := learning.NewService(store,
		cfg.Learning.MinSamples, cfg.Learning.ConfidenceThreshold,
		learning.WithLogger(logger.With("component", "learning")),
		learning.WithDispatcher(dispatcher),
		learning.WithMetrics(metrics),
	)

	processor := gateway.NewProcessor(gateway.ProcessorDeps{
		Classifier: cls,
		Provider:   provider,
		Learner:    learner,
		Gate:       gate,
		Messages:   store,
		Engine:     engine,
		Dispatcher: dispatcher,
		Logger:     logger.With("component", "pipeline"),
		Metrics:    metrics,
	})

	jwtService := auth.NewJWTService(cfg.Auth.Secret, cfg.Auth.TokenExpiry)

	server := gateway.NewServer(gateway.ServerDeps{
		Config:     cfg,
		Engine:     engine,
		Processor:  processor,
		Learner:    learner,
		Gate:       gate,
		Messages:   store,
		Dispatcher: dispatcher,
		JWT:        jwtService,
		Logger:     logger.With("component", "gateway"),
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Start(runCtx)
	if err := server.Start(runCtx); err != nil {
		return err
	}
	logger.Info("aide started",
		"provider", providerName(provider),
		"storage", cfg.Storage.Path,
		"auth", cfg.Auth.Enabled())

	<-runCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown error", "error", err)
	}
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.Warn("engine shutdown error", "error", err)
	}
	return nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Path == ":memory:" {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewSQLiteStore(cfg.Storage.Path)
}

// buildProvider selects the completion provider. The template provider
// doubles as the degraded-mode fallback, so a nil return is never used.
func buildProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "anthropic":
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:     cfg.LLM.Anthropic.APIKey,
			Model:      cfg.LLM.Anthropic.Model,
			MaxTokens:  cfg.LLM.MaxTokens,
			MaxRetries: cfg.LLM.MaxRetries,
			RetryDelay: cfg.LLM.RetryDelay,
		})
	case "openai":
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:     cfg.LLM.OpenAI.APIKey,
			Model:      cfg.LLM.OpenAI.Model,
			MaxTokens:  cfg.LLM.MaxTokens,
			MaxRetries: cfg.LLM.MaxRetries,
			RetryDelay: cfg.LLM.RetryDelay,
		})
	case "template", "":
		logger.Info("using template response provider")
		return llm.NewTemplateProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}
}

func providerName(p llm.Provider) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}
