package cmd

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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/frankbria/codeframe/pkg/api"
	"github.com/frankbria/codeframe/pkg/checkpoint"
	"github.com/frankbria/codeframe/pkg/config"
	"github.com/frankbria/codeframe/pkg/coordinator"
	"github.com/frankbria/codeframe/pkg/eventbus"
	"github.com/frankbria/codeframe/pkg/models"
	"github.com/frankbria/codeframe/pkg/provider"
	"github.com/frankbria/codeframe/pkg/quality"
	"github.com/frankbria/codeframe/pkg/store"
	"github.com/frankbria/codeframe/pkg/version"
)

var envFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "path to an optional .env file")
}

func runServe(_ *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("no .env file loaded, continuing with process environment", "path", envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.WorkspacesRoot, 0o755); err != nil {
		return fmt.Errorf("create workspaces root: %w", err)
	}

	bus := eventbus.New(cfg.SubscriberQueueSize)

	st, err := store.Open(context.Background(), cfg.DatabasePath, bus)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("close store", "error", err)
		}
	}()

	prov := buildProvider(cfg)

	coord := coordinator.New(st, prov, coordinator.Config{
		MaxConcurrentAgents:   cfg.MaxConcurrentAgents,
		MaxDiscoveryQuestions: cfg.MaxDiscoveryQuestions,
		TaskTimeout:           cfg.TaskTimeout,
		WatchdogMax:           cfg.WatchdogMax,
		SessionTimeout:        cfg.SessionTimeout,
		QualityCommands:       buildQualityCommands(),
	})

	recovered, err := st.RecoverOrphanedTasks(context.Background(), time.Now().Add(-cfg.TaskTimeout))
	if err != nil {
		return fmt.Errorf("recover orphaned tasks: %w", err)
	}
	if len(recovered) > 0 {
		byProject := make(map[int64]int, len(recovered))
		for _, o := range recovered {
			byProject[o.ProjectID]++
		}
		for projectID, count := range byProject {
			coord.NoteOrphanRecovery(projectID, count)
		}
		slog.Warn("recovered orphaned in_progress tasks on startup", "count", len(recovered))
	}
	checkpoints := checkpoint.New(st)
	verifier := newTokenVerifier()

	router := api.NewRouter(api.Deps{
		Store:       st,
		Coordinator: coord,
		Checkpoints: checkpoints,
		Bus:         bus,
		Config:      cfg,
		Verifier:    verifier,
	})

	srv := &http.Server{
		Addr:              cfg.BackendBind,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting codeframe", "version", version.Full(), "addr", cfg.BackendBind, "deployment_mode", cfg.DeploymentMode)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-sigCh:
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GraceMillis)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("codeframe stopped")
	return nil
}

// buildProvider wires the real HTTP completion provider when an API key is
// configured, and falls back to an always-empty mock otherwise so `serve`
// still starts for local exploration of the API surface without a provider.
func buildProvider(cfg *config.Config) provider.CompletionProvider {
	if cfg.ProviderAPIKey == "" {
		slog.Warn("PROVIDER_API_KEY not set, using a no-op completion provider; discovery, decomposition, and worker tasks will fail")
		return provider.NewMockProvider()
	}
	return provider.NewHTTPProvider(provider.HTTPProviderConfig{
		BaseURL: getEnv("PROVIDER_BASE_URL", "https://api.openai.com/v1"),
		APIKey:  cfg.ProviderAPIKey,
	})
}

// buildQualityCommands reads per-gate shell commands from the environment.
// A gate with no configured command is skipped rather than failed, so an
// operator can opt a project workspace into as many or as few command
// gates as its toolchain supports.
func buildQualityCommands() quality.CommandSet {
	cmds := quality.CommandSet{}
	if v := os.Getenv("QUALITY_CMD_TESTS"); v != "" {
		cmds[models.GateTests] = v
	}
	if v := os.Getenv("QUALITY_CMD_COVERAGE"); v != "" {
		cmds[models.GateCoverage] = v
	}
	if v := os.Getenv("QUALITY_CMD_TYPE_CHECK"); v != "" {
		cmds[models.GateTypeCheck] = v
	}
	if v := os.Getenv("QUALITY_CMD_LINT"); v != "" {
		cmds[models.GateLint] = v
	}
	return cmds
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func init() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
