package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/ai-literacy/internal/ai"
	"github.com/p-n-ai/ai-literacy/internal/api"
	"github.com/p-n-ai/ai-literacy/internal/assessment"
	"github.com/p-n-ai/ai-literacy/internal/curriculum"
	"github.com/p-n-ai/ai-literacy/internal/learning"
	"github.com/p-n-ai/ai-literacy/internal/platform/cache"
	"github.com/p-n-ai/ai-literacy/internal/platform/config"
	"github.com/p-n-ai/ai-literacy/internal/platform/database"
	"github.com/p-n-ai/ai-literacy/internal/profile"
	"github.com/p-n-ai/ai-literacy/internal/progress"
	"github.com/p-n-ai/ai-literacy/internal/safety"
	"github.com/p-n-ai/ai-literacy/internal/tutor"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// app is the wired service plus the resources it must release.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// buildApp wires the learning engine to its stores and returns the HTTP
// handler. The memory driver with no cache URL needs no external services.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	checks := map[string]api.Checker{}

	catalog, err := loadCatalog(cfg.CurriculumPath)
	if err != nil {
		return nil, err
	}

	lists := safety.DefaultWordLists()
	if cfg.Safety.WordlistPath != "" {
		if lists, err = safety.LoadWordLists(cfg.Safety.WordlistPath); err != nil {
			return nil, fmt.Errorf("load word lists: %w", err)
		}
	}
	if cfg.Safety.MaxInputLen > 0 {
		lists.MaxInputLength = cfg.Safety.MaxInputLen
	}
	filter := safety.NewFilter(safety.NewKeywordClassifier(lists))

	engineCfg := learning.Config{
		Catalog:       catalog,
		Filter:        filter,
		PassThreshold: cfg.Assessment.PassThreshold,
		Timeout:       cfg.AITimeout(),
	}

	router, err := newRouter(cfg)
	if err != nil {
		return nil, err
	}
	if router.HasProvider() {
		engineCfg.Completer = router
		checks["ai"] = router.HealthCheck
	} else {
		slog.Warn("no AI provider configured, serving template lessons and catalog tests")
	}

	if cfg.Store.Driver == config.StorePostgres {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		if err := wirePostgres(&engineCfg, db); err != nil {
			a.close()
			return nil, err
		}
		checks["database"] = db.HealthCheck
		slog.Info("using postgres stores")
	}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL, "learn:")
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("closing cache", "error", err)
			}
		})
		engineCfg.Sessions = assessment.NewRedisSessionStore(c, cfg.TestSessionTTL())
		engineCfg.Lessons = learning.NewRedisLessonCache(c, cfg.LessonCacheTTL())
		checks["cache"] = c.HealthCheck
		slog.Info("using redis cache")
	} else {
		engineCfg.Sessions = assessment.NewMemorySessionStore(cfg.TestSessionTTL())
		engineCfg.Lessons = learning.NewMemoryLessonCache(cfg.LessonCacheTTL())
	}

	engine, err := learning.NewEngine(engineCfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	if cfg.Admin.TokenHash == "" {
		slog.Info("admin routes disabled, LEARN_ADMIN_TOKEN_HASH is empty")
	}
	a.handler = api.New(api.Config{
		Engine:         engine,
		AdminTokenHash: cfg.Admin.TokenHash,
		Checks:         checks,
	}).Handler()
	return a, nil
}

func loadCatalog(path string) (*curriculum.Catalog, error) {
	var (
		catalog *curriculum.Catalog
		err     error
	)
	if path != "" {
		catalog, err = curriculum.LoadDir(path)
	} else {
		catalog, err = curriculum.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("load curriculum: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("validate curriculum: %w", err)
	}
	return catalog, nil
}

// newRouter registers every configured provider in fallback order.
func newRouter(cfg *config.Config) (*ai.Router, error) {
	router := ai.NewRouter(ai.WithAttemptTimeout(cfg.AITimeout()))
	if key := cfg.AI.OpenAI.APIKey; key != "" {
		router.Register("openai", ai.NewOpenAIProvider(key))
	}
	if key := cfg.AI.Anthropic.APIKey; key != "" {
		p, err := ai.NewAnthropicProvider(key)
		if err != nil {
			return nil, fmt.Errorf("create anthropic provider: %w", err)
		}
		router.Register("anthropic", p)
	}
	if key := cfg.AI.DeepSeek.APIKey; key != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(key))
	}
	if key := cfg.AI.OpenRouter.APIKey; key != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(key))
	}
	if cfg.AI.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.AI.Ollama.URL))
	}
	return router, nil
}

func wirePostgres(cfg *learning.Config, db *database.DB) error {
	progressStore, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	results, err := assessment.NewPostgresResultLog(db.Pool)
	if err != nil {
		return err
	}
	profiles, err := profile.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	conversations, err := tutor.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	cfg.Progress = progressStore
	cfg.Results = results
	cfg.Profiles = profiles
	cfg.Conversations = conversations
	cfg.Events = learning.NewPostgresEventLogger(db.Pool)
	return nil
}
