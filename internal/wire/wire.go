// Package wire 手工完成依赖装配
package wire

import (
	"context"
	"fmt"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/internal/domain/repository"
	"ppt-gen-api/internal/infrastructure/llm"
	"ppt-gen-api/internal/infrastructure/messaging"
	"ppt-gen-api/internal/infrastructure/persistence/postgres"
	"ppt-gen-api/internal/infrastructure/persistence/redis"
	"ppt-gen-api/internal/interfaces/http/handler"
	"ppt-gen-api/internal/interfaces/http/router"
	"ppt-gen-api/internal/template"
	"ppt-gen-api/internal/workflow"
	"ppt-gen-api/internal/workflow/fill"
	"ppt-gen-api/internal/workflow/match"
	"ppt-gen-api/internal/workflow/merge"
	"ppt-gen-api/internal/workflow/pagesplit"
	"ppt-gen-api/internal/workflow/prompt"
	"ppt-gen-api/pkg/logger"
)

// App API 服务的已装配依赖
type App struct {
	Config   *config.Config
	Router   *router.Router
	PG       *postgres.Client
	Redis    *redis.Client
	Jobs     repository.DeckJobRepository
	Producer *messaging.Producer
	Pipeline *workflow.Pipeline
	Library  *template.Library
}

// BuildPipeline 装配生成流水线（API 服务与 worker 共用）
func BuildPipeline(cfg *config.Config) (*workflow.Pipeline, *template.Library, error) {
	factory := llm.NewFactory(cfg)

	defaultCaller, err := factory.Default()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build default llm caller: %w", err)
	}
	matchCaller, err := factory.Match()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build match llm caller: %w", err)
	}

	prompts := prompt.NewRegistry()
	library := template.NewLibrary(cfg.Templates.Dir, cfg.Templates.ScanCacheTTL)

	splitter := pagesplit.New(defaultCaller, prompts, cfg.Pipeline)
	matcher := match.New(matchCaller, prompts, library)
	assigner := fill.NewAssigner(defaultCaller, prompts)
	merger := merge.NewHTTPMerger(cfg.Merge.ServiceURL, cfg.Merge.Timeout)

	pipeline := workflow.NewPipeline(
		splitter,
		matcher,
		assigner,
		fill.NewPptxOpener(),
		library,
		merger,
		cfg.Pipeline,
		cfg.Templates.OutputDir,
	)
	return pipeline, library, nil
}

// InitializeApp 装配 API 服务
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	pg, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	pipeline, library, err := BuildPipeline(cfg)
	if err != nil {
		_ = pg.Close()
		_ = redisClient.Close()
		return nil, nil, err
	}

	jobs := postgres.NewDeckJobRepository(pg)
	producer := messaging.NewProducer(redisClient.Redis(), cfg.Messaging.RedisStream.MaxLen)
	limiter := redis.NewRateLimiter(redisClient)
	jobCache := redis.NewCache(redisClient)

	deckHandler := handler.NewDeckHandler(cfg, pipeline, jobs, producer, jobCache)
	healthHandler := handler.NewHealthHandler(pg, redisClient, library, cfg.App.Version)

	r := router.New(cfg, router.Handlers{
		Deck:   deckHandler,
		Health: healthHandler,
	}, limiter)

	app := &App{
		Config:   cfg,
		Router:   r,
		PG:       pg,
		Redis:    redisClient,
		Jobs:     jobs,
		Producer: producer,
		Pipeline: pipeline,
		Library:  library,
	}

	cleanup := func() {
		if err := redisClient.Close(); err != nil {
			logger.Error(ctx, "failed to close redis client", err)
		}
		if err := pg.Close(); err != nil {
			logger.Error(ctx, "failed to close postgres client", err)
		}
	}
	return app, cleanup, nil
}
