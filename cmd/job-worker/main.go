// Package main 异步生成任务执行器入口
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/internal/infrastructure/messaging"
	"ppt-gen-api/internal/infrastructure/persistence/postgres"
	"ppt-gen-api/internal/infrastructure/persistence/redis"
	"ppt-gen-api/internal/wire"
	"ppt-gen-api/internal/workflow"
	"ppt-gen-api/pkg/logger"
	"ppt-gen-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	jobRepo := postgres.NewDeckJobRepository(pgClient)

	pipeline, _, err := wire.BuildPipeline(cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to build pipeline", err)
	}

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.StreamDeckGen,
		Group:        messaging.ConsumerGroupDeckWorker,
		ConsumerName: hostnameConsumerName(),
		BlockTimeout: cfg.Messaging.RedisStream.BlockTimeout,
		RetryLimit:   cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})

	consumer.RegisterHandler(messaging.MessageTypeDeckGen, func(msgCtx context.Context, msg *messaging.Message) error {
		var payload messaging.DeckJobMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		return runDeckJob(msgCtx, jobRepo, pipeline, cfg.Templates.OutputDir, &payload)
	})

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorDLQ(ctx, 100)

	logger.Info(ctx, "job-worker started", "stream", messaging.StreamDeckGen)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down job-worker...")
	consumer.Stop()
}

// deckJobResult 写入任务行的结果摘要，文档本体落盘
type deckJobResult struct {
	DeckID              string              `json:"deck_id"`
	DeckPath            string              `json:"deck_path"`
	TotalPages          int                 `json:"total_pages"`
	Fallback            bool                `json:"fallback"`
	CleanedPlaceholders int                 `json:"cleaned_placeholders"`
	PageStatuses        []entity.PageStatus `json:"page_statuses"`
}

// runDeckJob 执行一个生成任务并回写状态
func runDeckJob(ctx context.Context, jobRepo *postgres.DeckJobRepository, pipeline *workflow.Pipeline, outputDir string, payload *messaging.DeckJobMessage) error {
	ctx = logger.WithContext(ctx, logger.JobIDKey, payload.JobID)

	job, err := jobRepo.GetByID(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("deck job not found: %s", payload.JobID)
	}
	if job.Status == entity.JobStatusCancelled || job.Status == entity.JobStatusCompleted {
		return nil
	}
	if job.Status == entity.JobStatusFailed {
		if err := jobRepo.IncrementRetry(ctx, payload.JobID); err != nil {
			return err
		}
	}

	if err := jobRepo.MarkRunning(ctx, payload.JobID); err != nil {
		return err
	}
	_ = jobRepo.UpdateProgress(ctx, payload.JobID, 5)

	result, err := pipeline.Generate(ctx, workflow.GenerateRequest{
		Text:        payload.Text,
		TargetPages: payload.TargetPages,
	})
	if err != nil {
		_ = jobRepo.SetResult(ctx, payload.JobID, nil, err.Error())
		return err
	}
	_ = jobRepo.UpdateProgress(ctx, payload.JobID, 90)

	if outputDir == "" {
		outputDir = os.TempDir()
	}
	deckPath := filepath.Join(outputDir, result.DeckID+".pptx")
	if err := os.WriteFile(deckPath, result.Deck, 0o644); err != nil {
		_ = jobRepo.SetResult(ctx, payload.JobID, nil, "failed to persist deck: "+err.Error())
		return err
	}

	output, err := json.Marshal(deckJobResult{
		DeckID:              result.DeckID,
		DeckPath:            deckPath,
		TotalPages:          result.Analysis.TotalPages,
		Fallback:            result.Fallback,
		CleanedPlaceholders: result.CleanedPlaceholders,
		PageStatuses:        result.PageStatuses,
	})
	if err != nil {
		_ = jobRepo.SetResult(ctx, payload.JobID, nil, "failed to encode result: "+err.Error())
		return err
	}
	return jobRepo.SetResult(ctx, payload.JobID, output, "")
}

// hostnameConsumerName 以主机名区分消费者实例
func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return "deck-worker-" + host
}
