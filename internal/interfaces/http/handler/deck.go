package handler

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/internal/domain/repository"
	"ppt-gen-api/internal/infrastructure/messaging"
	"ppt-gen-api/internal/infrastructure/persistence/redis"
	"ppt-gen-api/internal/interfaces/http/dto"
	"ppt-gen-api/internal/workflow"
	"ppt-gen-api/pkg/logger"
)

// 终态任务不会再变化，缓存可以较长
const jobCacheTTL = 10 * time.Minute

// DeckHandler PPT 生成处理器
type DeckHandler struct {
	cfg      *config.Config
	pipeline *workflow.Pipeline
	jobs     repository.DeckJobRepository
	producer *messaging.Producer
	cache    *redis.Cache
}

// NewDeckHandler 创建处理器
func NewDeckHandler(cfg *config.Config, pipeline *workflow.Pipeline, jobs repository.DeckJobRepository, producer *messaging.Producer, cache *redis.Cache) *DeckHandler {
	return &DeckHandler{
		cfg:      cfg,
		pipeline: pipeline,
		jobs:     jobs,
		producer: producer,
		cache:    cache,
	}
}

// validateRequest 校验生成请求的公共部分
func (h *DeckHandler) validateRequest(req *dto.GenerateDeckRequest) string {
	if strings.TrimSpace(req.Text) == "" {
		return "text is required"
	}
	if req.Provider != "" {
		if _, ok := h.cfg.LLM.Provider(req.Provider); !ok {
			return "unknown provider: " + req.Provider
		}
	}
	return ""
}

// Generate 同步生成
func (h *DeckHandler) Generate(c *gin.Context) {
	var req dto.GenerateDeckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if msg := h.validateRequest(&req); msg != "" {
		dto.BadRequest(c, msg)
		return
	}

	result, err := h.pipeline.Generate(c.Request.Context(), workflow.GenerateRequest{
		Text:        req.Text,
		TargetPages: req.TargetPages,
	})
	if err != nil {
		logger.Error(c.Request.Context(), "deck generation failed", err)
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, buildDeckResponse(result))
}

// CreateJob 创建异步生成任务
func (h *DeckHandler) CreateJob(c *gin.Context) {
	var req dto.GenerateDeckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if msg := h.validateRequest(&req); msg != "" {
		dto.BadRequest(c, msg)
		return
	}

	jobID := uuid.New().String()
	params, err := json.Marshal(req)
	if err != nil {
		dto.InternalError(c, "failed to encode job params")
		return
	}

	job := entity.NewDeckJob(jobID, params)
	if err := h.jobs.Create(c.Request.Context(), job); err != nil {
		logger.Error(c.Request.Context(), "failed to persist deck job", err)
		dto.InternalError(c, "failed to create job")
		return
	}

	_, err = h.producer.PublishDeckJob(c.Request.Context(), &messaging.DeckJobMessage{
		JobID:       jobID,
		Text:        req.Text,
		TargetPages: req.TargetPages,
		Provider:    req.Provider,
		RequestID:   c.GetString("request_id"),
	})
	if err != nil {
		logger.Error(c.Request.Context(), "failed to enqueue deck job", err, "job_id", jobID)
		dto.InternalError(c, "failed to enqueue job")
		return
	}

	dto.Accepted(c, dto.CreateJobResponse{
		JobID:  jobID,
		Status: string(entity.JobStatusPending),
	})
}

// GetJob 查询任务状态
func (h *DeckHandler) GetJob(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		dto.BadRequest(c, "job id is required")
		return
	}

	ctx := c.Request.Context()
	cacheKey := redis.BuildJobKey(jobID)

	if raw, err := h.cache.Get(ctx, cacheKey); err == nil {
		var cached entity.DeckJob
		if err := json.Unmarshal(raw, &cached); err == nil {
			dto.Success(c, dto.NewJobResponse(&cached))
			return
		}
	}

	job, err := h.jobs.GetByID(ctx, jobID)
	if err != nil {
		logger.Error(ctx, "failed to load deck job", err, "job_id", jobID)
		dto.InternalError(c, "failed to load job")
		return
	}
	if job == nil {
		dto.NotFound(c, "job not found")
		return
	}

	// 终态任务缓存，减少轮询对数据库的压力
	if job.IsTerminal() {
		if err := h.cache.Set(ctx, cacheKey, job, jobCacheTTL); err != nil {
			logger.Warn(ctx, "failed to cache deck job", "job_id", jobID, "error", err.Error())
		}
	}

	dto.Success(c, dto.NewJobResponse(job))
}

// buildDeckResponse 组装同步响应
func buildDeckResponse(result *workflow.GenerateResult) dto.GenerateDeckResponse {
	resp := dto.GenerateDeckResponse{
		DeckID:              result.DeckID,
		Deck:                result.Deck,
		TotalPages:          result.Analysis.TotalPages,
		ContentType:         result.Analysis.ContentType,
		SplitStrategy:       result.Analysis.SplitStrategy,
		Fallback:            result.Fallback,
		CleanedPlaceholders: result.CleanedPlaceholders,
	}
	for _, p := range result.Pages {
		resp.Pages = append(resp.Pages, dto.PageResponse{
			PageNumber: p.PageNumber,
			PageType:   string(p.PageType),
			Title:      p.Title,
			KeyPoints:  p.KeyPoints,
		})
	}
	for _, s := range result.PageStatuses {
		resp.PageStatuses = append(resp.PageStatuses, dto.PageStatusResponse{
			PageNumber: s.PageNumber,
			Success:    s.Success,
			Error:      s.Error,
		})
	}
	return resp
}
