package dto

import (
	"encoding/json"
	"time"

	"ppt-gen-api/internal/domain/entity"
)

// GenerateDeckRequest 生成请求
type GenerateDeckRequest struct {
	Text string `json:"text" binding:"required"`
	// TargetPages 含标题页与结束页的目标总页数，0 表示自动
	TargetPages int    `json:"target_pages,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// PageStatusResponse 单页状态
type PageStatusResponse struct {
	PageNumber int    `json:"page_number"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// PageResponse 页面信息
type PageResponse struct {
	PageNumber int      `json:"page_number"`
	PageType   string   `json:"page_type"`
	Title      string   `json:"title"`
	KeyPoints  []string `json:"key_points,omitempty"`
}

// GenerateDeckResponse 同步生成响应。Deck 为 base64 编码的文档字节。
type GenerateDeckResponse struct {
	DeckID              string               `json:"deck_id"`
	Deck                []byte               `json:"deck"`
	TotalPages          int                  `json:"total_pages"`
	ContentType         string               `json:"content_type"`
	SplitStrategy       string               `json:"split_strategy"`
	Fallback            bool                 `json:"fallback"`
	CleanedPlaceholders int                  `json:"cleaned_placeholders"`
	Pages               []PageResponse       `json:"pages"`
	PageStatuses        []PageStatusResponse `json:"page_statuses"`
}

// CreateJobResponse 异步任务创建响应
type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobResponse 任务状态响应
type JobResponse struct {
	JobID        string          `json:"job_id"`
	Status       string          `json:"status"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	RetryCount   int             `json:"retry_count"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NewJobResponse 由任务实体构建响应
func NewJobResponse(job *entity.DeckJob) JobResponse {
	return JobResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		Progress:     job.Progress,
		Result:       job.OutputResult,
		ErrorMessage: job.ErrorMessage,
		RetryCount:   job.RetryCount,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}
