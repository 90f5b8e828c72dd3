package entity

import (
	"encoding/json"
	"time"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// DeckJob 异步 PPT 生成任务
type DeckJob struct {
	ID           string          `json:"id" gorm:"primaryKey"`
	Status       JobStatus       `json:"status"`
	InputParams  json.RawMessage `json:"input_params"`
	OutputResult json.RawMessage `json:"output_result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	LLMProvider  string          `json:"llm_provider,omitempty"`
	PageCount    int             `json:"page_count,omitempty"`
	UsedFallback bool            `json:"used_fallback"`
	DurationMs   int             `json:"duration_ms,omitempty"`
	RetryCount   int             `json:"retry_count"`
	Progress     int             `json:"progress"` // 任务进度 (0-100)
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// TableName GORM 表名
func (DeckJob) TableName() string {
	return "deck_jobs"
}

// NewDeckJob 创建新任务
func NewDeckJob(id string, inputParams json.RawMessage) *DeckJob {
	return &DeckJob{
		ID:          id,
		Status:      JobStatusPending,
		InputParams: inputParams,
		CreatedAt:   time.Now(),
	}
}

// Start 开始执行任务
func (j *DeckJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// Complete 完成任务
func (j *DeckJob) Complete(result json.RawMessage) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.OutputResult = result
	j.Progress = 100
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// Fail 任务失败
func (j *DeckJob) Fail(errMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = int(now.Sub(*j.StartedAt).Milliseconds())
	}
}

// IsTerminal 任务是否已进入终态
func (j *DeckJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanRetry 是否还可以重试
func (j *DeckJob) CanRetry(limit int) bool {
	return j.RetryCount < limit
}
