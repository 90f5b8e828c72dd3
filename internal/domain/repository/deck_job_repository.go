// Package repository 定义领域仓储接口
package repository

import (
	"context"
	"encoding/json"

	"ppt-gen-api/internal/domain/entity"
)

// DeckJobRepository 生成任务仓储
type DeckJobRepository interface {
	Create(ctx context.Context, job *entity.DeckJob) error
	GetByID(ctx context.Context, id string) (*entity.DeckJob, error)
	Update(ctx context.Context, job *entity.DeckJob) error
	MarkRunning(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	SetResult(ctx context.Context, id string, result json.RawMessage, errMsg string) error
	IncrementRetry(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]*entity.DeckJob, error)
}
