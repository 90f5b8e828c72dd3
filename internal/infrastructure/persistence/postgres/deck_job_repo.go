package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ppt-gen-api/internal/domain/entity"
)

// DeckJobRepository 生成任务仓储实现
type DeckJobRepository struct {
	client *Client
}

// NewDeckJobRepository 创建任务仓储
func NewDeckJobRepository(client *Client) *DeckJobRepository {
	return &DeckJobRepository{client: client}
}

// Create 创建任务
func (r *DeckJobRepository) Create(ctx context.Context, job *entity.DeckJob) error {
	ctx, span := tracer.Start(ctx, "postgres.DeckJobRepository.Create")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create deck job: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务，不存在时返回 (nil, nil)
func (r *DeckJobRepository) GetByID(ctx context.Context, id string) (*entity.DeckJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.DeckJobRepository.GetByID")
	defer span.End()

	var job entity.DeckJob
	if err := r.client.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get deck job: %w", err)
	}
	return &job, nil
}

// Update 更新任务
func (r *DeckJobRepository) Update(ctx context.Context, job *entity.DeckJob) error {
	ctx, span := tracer.Start(ctx, "postgres.DeckJobRepository.Update")
	defer span.End()

	job.UpdatedAt = time.Now()
	if err := r.client.db.WithContext(ctx).Save(job).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update deck job: %w", err)
	}
	return nil
}

// MarkRunning 标记任务开始执行
func (r *DeckJobRepository) MarkRunning(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.DeckJobRepository.MarkRunning")
	defer span.End()

	now := time.Now()
	err := r.client.db.WithContext(ctx).Model(&entity.DeckJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     entity.JobStatusRunning,
			"started_at": now,
			"updated_at": now,
		}).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark deck job running: %w", err)
	}
	return nil
}

// UpdateProgress 更新任务进度
func (r *DeckJobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	ctx, span := tracer.Start(ctx, "postgres.DeckJobRepository.UpdateProgress")
	defer span.End()

	err := r.client.db.WithContext(ctx).Model(&entity.DeckJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update deck job progress: %w", err)
	}
	return nil
}

// SetResult 写入任务结果。errMsg 非空时标记失败，否则标记完成。
func (r *DeckJobRepository) SetResult(ctx context.Context, id string, result json.RawMessage, errMsg string) error {
	ctx, span := tracer.Start(ctx, "postgres.DeckJobRepository.SetResult")
	defer span.End()

	now := time.Now()
	fields := map[string]interface{}{
		"completed_at": now,
		"updated_at":   now,
	}
	if errMsg != "" {
		fields["status"] = entity.JobStatusFailed
		fields["error_message"] = errMsg
	} else {
		fields["status"] = entity.JobStatusCompleted
		fields["output_result"] = result
		fields["progress"] = 100
	}

	err := r.client.db.WithContext(ctx).Model(&entity.DeckJob{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set deck job result: %w", err)
	}
	return nil
}

// IncrementRetry 重试计数加一
func (r *DeckJobRepository) IncrementRetry(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.DeckJobRepository.IncrementRetry")
	defer span.End()

	err := r.client.db.WithContext(ctx).Model(&entity.DeckJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to increment deck job retry: %w", err)
	}
	return nil
}

// ListRecent 按创建时间倒序列出最近任务
func (r *DeckJobRepository) ListRecent(ctx context.Context, limit int) ([]*entity.DeckJob, error) {
	ctx, span := tracer.Start(ctx, "postgres.DeckJobRepository.ListRecent")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	var jobs []*entity.DeckJob
	err := r.client.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list deck jobs: %w", err)
	}
	return jobs, nil
}
