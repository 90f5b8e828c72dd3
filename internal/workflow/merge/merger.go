// Package merge 把逐页生成的幻灯片文件合并为最终文稿
package merge

import (
	"context"

	"ppt-gen-api/internal/domain/entity"
)

// Merger 合并端口。orderedPaths 按页码升序排列，返回合并后的
// 文档字节与逐页状态。部分页失败时仍返回可用文档，失败页在
// statuses 里标出。
type Merger interface {
	Merge(ctx context.Context, orderedPaths []string) ([]byte, []entity.PageStatus, error)
}
