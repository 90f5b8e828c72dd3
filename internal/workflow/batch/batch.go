// Package batch 提供分批并发处理能力
package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"ppt-gen-api/pkg/logger"
)

// Result 单项处理结果，Index 为原始顺序下标
type Result[R any] struct {
	Index    int
	Value    R
	Err      error
	Panicked bool
}

// Summary 批处理汇总，三者之和恒等于条目总数
type Summary struct {
	Succeeded int
	Failed    int
	Panicked  int
}

// Total 条目总数
func (s Summary) Total() int {
	return s.Succeeded + s.Failed + s.Panicked
}

// Options 批处理参数
type Options struct {
	// BatchSize 每批条目数
	BatchSize int
	// MaxConcurrent 批内并发上限
	MaxConcurrent int64
	// InterBatchDelay 批间延迟，最后一批之后不再延迟
	InterBatchDelay time.Duration

	// sleep 批间等待实现，可注入，测试用
	sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) normalize() {
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 3
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
}

// sleepContext 等待指定时长，上下文取消时提前返回
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Process 将有序条目分批处理，批内以信号量限并发，批间延迟以降低
// 服务端压力。单项的错误与 panic 被逐项捕获，不会中断所在批次；
// 返回结果保持原始顺序。
func Process[T, R any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, item T) (R, error)) ([]Result[R], Summary) {
	opts.normalize()

	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results, Summary{}
	}

	sem := semaphore.NewWeighted(opts.MaxConcurrent)
	batchCount := (len(items) + opts.BatchSize - 1) / opts.BatchSize

	for b := 0; b < batchCount; b++ {
		start := b * opts.BatchSize
		end := start + opts.BatchSize
		if end > len(items) {
			end = len(items)
		}

		done := make(chan struct{})
		pending := end - start
		complete := make(chan int, pending)

		for i := start; i < end; i++ {
			idx := i
			if err := sem.Acquire(ctx, 1); err != nil {
				results[idx] = Result[R]{Index: idx, Err: err}
				complete <- idx
				continue
			}
			go func() {
				defer sem.Release(1)
				defer func() {
					if r := recover(); r != nil {
						results[idx] = Result[R]{
							Index:    idx,
							Err:      fmt.Errorf("panic: %v", r),
							Panicked: true,
						}
					}
					complete <- idx
				}()
				value, err := fn(ctx, items[idx])
				results[idx] = Result[R]{Index: idx, Value: value, Err: err}
			}()
		}

		go func() {
			for i := 0; i < pending; i++ {
				<-complete
			}
			close(done)
		}()
		<-done

		logger.Debug(ctx, "batch completed",
			"batch", b+1,
			"batches", batchCount,
			"items", pending,
		)

		// 批间延迟，最后一批之后直接返回
		if b < batchCount-1 && opts.InterBatchDelay > 0 {
			if err := opts.sleep(ctx, opts.InterBatchDelay); err != nil {
				for i := end; i < len(items); i++ {
					results[i] = Result[R]{Index: i, Err: err}
				}
				return results, summarize(results)
			}
		}
	}

	return results, summarize(results)
}

func summarize[R any](results []Result[R]) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case r.Panicked:
			s.Panicked++
		case r.Err != nil:
			s.Failed++
		default:
			s.Succeeded++
		}
	}
	return s
}
