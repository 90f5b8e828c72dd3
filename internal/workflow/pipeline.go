// Package workflow 编排文本到幻灯片的生成流水线
package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/internal/template"
	"ppt-gen-api/internal/workflow/batch"
	"ppt-gen-api/internal/workflow/fill"
	"ppt-gen-api/internal/workflow/merge"
	"ppt-gen-api/pkg/errors"
	"ppt-gen-api/pkg/logger"
	"ppt-gen-api/pkg/metrics"
)

var tracer = otel.Tracer("workflow")

// Splitter 分页端口
type Splitter interface {
	Split(ctx context.Context, text string, targetPages int) (*entity.PaginationResult, error)
}

// Matcher 模板匹配端口
type Matcher interface {
	Match(ctx context.Context, page entity.Page) (*entity.TemplateMatch, error)
}

// Assigner 内容分配端口
type Assigner interface {
	Assign(ctx context.Context, page entity.Page, placeholders []fill.Placeholder) ([]entity.Assignment, error)
}

// GenerateRequest 一次生成请求
type GenerateRequest struct {
	Text string
	// TargetPages 0 表示不指定
	TargetPages int
}

// GenerateResult 生成结果
type GenerateResult struct {
	DeckID   string
	Deck     []byte
	Analysis entity.PaginationAnalysis
	Pages    []entity.Page
	// PageStatuses 按页码升序；失败页被标记而不是丢弃
	PageStatuses []entity.PageStatus
	// Fallback 分页阶段是否走了兜底切分
	Fallback bool
	// CleanedPlaceholders 清理掉的未填充占位符总数
	CleanedPlaceholders int
}

// Pipeline 生成流水线：分页 → 批量模板匹配 → 内容分配与占位符
// 填充 → 清理 → 合并。单页失败只影响该页，不中断同批其他页面。
type Pipeline struct {
	splitter Splitter
	matcher  Matcher
	assigner Assigner
	filler   *fill.Filler
	cleaner  *fill.Cleaner
	opener   fill.Opener
	library  *template.Library
	merger   merge.Merger
	cfg      config.PipelineConfig
	outDir   string

	now func() time.Time
}

// NewPipeline 创建流水线
func NewPipeline(
	splitter Splitter,
	matcher Matcher,
	assigner Assigner,
	opener fill.Opener,
	library *template.Library,
	merger merge.Merger,
	cfg config.PipelineConfig,
	outDir string,
) *Pipeline {
	if outDir == "" {
		outDir = os.TempDir()
	}
	return &Pipeline{
		splitter: splitter,
		matcher:  matcher,
		assigner: assigner,
		filler:   fill.NewFiller(),
		cleaner:  fill.NewCleaner(),
		opener:   opener,
		library:  library,
		merger:   merger,
		cfg:      cfg,
		outDir:   outDir,
		now:      time.Now,
	}
}

// pageArtifact 单页处理产物
type pageArtifact struct {
	page    entity.Page
	path    string
	cleaned int
	err     error
}

// Generate 执行完整流水线
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	deckID := uuid.New().String()
	ctx = context.WithValue(ctx, logger.DeckIDKey, deckID)
	ctx, span := tracer.Start(ctx, "workflow.Generate")
	span.SetAttributes(attribute.String("deck.id", deckID))
	defer span.End()

	start := p.now()
	logger.Info(ctx, "deck generation started",
		"text_chars", len([]rune(req.Text)), "target_pages", req.TargetPages)

	split, err := p.splitter.Split(ctx, req.Text, req.TargetPages)
	if err != nil {
		metrics.DeckGenerationTotal.WithLabelValues("sync", "error").Inc()
		return nil, err
	}
	metrics.DeckPageCount.Observe(float64(len(split.Pages)))

	deckDir := filepath.Join(p.outDir, deckID)
	if err := os.MkdirAll(deckDir, 0o755); err != nil {
		metrics.DeckGenerationTotal.WithLabelValues("sync", "error").Inc()
		return nil, errors.Wrap(err, errors.CodeInternalError, "failed to create deck work dir")
	}
	defer func() { _ = os.RemoveAll(deckDir) }()

	artifacts := p.processPages(ctx, deckDir, split.Pages)

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].page.PageNumber < artifacts[j].page.PageNumber
	})

	result := &GenerateResult{
		DeckID:   deckID,
		Analysis: split.Analysis,
		Pages:    split.Pages,
		Fallback: split.Fallback,
	}

	var paths []string
	var merged []int
	for _, a := range artifacts {
		result.CleanedPlaceholders += a.cleaned
		status := entity.PageStatus{PageNumber: a.page.PageNumber, Success: a.err == nil}
		if a.err != nil {
			status.Error = a.err.Error()
		}
		result.PageStatuses = append(result.PageStatuses, status)
		if a.path != "" {
			paths = append(paths, a.path)
			merged = append(merged, a.page.PageNumber)
		}
	}

	deck, mergeStatuses, err := p.merger.Merge(ctx, paths)
	if err != nil {
		metrics.DeckGenerationTotal.WithLabelValues("sync", "error").Inc()
		return nil, err
	}
	result.Deck = deck

	// 合并服务按上传顺序报告状态，映射回页码
	for i, ms := range mergeStatuses {
		if i >= len(merged) || ms.Success {
			continue
		}
		for j := range result.PageStatuses {
			if result.PageStatuses[j].PageNumber == merged[i] {
				result.PageStatuses[j].Success = false
				result.PageStatuses[j].Error = ms.Error
			}
		}
	}

	metrics.DeckGenerationTotal.WithLabelValues("sync", "success").Inc()
	metrics.DeckGenerationDuration.WithLabelValues("sync").Observe(p.now().Sub(start).Seconds())
	logger.Info(ctx, "deck generation finished",
		"pages", len(split.Pages), "fallback", split.Fallback,
		"duration_ms", p.now().Sub(start).Milliseconds())
	return result, nil
}

// processPages 批量处理页面。模板匹配失败回落到默认模板并标记，
// 页面处理的 panic 与错误被逐项隔离。
func (p *Pipeline) processPages(ctx context.Context, deckDir string, pages []entity.Page) []pageArtifact {
	opts := batch.Options{
		BatchSize:       p.cfg.BatchSize,
		MaxConcurrent:   int64(p.cfg.MaxConcurrent),
		InterBatchDelay: p.cfg.InterBatchDelay,
	}

	results, summary := batch.Process(ctx, pages, opts, func(ctx context.Context, page entity.Page) (pageArtifact, error) {
		ctx = context.WithValue(ctx, logger.PageNumberKey, page.PageNumber)
		return p.processPage(ctx, deckDir, page), nil
	})
	if summary.Failed > 0 || summary.Panicked > 0 {
		logger.Warn(ctx, "some pages failed during processing",
			"failed", summary.Failed, "panicked", summary.Panicked)
	}

	artifacts := make([]pageArtifact, 0, len(results))
	for i, r := range results {
		if r.Err != nil {
			artifacts = append(artifacts, pageArtifact{page: pages[i], err: r.Err})
			continue
		}
		artifacts = append(artifacts, r.Value)
	}
	return artifacts
}

// processPage 单页处理：匹配模板、分配内容、填充、清理、落盘。
// 返回的 artifact.err 非空表示该页降级，但只要产出了文件就仍参与合并。
func (p *Pipeline) processPage(ctx context.Context, deckDir string, page entity.Page) pageArtifact {
	artifact := pageArtifact{page: page}

	match, err := p.matcher.Match(ctx, page)
	if err != nil {
		fallbackPath, fbErr := p.defaultTemplatePath()
		if fbErr != nil {
			artifact.err = err
			return artifact
		}
		logger.Warn(ctx, "template match failed, using default template",
			"page_number", page.PageNumber, "error", err.Error())
		match = &entity.TemplateMatch{PageNumber: page.PageNumber, TemplatePath: fallbackPath}
		artifact.err = err
	}

	doc, err := p.opener.Open(match.TemplatePath)
	if err != nil {
		artifact.err = err
		return artifact
	}

	placeholders := fill.ScanPlaceholders(doc)
	assignments := p.assignContent(ctx, page, placeholders)
	outcomes, filled := p.filler.Fill(ctx, doc, assignments)
	artifact.cleaned = p.cleaner.Clean(ctx, doc, filled)

	filledCount := 0
	for _, o := range outcomes {
		if o.Filled {
			filledCount++
		}
	}
	logger.Debug(ctx, "page placeholders processed",
		"page_number", page.PageNumber,
		"filled", filledCount,
		"cleaned", artifact.cleaned,
	)

	path := filepath.Join(deckDir, fmt.Sprintf("page_%d.pptx", page.PageNumber))
	if err := p.opener.Save(doc, path); err != nil {
		artifact.err = err
		return artifact
	}
	artifact.path = path
	return artifact
}

// assignContent 内容页走模型分配，固定页与模型失败时用确定性映射
func (p *Pipeline) assignContent(ctx context.Context, page entity.Page, placeholders []fill.Placeholder) []entity.Assignment {
	if len(placeholders) == 0 {
		return nil
	}

	if page.PageType == entity.PageTypeContent && p.assigner != nil {
		assignments, err := p.assigner.Assign(ctx, page, placeholders)
		if err == nil && len(assignments) > 0 {
			return assignments
		}
		if err != nil {
			logger.Warn(ctx, "content assignment failed, using deterministic mapping",
				"page_number", page.PageNumber, "error", err.Error())
		}
	}

	return deterministicAssignments(page, placeholders, p.now())
}

// defaultTemplatePath 匹配失败时的兜底内容模板：编号最小的模板
func (p *Pipeline) defaultTemplatePath() (string, error) {
	scan, err := p.library.CurrentScan()
	if err != nil {
		return "", err
	}
	if len(scan.Numbers) == 0 {
		return "", errors.ErrTemplateNotFound.WithDetail("template library is empty")
	}
	return p.library.TemplatePath(scan.Numbers[0])
}

// deterministicAssignments 按占位符名称的约定映射页面字段。
// 未识别的占位符留给清理阶段移除。
func deterministicAssignments(page entity.Page, placeholders []fill.Placeholder, now time.Time) []entity.Assignment {
	var out []entity.Assignment
	pointIdx := 0
	for _, ph := range placeholders {
		var content string
		name := strings.ToLower(ph.Name)
		switch {
		case strings.Contains(name, "title"):
			content = page.Title
		case strings.Contains(name, "date"):
			content = fmt.Sprintf("%d年%02d月", now.Year(), int(now.Month()))
		case strings.Contains(name, "content") || strings.Contains(name, "text") || strings.Contains(name, "body"):
			content = page.OriginalTextSegment
		case strings.Contains(name, "point") || strings.Contains(name, "item"):
			if pointIdx < len(page.KeyPoints) {
				content = page.KeyPoints[pointIdx]
				pointIdx++
			}
		}
		if content == "" {
			continue
		}
		out = append(out, entity.Assignment{
			SlideIndex:      ph.SlideIndex,
			PlaceholderName: ph.Name,
			Content:         content,
			Reason:          "deterministic mapping",
		})
	}
	return out
}
