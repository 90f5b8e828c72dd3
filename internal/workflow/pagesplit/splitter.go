package pagesplit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/pkg/errors"
	"ppt-gen-api/pkg/logger"
	"ppt-gen-api/pkg/metrics"

	"ppt-gen-api/internal/workflow/prompt"
)

var tracer = otel.Tracer("pagesplit")

// Caller LLM 调用抽象，由 llm.Caller 实现
type Caller interface {
	Call(ctx context.Context, system, user string) (string, error)
}

// Splitter 两阶段分页器。
// 第一阶段按逻辑结构切分，第二阶段向目标页数调整；任一阶段的
// 网络失败、解析失败或校验失败都会落入确定性兜底切分，调用方
// 永远拿到结构合法的结果，不会看到裸的网络异常。
type Splitter struct {
	caller  Caller
	prompts *prompt.Registry
	cfg     config.PipelineConfig

	// now 可注入时钟，测试用
	now func() time.Time
}

// Option Splitter 构造选项
type Option func(*Splitter)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(s *Splitter) { s.now = now }
}

// New 创建分页器
func New(caller Caller, prompts *prompt.Registry, cfg config.PipelineConfig, opts ...Option) *Splitter {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 25
	}
	if cfg.MinTargetPages <= 0 {
		cfg.MinTargetPages = 3
	}
	if cfg.MinSegmentChars <= 0 {
		cfg.MinSegmentChars = 300
	}
	s := &Splitter{
		caller:  caller,
		prompts: prompts,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split 执行两阶段分页。targetPages 为 0 表示不指定目标页数。
func (s *Splitter) Split(ctx context.Context, text string, targetPages int) (*entity.PaginationResult, error) {
	ctx, span := tracer.Start(ctx, "pagesplit.Split")
	span.SetAttributes(attribute.Int("pagesplit.target_pages", targetPages))
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, errors.ErrInvalidParam.WithDetail("text is empty")
	}
	if targetPages != 0 && (targetPages < s.cfg.MinTargetPages || targetPages > s.cfg.MaxPages) {
		return nil, errors.New(errors.CodePageCountInvalid,
			"target_pages must be between "+strconv.Itoa(s.cfg.MinTargetPages)+" and "+strconv.Itoa(s.cfg.MaxPages))
	}

	firstPages, err := s.structurePass(ctx, text)
	if err != nil {
		logger.Warn(ctx, "structure pass failed, using fallback splitter", "error", err.Error())
		metrics.PaginationFallbackTotal.WithLabelValues("structure").Inc()
		return Fallback(text, s.now()), nil
	}

	result, err := s.adjustPass(ctx, firstPages, targetPages)
	if err != nil {
		logger.Warn(ctx, "adjust pass failed, using fallback splitter", "error", err.Error())
		metrics.PaginationFallbackTotal.WithLabelValues("adjust").Inc()
		return Fallback(text, s.now()), nil
	}

	return s.finalize(ctx, result, targetPages), nil
}

// structurePass 第一阶段：按逻辑结构切分，不限定页数
func (s *Splitter) structurePass(ctx context.Context, text string) ([]rawPage, error) {
	ctx, span := tracer.Start(ctx, "pagesplit.structurePass")
	defer span.End()

	tpl, err := s.prompts.Get(prompt.PromptPaginationStructureV1)
	if err != nil {
		return nil, err
	}
	system, user := tpl.Render(map[string]string{"text": text})

	content, err := s.caller.Call(ctx, system, user)
	if err != nil {
		return nil, err
	}

	pages, err := parsePages(content)
	if err != nil {
		return nil, err
	}
	if err := validatePages(pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// adjustPass 第二阶段：向目标页数调整或收敛过度拆分
func (s *Splitter) adjustPass(ctx context.Context, firstPages []rawPage, targetPages int) (*rawResult, error) {
	ctx, span := tracer.Start(ctx, "pagesplit.adjustPass")
	defer span.End()

	tpl, err := s.prompts.Get(prompt.PromptPaginationAdjustV1)
	if err != nil {
		return nil, err
	}

	firstJSON, err := json.Marshal(firstPages)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternalError, "failed to marshal first pass result")
	}

	// AI 页数 = 目标页数 - 1，结束页由系统机械追加
	targetLabel := "未指定"
	if targetPages > 0 {
		targetLabel = strconv.Itoa(targetPages - 1)
	}

	system, user := tpl.Render(map[string]string{
		"target_pages":      targetLabel,
		"first_pass_result": string(firstJSON),
	})

	content, err := s.caller.Call(ctx, system, user)
	if err != nil {
		return nil, err
	}

	result, err := parseResult(content)
	if err != nil {
		return nil, err
	}
	if err := validateResult(result); err != nil {
		return nil, err
	}
	return result, nil
}

// finalize 归一化第二阶段结果并机械追加结束页。
// 模型输出的页数越界时在这里收敛，不直接信任提示词约束。
func (s *Splitter) finalize(ctx context.Context, result *rawResult, targetPages int) *entity.PaginationResult {
	pages := dropEndingPages(ctx, result.Pages)
	out := toEntityPages(pages)
	out = coerceTitlePage(out)

	if targetPages > 0 {
		out = enforcePageCount(ctx, out, targetPages-1)
	} else {
		out = mergeUnderLength(out, s.cfg.MinSegmentChars)
	}

	if len(out) > maxAIPages {
		logger.Warn(ctx, "ai page count over limit, clamping",
			"pages", len(out), "limit", maxAIPages)
		out = mergeTail(out, maxAIPages)
	}

	renumber(out)
	out = append(out, entity.NewEndingPage(len(out)+1))

	analysis := *result.Analysis
	analysis.TotalPages = len(out)

	return &entity.PaginationResult{
		Analysis: analysis,
		Pages:    out,
	}
}

// dropEndingPages 移除模型违规生成的结束页
func dropEndingPages(ctx context.Context, pages []rawPage) []rawPage {
	out := pages[:0]
	dropped := 0
	for _, p := range pages {
		if entity.PageType(p.PageType) == entity.PageTypeEnding {
			dropped++
			continue
		}
		out = append(out, p)
	}
	if dropped > 0 {
		logger.Warn(ctx, "model produced ending pages, dropped", "count", dropped)
	}
	return out
}

// coerceTitlePage 保证恰好一个标题页且位于第 1 页
func coerceTitlePage(pages []entity.Page) []entity.Page {
	if len(pages) == 0 {
		return pages
	}
	for i := range pages {
		if i == 0 {
			pages[i].PageType = entity.PageTypeTitle
			pages[i].IsFixedTemplate = true
			continue
		}
		if pages[i].PageType == entity.PageTypeTitle {
			pages[i].PageType = entity.PageTypeContent
			pages[i].IsFixedTemplate = false
		}
	}
	return pages
}

// enforcePageCount 把 AI 页数收敛到精确目标：超出时尾部合并，
// 不足时按段落/句子边界拆分最长的内容页。
func enforcePageCount(ctx context.Context, pages []entity.Page, target int) []entity.Page {
	if target <= 0 || len(pages) == target {
		return pages
	}

	if len(pages) > target {
		logger.Warn(ctx, "ai returned more pages than target, merging tail",
			"pages", len(pages), "target", target)
		return mergeTail(pages, target)
	}

	logger.Warn(ctx, "ai returned fewer pages than target, splitting longest pages",
		"pages", len(pages), "target", target)
	for len(pages) < target {
		idx := longestContentPage(pages)
		if idx < 0 {
			break
		}
		head, tail, ok := splitSegment(pages[idx].OriginalTextSegment)
		if !ok {
			break
		}
		split := pages[idx]
		split.OriginalTextSegment = head
		cont := entity.Page{
			PageType:            entity.PageTypeContent,
			Title:               split.Title + "（续）",
			OriginalTextSegment: tail,
		}
		pages = append(pages[:idx+1], append([]entity.Page{cont}, pages[idx+1:]...)...)
		pages[idx] = split
	}
	return pages
}

// mergeTail 把超出 limit 的页面并入第 limit 页，保留全部原文
func mergeTail(pages []entity.Page, limit int) []entity.Page {
	if len(pages) <= limit {
		return pages
	}
	last := &pages[limit-1]
	for _, p := range pages[limit:] {
		if p.OriginalTextSegment != "" {
			if last.OriginalTextSegment != "" {
				last.OriginalTextSegment += "\n\n"
			}
			last.OriginalTextSegment += p.OriginalTextSegment
		}
		last.KeyPoints = append(last.KeyPoints, p.KeyPoints...)
	}
	return pages[:limit]
}

// mergeUnderLength 把原文片段过短的内容页并入前一页。
// 提示词只"要求"模型遵守最短长度，这里做程序化兜底。
func mergeUnderLength(pages []entity.Page, minChars int) []entity.Page {
	out := pages[:0]
	for _, p := range pages {
		if len(out) > 1 &&
			p.PageType == entity.PageTypeContent &&
			out[len(out)-1].PageType == entity.PageTypeContent &&
			len([]rune(p.OriginalTextSegment)) < minChars {
			prev := &out[len(out)-1]
			if prev.OriginalTextSegment != "" {
				prev.OriginalTextSegment += "\n\n"
			}
			prev.OriginalTextSegment += p.OriginalTextSegment
			prev.KeyPoints = append(prev.KeyPoints, p.KeyPoints...)
			continue
		}
		out = append(out, p)
	}
	return out
}

func longestContentPage(pages []entity.Page) int {
	best := -1
	bestLen := 0
	for i, p := range pages {
		if p.PageType != entity.PageTypeContent {
			continue
		}
		if l := len([]rune(p.OriginalTextSegment)); l > bestLen {
			best, bestLen = i, l
		}
	}
	return best
}

// splitSegment 在段落或句子边界将片段一分为二
func splitSegment(seg string) (string, string, bool) {
	mid := len(seg) / 2
	for _, sep := range []string{"\n\n", "。", "\n"} {
		if idx := strings.Index(seg[mid:], sep); idx >= 0 {
			cut := mid + idx + len(sep)
			if cut < len(seg) {
				return strings.TrimSpace(seg[:cut]), strings.TrimSpace(seg[cut:]), true
			}
		}
	}
	return "", "", false
}

func renumber(pages []entity.Page) {
	for i := range pages {
		pages[i].PageNumber = i + 1
	}
}
