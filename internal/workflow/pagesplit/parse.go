// Package pagesplit 实现两阶段 AI 分页协议与确定性兜底切分
package pagesplit

import (
	"encoding/json"
	"fmt"
	"strings"

	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/internal/infrastructure/llm"
	"ppt-gen-api/pkg/errors"
)

// rawPage 模型输出的页面记录，字段类型宽松
type rawPage struct {
	PageNumber          json.Number `json:"page_number"`
	PageType            string      `json:"page_type"`
	Title               string      `json:"title"`
	OriginalTextSegment string      `json:"original_text_segment"`
	KeyPoints           []string    `json:"key_points"`
}

// rawResult 第二阶段输出：对象带 pages 键，或裸数组
type rawResult struct {
	Analysis *entity.PaginationAnalysis `json:"analysis"`
	Pages    []rawPage                  `json:"pages"`
}

// parsePages 解析第一阶段输出（JSON 数组）
func parsePages(content string) ([]rawPage, error) {
	raw := llm.ExtractJSONValue(content)
	var pages []rawPage
	if err := json.Unmarshal([]byte(raw), &pages); err != nil {
		return nil, errors.Wrap(err, errors.CodeParseError, "first pass output is not a json array")
	}
	return pages, nil
}

// parseResult 解析第二阶段输出。裸数组被归一化为带 analysis 的对象。
func parseResult(content string) (*rawResult, error) {
	raw := llm.ExtractJSONValue(content)

	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		var pages []rawPage
		if err := json.Unmarshal([]byte(raw), &pages); err != nil {
			return nil, errors.Wrap(err, errors.CodeParseError, "second pass output is not valid json")
		}
		return &rawResult{
			Analysis: &entity.PaginationAnalysis{
				TotalPages:    len(pages),
				ContentType:   "general",
				SplitStrategy: "logical",
			},
			Pages: pages,
		}, nil
	}

	var result rawResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, errors.Wrap(err, errors.CodeParseError, "second pass output is not valid json")
	}
	return &result, nil
}

// validatePages 校验页面记录的必填字段与类型
func validatePages(pages []rawPage) error {
	if len(pages) == 0 {
		return errors.ErrValidationFailed.WithDetail("pages is empty")
	}
	for i, p := range pages {
		if p.PageNumber.String() == "" {
			return errors.New(errors.CodeValidationFailed,
				fmt.Sprintf("page %d missing page_number", i+1))
		}
		if !entity.PageType(p.PageType).IsValid() {
			return errors.New(errors.CodeValidationFailed,
				fmt.Sprintf("page %d has invalid page_type %q", i+1, p.PageType))
		}
		if strings.TrimSpace(p.Title) == "" {
			return errors.New(errors.CodeValidationFailed,
				fmt.Sprintf("page %d missing title", i+1))
		}
		if strings.TrimSpace(p.OriginalTextSegment) == "" && len(p.KeyPoints) == 0 {
			return errors.New(errors.CodeValidationFailed,
				fmt.Sprintf("page %d missing original_text_segment and key_points", i+1))
		}
	}
	return nil
}

// validateResult 校验第二阶段结果
func validateResult(result *rawResult) error {
	if result == nil || result.Analysis == nil {
		return errors.ErrValidationFailed.WithDetail("missing analysis")
	}
	return validatePages(result.Pages)
}

// toEntityPages 转换为领域页面并重编页码（1 起连续）
func toEntityPages(pages []rawPage) []entity.Page {
	out := make([]entity.Page, 0, len(pages))
	for i, p := range pages {
		pageType := entity.PageType(p.PageType)
		out = append(out, entity.Page{
			PageNumber:          i + 1,
			PageType:            pageType,
			Title:               strings.TrimSpace(p.Title),
			OriginalTextSegment: p.OriginalTextSegment,
			KeyPoints:           p.KeyPoints,
			IsFixedTemplate:     pageType == entity.PageTypeTitle || pageType == entity.PageTypeEnding,
		})
	}
	return out
}

// CoversInput 检查分页结果是否完整覆盖输入文本。
// 将各页原文片段顺序拼接后与输入做空白归一化比较。
func CoversInput(pages []entity.Page, input string) bool {
	var sb strings.Builder
	for _, p := range pages {
		sb.WriteString(p.OriginalTextSegment)
	}
	return normalizeWhitespace(sb.String()) == normalizeWhitespace(input)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
