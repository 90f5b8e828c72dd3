package fill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/internal/infrastructure/llm"
	"ppt-gen-api/internal/workflow/prompt"
	"ppt-gen-api/pkg/errors"
	"ppt-gen-api/pkg/logger"
)

// Caller LLM 调用抽象
type Caller interface {
	Call(ctx context.Context, system, user string) (string, error)
}

// Assigner 让模型为模板占位符挑选页面文本片段
type Assigner struct {
	caller  Caller
	prompts *prompt.Registry
}

// NewAssigner 创建分配器
func NewAssigner(caller Caller, prompts *prompt.Registry) *Assigner {
	return &Assigner{caller: caller, prompts: prompts}
}

// rawAssignment 模型输出的分配记录
type rawAssignment struct {
	SlideIndex      json.Number `json:"slide_index"`
	PlaceholderName string      `json:"placeholder_name"`
	Content         string      `json:"content"`
	Reason          string      `json:"reason"`
}

// Assign 为一个页面的占位符生成分配列表。
// 模型输出里引用了不存在的占位符时丢弃该条并告警，不中断。
func (a *Assigner) Assign(ctx context.Context, page entity.Page, placeholders []Placeholder) ([]entity.Assignment, error) {
	ctx, span := tracer.Start(ctx, "fill.Assign")
	defer span.End()

	if len(placeholders) == 0 {
		return nil, nil
	}

	tpl, err := a.prompts.Get(prompt.PromptContentAssignV1)
	if err != nil {
		return nil, err
	}
	system, user := tpl.Render(map[string]string{
		"page_text":    renderPageText(page),
		"placeholders": renderPlaceholders(placeholders),
	})

	content, err := a.caller.Call(ctx, system, user)
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSONValue(content)
	var items []rawAssignment
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, errors.Wrap(err, errors.CodeParseError, "assignment output is not a json array")
	}

	known := make(map[string]struct{}, len(placeholders))
	for _, p := range placeholders {
		known[fmt.Sprintf("%d\x00%s", p.SlideIndex, p.Name)] = struct{}{}
	}

	out := make([]entity.Assignment, 0, len(items))
	for _, item := range items {
		idx, err := item.SlideIndex.Int64()
		if err != nil {
			logger.Warn(ctx, "assignment has non-integer slide_index, dropping",
				"placeholder", item.PlaceholderName)
			continue
		}
		key := fmt.Sprintf("%d\x00%s", idx, item.PlaceholderName)
		if _, ok := known[key]; !ok {
			logger.Warn(ctx, "assignment references unknown placeholder, dropping",
				"slide_index", idx, "placeholder", item.PlaceholderName)
			continue
		}
		out = append(out, entity.Assignment{
			SlideIndex:      int(idx),
			PlaceholderName: item.PlaceholderName,
			Content:         strings.TrimSpace(item.Content),
			Reason:          item.Reason,
		})
	}
	return out, nil
}

// renderPageText 页面信息转提示词输入
func renderPageText(page entity.Page) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "标题：%s\n", page.Title)
	for _, kp := range page.KeyPoints {
		fmt.Fprintf(&sb, "- %s\n", kp)
	}
	if page.OriginalTextSegment != "" {
		sb.WriteString(page.OriginalTextSegment)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderPlaceholders 占位符列表转提示词输入
func renderPlaceholders(placeholders []Placeholder) string {
	var sb strings.Builder
	for _, p := range placeholders {
		fmt.Fprintf(&sb, "slide_index=%d placeholder_name=%s\n", p.SlideIndex, p.Name)
	}
	return strings.TrimRight(sb.String(), "\n")
}
