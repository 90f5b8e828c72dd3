// Package match 为内容页推荐模板并解析模型的编号回答
package match

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/internal/template"
	"ppt-gen-api/internal/workflow/prompt"
	"ppt-gen-api/pkg/errors"
	"ppt-gen-api/pkg/logger"
	"ppt-gen-api/pkg/metrics"
)

var tracer = otel.Tracer("match")

// Caller LLM 调用抽象
type Caller interface {
	Call(ctx context.Context, system, user string) (string, error)
}

// 编号解析优先级从高到低：带"推荐模板编号"前缀的格式最可信，
// 裸整数只在前面的模式全部落空时兜底。
var numberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`推荐模板编号[:：]\s*(\d+)`),
	regexp.MustCompile(`模板编号[:：]\s*(\d+)`),
	regexp.MustCompile(`推荐模板\s*(\d+)`),
	regexp.MustCompile(`模板\s*(\d+)`),
	regexp.MustCompile(`\b(\d+)\b`),
}

// Matcher 模板匹配器
type Matcher struct {
	caller  Caller
	prompts *prompt.Registry
	library *template.Library
}

// New 创建匹配器
func New(caller Caller, prompts *prompt.Registry, library *template.Library) *Matcher {
	return &Matcher{
		caller:  caller,
		prompts: prompts,
		library: library,
	}
}

// Match 为单个页面解析模板。标题页、目录页、结束页使用固定模板，
// 不经过模型；内容页由模型从模板库中推荐编号。
func (m *Matcher) Match(ctx context.Context, page entity.Page) (*entity.TemplateMatch, error) {
	ctx, span := tracer.Start(ctx, "match.Match")
	span.SetAttributes(attribute.Int("match.page_number", page.PageNumber))
	defer span.End()

	if page.IsFixedTemplate || page.PageType != entity.PageTypeContent {
		path, err := m.library.FixedPath(page.PageType)
		if err != nil {
			metrics.TemplateMatchTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.TemplateMatchTotal.WithLabelValues("fixed").Inc()
		return &entity.TemplateMatch{
			PageNumber:   page.PageNumber,
			TemplatePath: path,
		}, nil
	}

	catalog, maxNumber, err := m.library.Catalog()
	if err != nil {
		return nil, err
	}
	if maxNumber == 0 {
		metrics.TemplateMatchTotal.WithLabelValues("error").Inc()
		return nil, errors.ErrTemplateNotFound.WithDetail("template library is empty")
	}

	tpl, err := m.prompts.Get(prompt.PromptTemplateMatchV1)
	if err != nil {
		return nil, err
	}
	system, user := tpl.Render(map[string]string{
		"max_template":     strconv.Itoa(maxNumber),
		"template_catalog": catalog,
		"page_text":        renderPageText(page),
	})

	content, err := m.caller.Call(ctx, system, user)
	if err != nil {
		metrics.TemplateMatchTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	number, err := ParseTemplateNumber(content, maxNumber)
	if err != nil {
		logger.Warn(ctx, "template number unresolved",
			"page_number", page.PageNumber, "answer_len", len(content))
		metrics.TemplateMatchTotal.WithLabelValues("unresolved").Inc()
		return nil, err
	}

	path, err := m.library.TemplatePath(number)
	if err != nil {
		metrics.TemplateMatchTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.TemplateMatchTotal.WithLabelValues("ok").Inc()
	return &entity.TemplateMatch{
		PageNumber:     page.PageNumber,
		TemplateNumber: number,
		TemplatePath:   path,
	}, nil
}

// ParseTemplateNumber 按优先级从模型回答中解析模板编号。
// 全部模式落空或编号越界时返回 ErrTemplateNumberUnresolved。
func ParseTemplateNumber(answer string, maxNumber int) (int, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0, errors.ErrTemplateNumberUnresolved.WithDetail("empty answer")
	}

	for _, pattern := range numberPatterns {
		m := pattern.FindStringSubmatch(answer)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n < 1 || n > maxNumber {
			return 0, errors.ErrTemplateNumberUnresolved.WithDetail(
				fmt.Sprintf("number %d out of range 1..%d", n, maxNumber))
		}
		return n, nil
	}
	return 0, errors.ErrTemplateNumberUnresolved.WithDetail("no number found in answer")
}

// renderPageText 把页面信息拼装为提示词输入
func renderPageText(page entity.Page) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "标题：%s\n", page.Title)
	if len(page.KeyPoints) > 0 {
		fmt.Fprintf(&sb, "要点（%d 条）：\n", len(page.KeyPoints))
		for _, kp := range page.KeyPoints {
			fmt.Fprintf(&sb, "- %s\n", kp)
		}
	}
	if page.OriginalTextSegment != "" {
		fmt.Fprintf(&sb, "正文（%d 字）：\n%s\n", len([]rune(page.OriginalTextSegment)), page.OriginalTextSegment)
	}
	return strings.TrimRight(sb.String(), "\n")
}
