package pagesplit

import (
	"fmt"
	"strings"
	"time"

	"ppt-gen-api/internal/domain/entity"
)

const (
	// maxAIPages 结束页之前的页数上限
	maxAIPages = 24
	// fallbackTitleRunes 标题行超长时截取的字符数
	fallbackTitleRunes = 30
	// fallbackTitleLimit 标题行触发截取的长度阈值
	fallbackTitleLimit = 50
)

// Fallback 确定性兜底切分：不依赖网络，任何输入都返回结构合法的
// 分页结果。质量降级，结构不降级。
func Fallback(text string, now time.Time) *entity.PaginationResult {
	trimmed := strings.TrimSpace(text)

	title, body := splitTitleLine(trimmed)
	dateLabel := fmt.Sprintf("%d年%02d月", now.Year(), int(now.Month()))

	pages := []entity.Page{
		{
			PageNumber:      1,
			PageType:        entity.PageTypeTitle,
			Title:           title,
			KeyPoints:       []string{dateLabel},
			IsFixedTemplate: true,
		},
	}

	segments := splitParagraphs(body)
	if len(segments) == 0 && trimmed != "" {
		segments = []string{trimmed}
	}
	for i, seg := range segments {
		if len(pages) >= maxAIPages {
			// 超出上限的段落并入最后一页，不丢内容
			last := &pages[len(pages)-1]
			last.OriginalTextSegment += "\n\n" + strings.Join(segments[i:], "\n\n")
			break
		}
		pages = append(pages, entity.Page{
			PageNumber:          len(pages) + 1,
			PageType:            entity.PageTypeContent,
			Title:               segmentTitle(seg, len(pages)),
			OriginalTextSegment: seg,
		})
	}

	pages = append(pages, entity.NewEndingPage(len(pages)+1))

	return &entity.PaginationResult{
		Analysis: entity.PaginationAnalysis{
			TotalPages:    len(pages),
			ContentType:   "general",
			SplitStrategy: "fallback",
		},
		Pages:    pages,
		Fallback: true,
	}
}

// splitTitleLine 取首个非空行作为标题，返回标题与剩余正文
func splitTitleLine(text string) (string, string) {
	if text == "" {
		return "未命名演示文稿", ""
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		title := line
		if runes := []rune(line); len(runes) > fallbackTitleLimit {
			title = string(runes[:fallbackTitleRunes]) + "..."
		}
		body := strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		return title, body
	}
	return "未命名演示文稿", ""
}

// splitParagraphs 按空行切分正文
func splitParagraphs(body string) []string {
	if body == "" {
		return nil
	}
	var out []string
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}

// segmentTitle 为内容页生成简短标题
func segmentTitle(seg string, index int) string {
	line := seg
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > 20 {
		return string(runes[:20])
	}
	if line == "" {
		return fmt.Sprintf("第%d部分", index)
	}
	return line
}
