package fill

import (
	"context"
	"regexp"
	"strings"

	"ppt-gen-api/pkg/logger"
	"ppt-gen-api/pkg/metrics"
)

var doubleSpacePattern = regexp.MustCompile(`[ \t]{2,}`)

// Cleaner 清理未被填充的占位符。幂等：再次运行已清理的文档不做
// 任何修改，返回 0。
type Cleaner struct{}

// NewCleaner 创建清理器
func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Clean 移除文档中残留的 {name} 占位符并归一化留下的空白，
// 返回被移除的不同占位符名的数量。filled 记录的 (幻灯片, 占位符)
// 一律不动：填充内容里合法出现的花括号文本不能被当作残留清掉。
// filled 为 nil 时视为空集。
func (c *Cleaner) Clean(ctx context.Context, doc Document, filled *FilledPlaceholderSet) int {
	ctx, span := tracer.Start(ctx, "fill.Clean")
	defer span.End()

	distinct := make(map[string]struct{})
	for si, slide := range doc.Slides() {
		for _, frame := range slide.Frames() {
			text := frame.Text()
			removed := false
			cleaned := placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
				name := token[1 : len(token)-1]
				if filled != nil && filled.Contains(si, name) {
					return token
				}
				distinct[name] = struct{}{}
				removed = true
				return ""
			})
			if !removed {
				continue
			}
			frame.SetText(normalizeAfterRemoval(cleaned))
		}
	}

	if len(distinct) > 0 {
		logger.Info(ctx, "cleaned unfilled placeholders", "count", len(distinct))
		metrics.PlaceholderCleanedTotal.Add(float64(len(distinct)))
	}
	return len(distinct)
}

// normalizeAfterRemoval 收敛占位符移除后留下的多余空白
func normalizeAfterRemoval(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(doubleSpacePattern.ReplaceAllString(line, " "), " \t")
	}
	return strings.Join(lines, "\n")
}
