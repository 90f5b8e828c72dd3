// Package entity 定义领域实体
package entity

// PageType 页面类型
type PageType string

const (
	PageTypeTitle           PageType = "title"
	PageTypeTableOfContents PageType = "table_of_contents"
	PageTypeContent         PageType = "content"
	PageTypeEnding          PageType = "ending"
)

// IsValid 检查页面类型是否合法
func (t PageType) IsValid() bool {
	switch t {
	case PageTypeTitle, PageTypeTableOfContents, PageTypeContent, PageTypeEnding:
		return true
	}
	return false
}

// Page 一张待生成的幻灯片
type Page struct {
	// PageNumber 页码，从 1 开始，结果集内连续且唯一
	PageNumber int      `json:"page_number"`
	PageType   PageType `json:"page_type"`
	Title      string   `json:"title"`
	// OriginalTextSegment 该页覆盖的用户原文片段，结束页为空
	OriginalTextSegment string `json:"original_text_segment"`
	// KeyPoints 要点列表，仅对 content/title 页有意义
	KeyPoints []string `json:"key_points,omitempty"`
	// IsFixedTemplate 固定模板页（title/ending）不经过模板匹配
	IsFixedTemplate bool `json:"is_fixed_template"`
}

// NewEndingPage 创建机械追加的结束页
func NewEndingPage(pageNumber int) Page {
	return Page{
		PageNumber:      pageNumber,
		PageType:        PageTypeEnding,
		Title:           "谢谢观看",
		IsFixedTemplate: true,
	}
}

// IsFixed 页面是否使用固定模板
func (p *Page) IsFixed() bool {
	return p.IsFixedTemplate ||
		p.PageType == PageTypeTitle ||
		p.PageType == PageTypeEnding
}

// PaginationAnalysis 分页分析元信息
type PaginationAnalysis struct {
	TotalPages    int    `json:"total_pages"`
	ContentType   string `json:"content_type"`
	SplitStrategy string `json:"split_strategy"`
}

// PaginationResult 一次分页的完整结果
type PaginationResult struct {
	Analysis PaginationAnalysis `json:"analysis"`
	Pages    []Page             `json:"pages"`
	// Fallback 标记结果来自确定性兜底切分而非 AI
	Fallback bool `json:"fallback,omitempty"`
}
