package fill

import (
	"regexp"
	"strconv"
)

// 占位符形如 {name}，name 不含花括号
var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Placeholder 在文档中定位到的一个占位符
type Placeholder struct {
	SlideIndex int
	FrameIndex int
	Name       string
}

// Token 占位符的原始文本形式
func (p Placeholder) Token() string {
	return "{" + p.Name + "}"
}

// ScanPlaceholders 扫描文档中所有占位符，按幻灯片、文本框顺序返回。
// 同名占位符多次出现时每次出现都会列出。
func ScanPlaceholders(doc Document) []Placeholder {
	var out []Placeholder
	for si, slide := range doc.Slides() {
		for fi, frame := range slide.Frames() {
			for _, m := range placeholderPattern.FindAllStringSubmatch(frame.Text(), -1) {
				out = append(out, Placeholder{
					SlideIndex: si,
					FrameIndex: fi,
					Name:       m[1],
				})
			}
		}
	}
	return out
}

// FilledPlaceholderSet 记录一次填充会话中已填过的 (幻灯片, 占位符)。
// 生命周期限于单次填充，不跨文档复用。
type FilledPlaceholderSet struct {
	filled map[string]struct{}
}

// NewFilledPlaceholderSet 创建空集合
func NewFilledPlaceholderSet() *FilledPlaceholderSet {
	return &FilledPlaceholderSet{filled: make(map[string]struct{})}
}

// Mark 标记已填充，返回之前是否已存在
func (s *FilledPlaceholderSet) Mark(slideIndex int, name string) bool {
	key := strconv.Itoa(slideIndex) + "\x00" + name
	if _, ok := s.filled[key]; ok {
		return true
	}
	s.filled[key] = struct{}{}
	return false
}

// Contains 查询是否已填充
func (s *FilledPlaceholderSet) Contains(slideIndex int, name string) bool {
	key := strconv.Itoa(slideIndex) + "\x00" + name
	_, ok := s.filled[key]
	return ok
}

// Len 已填充数量
func (s *FilledPlaceholderSet) Len() int {
	return len(s.filled)
}
