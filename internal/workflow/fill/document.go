// Package fill 实现占位符填充与清理
package fill

// Frame 可写文本容器：文本框或表格单元格中的一段文字
type Frame interface {
	Text() string
	SetText(text string)
}

// Slide 一页幻灯片
type Slide interface {
	Frames() []Frame
}

// Document 幻灯片文档抽象。填充与清理只依赖文本读写，
// 不关心底层文件格式。
type Document interface {
	Slides() []Slide
}

// Opener 文档的打开与保存
type Opener interface {
	Open(path string) (Document, error)
	Save(doc Document, path string) error
}
