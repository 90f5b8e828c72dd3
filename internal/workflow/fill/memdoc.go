package fill

// MemDocument 内存文档实现，测试与干跑模式使用
type MemDocument struct {
	slides []*MemSlide
}

// MemSlide 内存幻灯片
type MemSlide struct {
	frames []*MemFrame
}

// MemFrame 内存文本容器
type MemFrame struct {
	text string
}

// NewMemDocument 按每页的文本容器初始化文档
func NewMemDocument(slides ...[]string) *MemDocument {
	doc := &MemDocument{}
	for _, texts := range slides {
		slide := &MemSlide{}
		for _, t := range texts {
			slide.frames = append(slide.frames, &MemFrame{text: t})
		}
		doc.slides = append(doc.slides, slide)
	}
	return doc
}

func (d *MemDocument) Slides() []Slide {
	out := make([]Slide, len(d.slides))
	for i, s := range d.slides {
		out[i] = s
	}
	return out
}

// Texts 返回全部文本，断言用
func (d *MemDocument) Texts() [][]string {
	out := make([][]string, len(d.slides))
	for i, s := range d.slides {
		for _, f := range s.frames {
			out[i] = append(out[i], f.text)
		}
	}
	return out
}

func (s *MemSlide) Frames() []Frame {
	out := make([]Frame, len(s.frames))
	for i, f := range s.frames {
		out[i] = f
	}
	return out
}

func (f *MemFrame) Text() string        { return f.text }
func (f *MemFrame) SetText(text string) { f.text = text }
