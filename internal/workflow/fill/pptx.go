package fill

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ppt-gen-api/pkg/errors"
)

// 幻灯片 XML 里的文本运行。文本框和表格单元格的文字最终都落在
// <a:t> 节点上，替换这些节点就覆盖了两类容器。
var (
	slideEntryPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	textRunPattern    = regexp.MustCompile(`<a:t>(.*?)</a:t>`)
)

// PptxOpener 基于 zip 容器的 pptx 读写实现
type PptxOpener struct{}

// NewPptxOpener 创建 opener
func NewPptxOpener() *PptxOpener {
	return &PptxOpener{}
}

// pptxDocument 内存中的 pptx 文档。slideParts 按幻灯片序号排序，
// 其余 zip 条目原样保留。
type pptxDocument struct {
	entries    []pptxEntry
	slideParts []*pptxSlide
}

type pptxEntry struct {
	name string
	data []byte
	// slide 指向该条目对应的幻灯片，非幻灯片条目为 nil
	slide *pptxSlide
}

type pptxSlide struct {
	number int
	xml    string
	frames []*pptxFrame
}

type pptxFrame struct {
	text  string
	dirty bool
}

func (f *pptxFrame) Text() string { return f.text }

func (f *pptxFrame) SetText(text string) {
	f.text = text
	f.dirty = true
}

func (s *pptxSlide) Frames() []Frame {
	out := make([]Frame, len(s.frames))
	for i, f := range s.frames {
		out[i] = f
	}
	return out
}

func (d *pptxDocument) Slides() []Slide {
	out := make([]Slide, len(d.slideParts))
	for i, s := range d.slideParts {
		out[i] = s
	}
	return out
}

// Open 读取 pptx 文件，解析每页的文本运行
func (o *PptxOpener) Open(path string) (Document, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternalError, "failed to open slide document")
	}
	defer func() { _ = reader.Close() }()

	doc := &pptxDocument{}
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternalError, "failed to read slide entry")
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternalError, "failed to read slide entry")
		}

		entry := pptxEntry{name: file.Name, data: data}
		if m := slideEntryPattern.FindStringSubmatch(file.Name); m != nil {
			number, _ := strconv.Atoi(m[1])
			slide := parseSlideXML(number, string(data))
			entry.slide = slide
			doc.slideParts = append(doc.slideParts, slide)
		}
		doc.entries = append(doc.entries, entry)
	}

	sort.Slice(doc.slideParts, func(i, j int) bool {
		return doc.slideParts[i].number < doc.slideParts[j].number
	})
	return doc, nil
}

// Save 把文档写回 pptx。未修改的条目字节原样复制。
func (o *PptxOpener) Save(doc Document, path string) error {
	pd, ok := doc.(*pptxDocument)
	if !ok {
		return errors.ErrInvalidParam.WithDetail("document was not opened by this opener")
	}

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, entry := range pd.entries {
		w, err := writer.Create(entry.name)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternalError, "failed to write slide entry")
		}
		data := entry.data
		if entry.slide != nil && entry.slide.hasDirtyFrames() {
			data = []byte(entry.slide.renderXML())
		}
		if _, err := w.Write(data); err != nil {
			return errors.Wrap(err, errors.CodeInternalError, "failed to write slide entry")
		}
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternalError, "failed to finalize slide document")
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, errors.CodeInternalError, "failed to save slide document")
	}
	return nil
}

// parseSlideXML 抽取 <a:t> 文本运行
func parseSlideXML(number int, xmlText string) *pptxSlide {
	slide := &pptxSlide{number: number, xml: xmlText}
	for _, m := range textRunPattern.FindAllStringSubmatch(xmlText, -1) {
		slide.frames = append(slide.frames, &pptxFrame{text: unescapeXML(m[1])})
	}
	return slide
}

func (s *pptxSlide) hasDirtyFrames() bool {
	for _, f := range s.frames {
		if f.dirty {
			return true
		}
	}
	return false
}

// renderXML 按序把修改过的文本运行写回原 XML
func (s *pptxSlide) renderXML() string {
	i := 0
	return textRunPattern.ReplaceAllStringFunc(s.xml, func(m string) string {
		frame := s.frames[i]
		i++
		if !frame.dirty {
			return m
		}
		return "<a:t>" + escapeXML(frame.text) + "</a:t>"
	})
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

var xmlUnescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

func escapeXML(s string) string   { return xmlEscaper.Replace(s) }
func unescapeXML(s string) string { return xmlUnescaper.Replace(s) }
