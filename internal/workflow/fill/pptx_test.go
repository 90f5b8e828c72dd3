package fill

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppt-gen-api/internal/domain/entity"
)

// writeTestPptx 组装一个最小的 pptx zip 容器
func writeTestPptx(t *testing.T, path string, slides map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	static := map[string]string{
		"[Content_Types].xml":     `<?xml version="1.0"?><Types/>`,
		"ppt/presentation.xml":    `<?xml version="1.0"?><p:presentation/>`,
		"ppt/slides/_rels/keep":   "rel-data",
		"docProps/app.xml":        `<?xml version="1.0"?><Properties/>`,
	}
	for name, data := range static {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(data))
		require.NoError(t, err)
	}
	for name, data := range slides {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestPptxOpenParsesTextRuns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")
	writeTestPptx(t, path, map[string]string{
		"ppt/slides/slide2.xml": `<p:sld><a:t>第二页 {content}</a:t></p:sld>`,
		"ppt/slides/slide1.xml": `<p:sld><a:t>{title}</a:t><a:t>固定文字</a:t></p:sld>`,
	})

	opener := NewPptxOpener()
	doc, err := opener.Open(path)
	require.NoError(t, err)

	slides := doc.Slides()
	require.Len(t, slides, 2)

	// 幻灯片按编号排序，与 zip 条目顺序无关
	first := slides[0].Frames()
	require.Len(t, first, 2)
	assert.Equal(t, "{title}", first[0].Text())
	assert.Equal(t, "固定文字", first[1].Text())

	second := slides[1].Frames()
	require.Len(t, second, 1)
	assert.Equal(t, "第二页 {content}", second[0].Text())
}

func TestPptxSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "template.pptx")
	dst := filepath.Join(dir, "page_1.pptx")
	writeTestPptx(t, src, map[string]string{
		"ppt/slides/slide1.xml": `<p:sld><a:t>{title}</a:t><a:t>保持不变</a:t></p:sld>`,
	})

	opener := NewPptxOpener()
	doc, err := opener.Open(src)
	require.NoError(t, err)

	doc.Slides()[0].Frames()[0].SetText("填充后的标题")
	require.NoError(t, opener.Save(doc, dst))

	reopened, err := opener.Open(dst)
	require.NoError(t, err)
	frames := reopened.Slides()[0].Frames()
	assert.Equal(t, "填充后的标题", frames[0].Text())
	assert.Equal(t, "保持不变", frames[1].Text())

	// 非幻灯片条目原样保留
	zr, err := zip.OpenReader(dst)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["[Content_Types].xml"])
	assert.True(t, names["ppt/presentation.xml"])
}

func TestPptxSaveEscapesXML(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "template.pptx")
	dst := filepath.Join(dir, "out.pptx")
	writeTestPptx(t, src, map[string]string{
		"ppt/slides/slide1.xml": `<p:sld><a:t>{title}</a:t></p:sld>`,
	})

	opener := NewPptxOpener()
	doc, err := opener.Open(src)
	require.NoError(t, err)

	doc.Slides()[0].Frames()[0].SetText(`A & B <概要>`)
	require.NoError(t, opener.Save(doc, dst))

	reopened, err := opener.Open(dst)
	require.NoError(t, err)
	assert.Equal(t, `A & B <概要>`, reopened.Slides()[0].Frames()[0].Text())
}

func TestPptxFillAndCleanOnRealContainer(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "template.pptx")
	dst := filepath.Join(dir, "out.pptx")
	writeTestPptx(t, src, map[string]string{
		"ppt/slides/slide1.xml": `<p:sld><a:t>{title}</a:t><a:t>{unused}</a:t></p:sld>`,
	})

	opener := NewPptxOpener()
	doc, err := opener.Open(src)
	require.NoError(t, err)

	_, filled := NewFiller().Fill(context.Background(), doc, []entity.Assignment{
		{SlideIndex: 0, PlaceholderName: "title", Content: "标题内容"},
	})
	removed := NewCleaner().Clean(context.Background(), doc, filled)
	assert.Equal(t, 1, removed)

	require.NoError(t, opener.Save(doc, dst))

	reopened, err := opener.Open(dst)
	require.NoError(t, err)
	frames := reopened.Slides()[0].Frames()
	assert.Equal(t, "标题内容", frames[0].Text())
	assert.Equal(t, "", frames[1].Text())
	assert.Empty(t, ScanPlaceholders(reopened))
}

func TestPptxOpenMissingFile(t *testing.T) {
	opener := NewPptxOpener()
	_, err := opener.Open(filepath.Join(t.TempDir(), "missing.pptx"))
	assert.Error(t, err)
}

func TestPptxSaveRejectsForeignDocument(t *testing.T) {
	opener := NewPptxOpener()
	err := opener.Save(NewMemDocument([]string{"x"}), filepath.Join(t.TempDir(), "out.pptx"))
	assert.Error(t, err)
}
