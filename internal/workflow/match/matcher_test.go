package match

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/internal/template"
	"ppt-gen-api/internal/workflow/prompt"
	"ppt-gen-api/pkg/errors"
)

// stubCaller 返回固定回答
type stubCaller struct {
	answer string
	err    error
	calls  int
}

func (s *stubCaller) Call(ctx context.Context, system, user string) (string, error) {
	s.calls++
	return s.answer, s.err
}

var slideStub = []byte("PK\x03\x04stub-slide-bytes")

func newTestLibrary(t *testing.T, contentCount int) *template.Library {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{
		template.FixedTitleFile,
		template.FixedTOCFile,
		template.FixedEndingFile,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), slideStub, 0o644))
	}
	for i := 1; i <= contentCount; i++ {
		name := fmt.Sprintf("split_presentations_%d.pptx", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), slideStub, 0o644))
	}
	return template.NewLibrary(dir, time.Minute)
}

func TestParseTemplateNumber(t *testing.T) {
	cases := []struct {
		answer string
		want   int
	}{
		{"根据分析，推荐模板编号: 42", 42},
		{"推荐模板编号：7", 7},
		{"模板编号: 3", 3},
		{"我认为推荐模板 12 最合适", 12},
		{"使用模板 5 即可", 5},
		{"42", 42},
		{"答案是 8。", 8},
	}
	for _, c := range cases {
		got, err := ParseTemplateNumber(c.answer, 50)
		require.NoError(t, err, c.answer)
		assert.Equal(t, c.want, got, c.answer)
	}
}

func TestParseTemplateNumberPriority(t *testing.T) {
	// 带前缀的格式优先于裸整数
	got, err := ParseTemplateNumber("候选有 3 个，推荐模板编号: 9", 50)
	require.NoError(t, err)
	assert.Equal(t, 9, got)
}

func TestParseTemplateNumberUnresolved(t *testing.T) {
	for _, answer := range []string{"", "   ", "没有合适的模板"} {
		_, err := ParseTemplateNumber(answer, 50)
		require.Error(t, err, "%q", answer)
		assert.Equal(t, errors.CodeTemplateNumberUnresolved, errors.AsAppError(err).Code)
	}
}

func TestParseTemplateNumberOutOfRange(t *testing.T) {
	// 命中模式但编号越界时立即失败，不落入后续模式
	_, err := ParseTemplateNumber("推荐模板编号: 99", 10)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTemplateNumberUnresolved, errors.AsAppError(err).Code)

	_, err = ParseTemplateNumber("推荐模板编号: 0", 10)
	require.Error(t, err)
}

func TestMatchFixedPagesSkipLLM(t *testing.T) {
	library := newTestLibrary(t, 3)
	caller := &stubCaller{answer: "不应该被调用"}
	m := New(caller, prompt.NewRegistry(), library)

	cases := []struct {
		page entity.Page
		file string
	}{
		{entity.Page{PageNumber: 1, PageType: entity.PageTypeTitle, IsFixedTemplate: true}, template.FixedTitleFile},
		{entity.Page{PageNumber: 2, PageType: entity.PageTypeTableOfContents}, template.FixedTOCFile},
		{entity.Page{PageNumber: 9, PageType: entity.PageTypeEnding, IsFixedTemplate: true}, template.FixedEndingFile},
	}
	for _, c := range cases {
		match, err := m.Match(context.Background(), c.page)
		require.NoError(t, err)
		assert.Equal(t, c.page.PageNumber, match.PageNumber)
		assert.Equal(t, c.file, filepath.Base(match.TemplatePath))
		assert.Zero(t, match.TemplateNumber)
	}
	assert.Equal(t, 0, caller.calls)
}

func TestMatchContentPage(t *testing.T) {
	library := newTestLibrary(t, 3)
	caller := &stubCaller{answer: "根据页面内容，推荐模板编号: 2"}
	m := New(caller, prompt.NewRegistry(), library)

	page := entity.Page{
		PageNumber:          4,
		PageType:            entity.PageTypeContent,
		Title:               "市场分析",
		OriginalTextSegment: "这一页讲市场格局。",
		KeyPoints:           []string{"竞争", "增长"},
	}

	match, err := m.Match(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 1, caller.calls)
	assert.Equal(t, 2, match.TemplateNumber)
	assert.Equal(t, "split_presentations_2.pptx", filepath.Base(match.TemplatePath))
}

func TestMatchUnresolvedAnswer(t *testing.T) {
	library := newTestLibrary(t, 3)
	caller := &stubCaller{answer: "这些模板都不太合适"}
	m := New(caller, prompt.NewRegistry(), library)

	_, err := m.Match(context.Background(), entity.Page{
		PageNumber: 2,
		PageType:   entity.PageTypeContent,
		Title:      "内容页",
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeTemplateNumberUnresolved, errors.AsAppError(err).Code)
}

func TestMatchCallerFailure(t *testing.T) {
	library := newTestLibrary(t, 3)
	caller := &stubCaller{err: fmt.Errorf("llm unreachable")}
	m := New(caller, prompt.NewRegistry(), library)

	_, err := m.Match(context.Background(), entity.Page{
		PageNumber: 2,
		PageType:   entity.PageTypeContent,
		Title:      "内容页",
	})
	assert.Error(t, err)
}

func TestMatchEmptyLibrary(t *testing.T) {
	library := newTestLibrary(t, 0)
	m := New(&stubCaller{answer: "1"}, prompt.NewRegistry(), library)

	_, err := m.Match(context.Background(), entity.Page{
		PageNumber: 2,
		PageType:   entity.PageTypeContent,
		Title:      "内容页",
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeTemplateNotFound, errors.AsAppError(err).Code)
}

func TestRenderPageText(t *testing.T) {
	text := renderPageText(entity.Page{
		Title:               "标题",
		KeyPoints:           []string{"一", "二"},
		OriginalTextSegment: "正文内容",
	})
	assert.Contains(t, text, "标题：标题")
	assert.Contains(t, text, "- 一")
	assert.Contains(t, text, "- 二")
	assert.Contains(t, text, "正文内容")
}
