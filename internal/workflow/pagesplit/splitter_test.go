package pagesplit

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppt-gen-api/internal/config"
	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/internal/workflow/prompt"
	"ppt-gen-api/pkg/errors"
)

// stubCaller 按调用顺序返回预置回答，并记录收到的提示词
type stubCaller struct {
	responses []string
	errs      []error
	calls     int
	systems   []string
	users     []string
}

func (s *stubCaller) Call(ctx context.Context, system, user string) (string, error) {
	i := s.calls
	s.calls++
	s.systems = append(s.systems, system)
	s.users = append(s.users, user)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", fmt.Errorf("unexpected call %d", i)
}

func newTestSplitter(caller Caller) *Splitter {
	// 段落长度兜底在专门的用例里单独验证
	return New(caller, prompt.NewRegistry(), config.PipelineConfig{
		MaxPages:        25,
		MinTargetPages:  3,
		MinSegmentChars: 1,
	})
}

const structureJSON = `[
	{"page_number": 1, "page_type": "title", "title": "年度报告", "key_points": ["2026年"]},
	{"page_number": 2, "page_type": "content", "title": "第一章", "original_text_segment": "第一章正文。"},
	{"page_number": 3, "page_type": "content", "title": "第二章", "original_text_segment": "第二章正文。"}
]`

func adjustJSON(pagesJSON string) string {
	return fmt.Sprintf(`{
		"analysis": {"total_pages": 0, "content_type": "report", "split_strategy": "logical"},
		"pages": %s
	}`, pagesJSON)
}

func TestSplitHappyPath(t *testing.T) {
	caller := &stubCaller{responses: []string{
		structureJSON,
		adjustJSON(`[
			{"page_number": 1, "page_type": "title", "title": "年度报告", "key_points": ["2026年"]},
			{"page_number": 2, "page_type": "content", "title": "第一章", "original_text_segment": "第一章正文。"},
			{"page_number": 3, "page_type": "content", "title": "第二章", "original_text_segment": "第二章正文。"}
		]`),
	}}
	s := newTestSplitter(caller)

	result, err := s.Split(context.Background(), "第一章正文。\n\n第二章正文。", 0)
	require.NoError(t, err)
	require.False(t, result.Fallback)
	assert.Equal(t, 2, caller.calls)

	pages := result.Pages
	require.Len(t, pages, 4)
	assert.Equal(t, entity.PageTypeTitle, pages[0].PageType)
	assert.Equal(t, entity.PageTypeEnding, pages[3].PageType)
	assert.Equal(t, "谢谢观看", pages[3].Title)
	for i, p := range pages {
		assert.Equal(t, i+1, p.PageNumber)
	}
	assert.Equal(t, len(pages), result.Analysis.TotalPages)
	assert.Equal(t, "report", result.Analysis.ContentType)
}

func TestSplitEmptyTextRejected(t *testing.T) {
	s := newTestSplitter(&stubCaller{})
	_, err := s.Split(context.Background(), "   \n ", 0)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidParam, errors.AsAppError(err).Code)
}

func TestSplitTargetPagesOutOfRange(t *testing.T) {
	s := newTestSplitter(&stubCaller{})

	for _, target := range []int{1, 2, 26, 100} {
		_, err := s.Split(context.Background(), "正文", target)
		require.Error(t, err, "target %d", target)
		assert.Equal(t, errors.CodePageCountInvalid, errors.AsAppError(err).Code)
	}
}

func TestSplitStructureFailureFallsBack(t *testing.T) {
	caller := &stubCaller{errs: []error{fmt.Errorf("network down")}}
	s := newTestSplitter(caller)

	result, err := s.Split(context.Background(), "标题行\n\n正文段落。", 0)
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, "fallback", result.Analysis.SplitStrategy)
	assert.Equal(t, 1, caller.calls)
}

func TestSplitAdjustParseFailureFallsBack(t *testing.T) {
	caller := &stubCaller{responses: []string{structureJSON, "这不是 JSON"}}
	s := newTestSplitter(caller)

	result, err := s.Split(context.Background(), "标题行\n\n正文段落。", 0)
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, 2, caller.calls)
}

func TestSplitDropsModelEndingPages(t *testing.T) {
	caller := &stubCaller{responses: []string{
		structureJSON,
		adjustJSON(`[
			{"page_number": 1, "page_type": "title", "title": "报告", "key_points": ["a"]},
			{"page_number": 2, "page_type": "content", "title": "内容", "original_text_segment": "正文。"},
			{"page_number": 3, "page_type": "ending", "title": "谢谢", "key_points": ["完"]}
		]`),
	}}
	s := newTestSplitter(caller)

	result, err := s.Split(context.Background(), "正文。", 0)
	require.NoError(t, err)

	// 模型生成的结束页被丢弃，结束页只有机械追加的那一张
	endings := 0
	for _, p := range result.Pages {
		if p.PageType == entity.PageTypeEnding {
			endings++
		}
	}
	assert.Equal(t, 1, endings)
	assert.Equal(t, entity.PageTypeEnding, result.Pages[len(result.Pages)-1].PageType)
}

func TestSplitCoercesTitlePage(t *testing.T) {
	caller := &stubCaller{responses: []string{
		structureJSON,
		adjustJSON(`[
			{"page_number": 1, "page_type": "content", "title": "先出现的内容", "original_text_segment": "正文一。"},
			{"page_number": 2, "page_type": "title", "title": "错位的标题页", "key_points": ["a"]}
		]`),
	}}
	s := newTestSplitter(caller)

	result, err := s.Split(context.Background(), "正文一。", 0)
	require.NoError(t, err)

	pages := result.Pages
	assert.Equal(t, entity.PageTypeTitle, pages[0].PageType)
	assert.True(t, pages[0].IsFixedTemplate)
	// 错位的标题页被降级为内容页
	assert.Equal(t, entity.PageTypeContent, pages[1].PageType)
}

func TestSplitMergesTailOverTarget(t *testing.T) {
	caller := &stubCaller{responses: []string{
		structureJSON,
		adjustJSON(`[
			{"page_number": 1, "page_type": "title", "title": "报告", "key_points": ["a"]},
			{"page_number": 2, "page_type": "content", "title": "一", "original_text_segment": "正文一。"},
			{"page_number": 3, "page_type": "content", "title": "二", "original_text_segment": "正文二。"},
			{"page_number": 4, "page_type": "content", "title": "三", "original_text_segment": "正文三。"},
			{"page_number": 5, "page_type": "content", "title": "四", "original_text_segment": "正文四。"},
			{"page_number": 6, "page_type": "content", "title": "五", "original_text_segment": "正文五。"}
		]`),
	}}
	s := newTestSplitter(caller)

	result, err := s.Split(context.Background(), "正文", 5)
	require.NoError(t, err)

	pages := result.Pages
	require.Len(t, pages, 5)
	assert.Equal(t, entity.PageTypeEnding, pages[4].PageType)

	// 被合并的尾部页面原文保留在最后一个内容页里
	last := pages[3]
	assert.Contains(t, last.OriginalTextSegment, "正文三。")
	assert.Contains(t, last.OriginalTextSegment, "正文四。")
	assert.Contains(t, last.OriginalTextSegment, "正文五。")
}

func TestSplitAdjustPromptCarriesReducedTarget(t *testing.T) {
	caller := &stubCaller{responses: []string{
		structureJSON,
		adjustJSON(`[
			{"page_number": 1, "page_type": "title", "title": "报告", "key_points": ["a"]},
			{"page_number": 2, "page_type": "content", "title": "一", "original_text_segment": "正文一。"},
			{"page_number": 3, "page_type": "content", "title": "二", "original_text_segment": "正文二。"},
			{"page_number": 4, "page_type": "content", "title": "三", "original_text_segment": "正文三。"}
		]`),
	}}
	s := newTestSplitter(caller)

	_, err := s.Split(context.Background(), "正文", 5)
	require.NoError(t, err)
	require.Len(t, caller.systems, 2)

	// 结束页由系统机械追加，提示词里的目标是 target-1
	assert.Contains(t, caller.systems[1], "目标页数为 4 页")
	assert.NotContains(t, caller.systems[1], "目标页数为 5 页")
}

func TestSplitAdjustPromptUnspecifiedTarget(t *testing.T) {
	caller := &stubCaller{responses: []string{structureJSON, adjustJSON(`[
		{"page_number": 1, "page_type": "title", "title": "报告", "key_points": ["a"]},
		{"page_number": 2, "page_type": "content", "title": "一", "original_text_segment": "正文一。"}
	]`)}}
	s := newTestSplitter(caller)

	_, err := s.Split(context.Background(), "正文", 0)
	require.NoError(t, err)
	require.Len(t, caller.systems, 2)
	assert.Contains(t, caller.systems[1], "目标页数为 未指定 页")
}

func TestSplitSplitsLongestUnderTarget(t *testing.T) {
	long := strings.Repeat("这是一句用于拆分的测试文本。", 40)
	caller := &stubCaller{responses: []string{
		structureJSON,
		adjustJSON(fmt.Sprintf(`[
			{"page_number": 1, "page_type": "title", "title": "报告", "key_points": ["a"]},
			{"page_number": 2, "page_type": "content", "title": "唯一章节", "original_text_segment": %q}
		]`, long)),
	}}
	s := newTestSplitter(caller)

	result, err := s.Split(context.Background(), long, 5)
	require.NoError(t, err)

	pages := result.Pages
	require.Len(t, pages, 5)
	assert.Equal(t, entity.PageTypeTitle, pages[0].PageType)
	assert.Equal(t, entity.PageTypeEnding, pages[4].PageType)

	// 拆分不丢内容
	var sb strings.Builder
	for _, p := range pages {
		sb.WriteString(p.OriginalTextSegment)
	}
	assert.Equal(t, normalizeWhitespace(long), normalizeWhitespace(sb.String()))
	assert.Contains(t, pages[2].Title, "（续）")
}

func TestSplitMergesUnderLengthPages(t *testing.T) {
	long := strings.Repeat("足够长的正文内容。", 50)
	caller := &stubCaller{responses: []string{
		structureJSON,
		adjustJSON(fmt.Sprintf(`[
			{"page_number": 1, "page_type": "title", "title": "报告", "key_points": ["a"]},
			{"page_number": 2, "page_type": "content", "title": "长章节", "original_text_segment": %q},
			{"page_number": 3, "page_type": "content", "title": "短章节", "original_text_segment": "太短了。", "key_points": ["短"]}
		]`, long)),
	}}
	s := New(caller, prompt.NewRegistry(), config.PipelineConfig{
		MaxPages:        25,
		MinTargetPages:  3,
		MinSegmentChars: 300,
	})

	result, err := s.Split(context.Background(), "正文", 0)
	require.NoError(t, err)

	// 不足最短长度的内容页并入前一页
	pages := result.Pages
	require.Len(t, pages, 3)
	assert.Contains(t, pages[1].OriginalTextSegment, "太短了。")
	assert.Contains(t, pages[1].KeyPoints, "短")
}
