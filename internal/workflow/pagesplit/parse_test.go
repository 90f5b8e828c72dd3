package pagesplit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppt-gen-api/internal/domain/entity"
)

func TestParsePagesFromFencedJSON(t *testing.T) {
	content := "```json\n" +
		`[{"page_number": 1, "page_type": "title", "title": "标题", "key_points": ["要点"]}]` +
		"\n```"

	pages, err := parsePages(content)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "title", pages[0].PageType)
	assert.Equal(t, "标题", pages[0].Title)
}

func TestParsePagesRejectsNonArray(t *testing.T) {
	_, err := parsePages("抱歉，我无法处理这段文本。")
	assert.Error(t, err)
}

func TestParseResultObject(t *testing.T) {
	content := `{
		"analysis": {"total_pages": 2, "content_type": "report", "split_strategy": "logical"},
		"pages": [
			{"page_number": 1, "page_type": "title", "title": "标题", "key_points": ["a"]},
			{"page_number": 2, "page_type": "content", "title": "内容", "original_text_segment": "正文"}
		]
	}`

	result, err := parseResult(content)
	require.NoError(t, err)
	require.NotNil(t, result.Analysis)
	assert.Equal(t, "report", result.Analysis.ContentType)
	assert.Len(t, result.Pages, 2)
}

func TestParseResultBareArrayNormalized(t *testing.T) {
	content := `[{"page_number": 1, "page_type": "content", "title": "内容", "original_text_segment": "正文"}]`

	result, err := parseResult(content)
	require.NoError(t, err)
	require.NotNil(t, result.Analysis)
	assert.Equal(t, 1, result.Analysis.TotalPages)
	assert.Equal(t, "logical", result.Analysis.SplitStrategy)
}

func TestValidatePages(t *testing.T) {
	valid := rawPage{
		PageNumber:          "1",
		PageType:            "content",
		Title:               "内容",
		OriginalTextSegment: "正文",
	}

	assert.NoError(t, validatePages([]rawPage{valid}))
	assert.Error(t, validatePages(nil))

	missingNumber := valid
	missingNumber.PageNumber = ""
	assert.Error(t, validatePages([]rawPage{missingNumber}))

	badType := valid
	badType.PageType = "cover"
	assert.Error(t, validatePages([]rawPage{badType}))

	missingTitle := valid
	missingTitle.Title = "  "
	assert.Error(t, validatePages([]rawPage{missingTitle}))

	empty := valid
	empty.OriginalTextSegment = ""
	empty.KeyPoints = nil
	assert.Error(t, validatePages([]rawPage{empty}))

	// 没有原文片段但有要点仍然合法（标题页等）
	keyPointsOnly := valid
	keyPointsOnly.OriginalTextSegment = ""
	keyPointsOnly.KeyPoints = []string{"要点"}
	assert.NoError(t, validatePages([]rawPage{keyPointsOnly}))
}

func TestToEntityPagesRenumbersAndFlagsFixed(t *testing.T) {
	pages := toEntityPages([]rawPage{
		{PageNumber: "7", PageType: "title", Title: "标题", KeyPoints: []string{"a"}},
		{PageNumber: "3", PageType: "content", Title: "内容", OriginalTextSegment: "正文"},
	})

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, 2, pages[1].PageNumber)
	assert.True(t, pages[0].IsFixedTemplate)
	assert.False(t, pages[1].IsFixedTemplate)
}

func TestCoversInput(t *testing.T) {
	input := "第一段内容。\n\n第二段内容。"
	pages := []entity.Page{
		{PageType: entity.PageTypeTitle},
		{PageType: entity.PageTypeContent, OriginalTextSegment: "第一段内容。"},
		{PageType: entity.PageTypeContent, OriginalTextSegment: "第二段内容。"},
		{PageType: entity.PageTypeEnding},
	}
	assert.True(t, CoversInput(pages, input))

	pages[2].OriginalTextSegment = "第二段。"
	assert.False(t, CoversInput(pages, input))
}
