package fill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPlaceholdersOrder(t *testing.T) {
	doc := NewMemDocument(
		[]string{"{title}", "{point_1} {point_2}"},
		[]string{"无占位符"},
		[]string{"{content}"},
	)

	placeholders := ScanPlaceholders(doc)

	require.Len(t, placeholders, 4)
	assert.Equal(t, Placeholder{SlideIndex: 0, FrameIndex: 0, Name: "title"}, placeholders[0])
	assert.Equal(t, Placeholder{SlideIndex: 0, FrameIndex: 1, Name: "point_1"}, placeholders[1])
	assert.Equal(t, Placeholder{SlideIndex: 0, FrameIndex: 1, Name: "point_2"}, placeholders[2])
	assert.Equal(t, Placeholder{SlideIndex: 2, FrameIndex: 0, Name: "content"}, placeholders[3])
}

func TestScanPlaceholdersRepeatedName(t *testing.T) {
	doc := NewMemDocument([]string{"{title} 再次 {title}"})

	placeholders := ScanPlaceholders(doc)
	// 同名多次出现逐次列出
	require.Len(t, placeholders, 2)
	assert.Equal(t, placeholders[0].Name, placeholders[1].Name)
}

func TestPlaceholderToken(t *testing.T) {
	p := Placeholder{Name: "title"}
	assert.Equal(t, "{title}", p.Token())
}

func TestPlaceholderPatternRejectsNested(t *testing.T) {
	// 名字里不允许花括号
	matches := placeholderPattern.FindAllStringSubmatch("{a{b}c}", -1)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0][1])
}
