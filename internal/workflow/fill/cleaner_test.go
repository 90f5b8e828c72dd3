package fill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppt-gen-api/internal/domain/entity"
)

func TestCleanRemovesUnfilledPlaceholders(t *testing.T) {
	doc := NewMemDocument(
		[]string{"标题：{title}", "{point_1} 和 {point_2}"},
		[]string{"{title}"},
	)
	c := NewCleaner()

	removed := c.Clean(context.Background(), doc, nil)

	// 按不同占位符名计数，跨页同名只算一次
	assert.Equal(t, 3, removed)

	texts := doc.Texts()
	assert.Equal(t, "标题：", texts[0][0])
	assert.Equal(t, " 和", texts[0][1])
	assert.Equal(t, "", texts[1][0])
}

func TestCleanKeepsFilledTokens(t *testing.T) {
	// 填充内容里合法出现的花括号文本不能被清理
	doc := NewMemDocument([]string{"{title}", "{subtitle}"})
	f := NewFiller()
	c := NewCleaner()

	_, filled := f.Fill(context.Background(), doc, []entity.Assignment{
		{SlideIndex: 0, PlaceholderName: "title", Content: "已填充内容含 {title} 字面量"},
	})

	removed := c.Clean(context.Background(), doc, filled)

	// 只有未填充的 subtitle 被清掉
	assert.Equal(t, 1, removed)
	texts := doc.Texts()
	assert.Equal(t, "已填充内容含 {title} 字面量", texts[0][0])
	assert.Equal(t, "", texts[0][1])
}

func TestCleanFilledTokensAcrossSlides(t *testing.T) {
	// 保护按 (幻灯片, 占位符) 维度，别的幻灯片上同名残留照常清理
	doc := NewMemDocument([]string{"{title}"}, []string{"{title}"})
	f := NewFiller()
	c := NewCleaner()

	_, filled := f.Fill(context.Background(), doc, []entity.Assignment{
		{SlideIndex: 0, PlaceholderName: "title", Content: "首页 {title}"},
	})

	removed := c.Clean(context.Background(), doc, filled)

	assert.Equal(t, 1, removed)
	assert.Equal(t, "首页 {title}", doc.Texts()[0][0])
	assert.Equal(t, "", doc.Texts()[1][0])
}

func TestCleanIdempotent(t *testing.T) {
	doc := NewMemDocument([]string{"{title} 残留", "干净的文本"})
	c := NewCleaner()

	first := c.Clean(context.Background(), doc, nil)
	assert.Equal(t, 1, first)
	after := doc.Texts()

	second := c.Clean(context.Background(), doc, nil)
	assert.Equal(t, 0, second)
	assert.Equal(t, after, doc.Texts())
}

func TestCleanNoPlaceholders(t *testing.T) {
	doc := NewMemDocument([]string{"纯文本", "另一段  双空格保留"})
	c := NewCleaner()

	removed := c.Clean(context.Background(), doc, nil)
	assert.Equal(t, 0, removed)
	// 不含占位符的文本框不被改写
	assert.Equal(t, "另一段  双空格保留", doc.Texts()[0][1])
}

func TestCleanNormalizesWhitespace(t *testing.T) {
	doc := NewMemDocument([]string{"左边 {gone} 右边", "行尾 {gone}", "{a}\n下一行 {b} 结束"})
	c := NewCleaner()

	c.Clean(context.Background(), doc, nil)

	texts := doc.Texts()
	assert.Equal(t, "左边 右边", texts[0][0])
	assert.Equal(t, "行尾", texts[0][1])
	assert.Equal(t, "\n下一行 结束", texts[0][2])
}

func TestNormalizeAfterRemoval(t *testing.T) {
	require.Equal(t, "a b", normalizeAfterRemoval("a   b"))
	require.Equal(t, "a\nb", normalizeAfterRemoval("a  \nb"))
	require.Equal(t, "", normalizeAfterRemoval("   "))
}
