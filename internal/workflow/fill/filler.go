package fill

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/pkg/errors"
	"ppt-gen-api/pkg/logger"
)

var tracer = otel.Tracer("fill")

// FillOutcome 单个分配项的填充结果
type FillOutcome struct {
	Assignment entity.Assignment
	Filled     bool
	Err        error
}

// Filler 占位符填充器。每个 (幻灯片, 占位符) 至多填充一次，
// 只替换首次出现，后续同名出现留给清理阶段处理。
type Filler struct{}

// NewFiller 创建填充器
func NewFiller() *Filler {
	return &Filler{}
}

// Fill 按分配列表填充文档。重复填充与占位符缺失都不会中断，
// 逐项记录在返回的结果里。返回的 FilledPlaceholderSet 只记录实际
// 写入成功的 (幻灯片, 占位符)，供清理阶段保护已填充的内容。
func (f *Filler) Fill(ctx context.Context, doc Document, assignments []entity.Assignment) ([]FillOutcome, *FilledPlaceholderSet) {
	ctx, span := tracer.Start(ctx, "fill.Fill")
	span.SetAttributes(attribute.Int("fill.assignments", len(assignments)))
	defer span.End()

	session := NewFilledPlaceholderSet()
	slides := doc.Slides()
	outcomes := make([]FillOutcome, 0, len(assignments))

	for _, a := range assignments {
		outcome := FillOutcome{Assignment: a}

		if a.SlideIndex < 0 || a.SlideIndex >= len(slides) {
			outcome.Err = errors.ErrInvalidParam.WithDetail(
				"slide index out of range: " + strconv.Itoa(a.SlideIndex))
			logger.Warn(ctx, "assignment slide index out of range",
				"slide_index", a.SlideIndex, "placeholder", a.PlaceholderName)
			outcomes = append(outcomes, outcome)
			continue
		}

		if session.Contains(a.SlideIndex, a.PlaceholderName) {
			outcome.Err = errors.ErrPlaceholderAlreadyFilled.WithDetail(a.PlaceholderName)
			logger.Warn(ctx, "placeholder already filled, skipping",
				"slide_index", a.SlideIndex, "placeholder", a.PlaceholderName)
			outcomes = append(outcomes, outcome)
			continue
		}

		// 只有真正写入后才标记，失败的尝试不占用填充名额
		if fillFirstOccurrence(slides[a.SlideIndex], a.PlaceholderName, a.Content) {
			outcome.Filled = true
			session.Mark(a.SlideIndex, a.PlaceholderName)
		} else {
			outcome.Err = errors.New(errors.CodeValidationFailed,
				"placeholder not found on slide: "+a.PlaceholderName)
			logger.Warn(ctx, "placeholder not found on slide",
				"slide_index", a.SlideIndex, "placeholder", a.PlaceholderName)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, session
}

// fillFirstOccurrence 在幻灯片内按文本框顺序找到占位符的首次出现并替换
func fillFirstOccurrence(slide Slide, name, content string) bool {
	token := "{" + name + "}"
	for _, frame := range slide.Frames() {
		text := frame.Text()
		if !strings.Contains(text, token) {
			continue
		}
		frame.SetText(strings.Replace(text, token, content, 1))
		return true
	}
	return false
}
