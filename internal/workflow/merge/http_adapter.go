package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ppt-gen-api/internal/domain/entity"
	"ppt-gen-api/pkg/errors"
	"ppt-gen-api/pkg/logger"
)

var tracer = otel.Tracer("merge")

const (
	defaultTimeout = 120 * time.Second
	// reportHeader 合并服务返回的逐页状态
	reportHeader = "X-Merge-Report"
)

// HTTPMerger 调用外部合并服务的适配器。按页序以 multipart 上传
// 各页文件，响应体为合并后的文档字节。
type HTTPMerger struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPMerger 创建适配器
func NewHTTPMerger(endpoint string, timeout time.Duration) *HTTPMerger {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPMerger{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Merge 合并逐页文件。服务返回的状态报告缺失时视为全部成功。
func (m *HTTPMerger) Merge(ctx context.Context, orderedPaths []string) ([]byte, []entity.PageStatus, error) {
	ctx, span := tracer.Start(ctx, "merge.Merge")
	span.SetAttributes(attribute.Int("merge.page_count", len(orderedPaths)))
	defer span.End()

	if len(orderedPaths) == 0 {
		return nil, nil, errors.New(errors.CodeMergeFailed, "no pages to merge")
	}

	body, contentType, err := buildMultipart(orderedPaths)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, body)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeMergeFailed, "failed to build merge request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeMergeFailed, "merge service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, errors.New(errors.CodeMergeFailed,
			fmt.Sprintf("merge service returned status %d: %s", resp.StatusCode, string(snippet)))
	}

	deck, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeMergeFailed, "failed to read merged document")
	}
	if len(deck) == 0 {
		return nil, nil, errors.New(errors.CodeMergeFailed, "merge service returned empty document")
	}

	statuses := parseReport(ctx, resp.Header.Get(reportHeader), len(orderedPaths))
	return deck, statuses, nil
}

// buildMultipart 按页序组装 multipart 请求体
func buildMultipart(orderedPaths []string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for i, path := range orderedPaths {
		part, err := writer.CreateFormFile("file", fmt.Sprintf("page_%d.pptx", i+1))
		if err != nil {
			return nil, "", errors.Wrap(err, errors.CodeMergeFailed, "failed to build merge request")
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, "", errors.Wrap(err, errors.CodeMergeFailed, "failed to open page file")
		}
		_, copyErr := io.Copy(part, f)
		_ = f.Close()
		if copyErr != nil {
			return nil, "", errors.Wrap(copyErr, errors.CodeMergeFailed, "failed to read page file")
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", errors.Wrap(err, errors.CodeMergeFailed, "failed to build merge request")
	}
	return &buf, writer.FormDataContentType(), nil
}

// parseReport 解析逐页状态报告，缺失或损坏时视为全部成功
func parseReport(ctx context.Context, header string, pageCount int) []entity.PageStatus {
	if header != "" {
		var statuses []entity.PageStatus
		if err := json.Unmarshal([]byte(header), &statuses); err == nil && len(statuses) > 0 {
			return statuses
		}
		logger.Warn(ctx, "merge report header is malformed, assuming success")
	}
	statuses := make([]entity.PageStatus, pageCount)
	for i := range statuses {
		statuses[i] = entity.PageStatus{PageNumber: i + 1, Success: true}
	}
	return statuses
}
