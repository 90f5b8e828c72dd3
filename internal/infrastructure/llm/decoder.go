package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ppt-gen-api/internal/config"
)

// Decoder 按提供商协议构造请求并从响应中提取完整回答。
// 变体在配置阶段选定一次，调用点不再做响应形状嗅探。
type Decoder interface {
	// BuildRequest 构造一次 HTTP 调用
	BuildRequest(ctx context.Context, key, system, user string) (*http.Request, error)
	// DecodeResponse 消费响应体，拼接出完整回答文本
	DecodeResponse(resp *http.Response) (string, error)
}

// NewDecoder 根据提供商协议类型选择解码器
func NewDecoder(cfg config.ProviderConfig) (Decoder, error) {
	switch cfg.Kind {
	case config.ProviderKindChat:
		return &chatDecoder{cfg: cfg}, nil
	case config.ProviderKindWorkflow:
		return &workflowDecoder{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Kind)
	}
}

// chatDecoder OpenAI 兼容 chat/completions 协议
type chatDecoder struct {
	cfg config.ProviderConfig
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (d *chatDecoder) BuildRequest(ctx context.Context, key, system, user string) (*http.Request, error) {
	body := chatRequest{
		Model:       d.cfg.Model,
		Temperature: d.cfg.Temperature,
		Stream:      d.cfg.Stream,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := strings.TrimRight(d.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	return req, nil
}

func (d *chatDecoder) DecodeResponse(resp *http.Response) (string, error) {
	if !d.cfg.Stream {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", newCallError(FailureConnection, err)
		}
		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return "", newCallError(FailureParse, fmt.Errorf("malformed chat response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return "", newCallError(FailureParse, fmt.Errorf("chat response has no choices"))
		}
		return parsed.Choices[0].Message.Content, nil
	}

	// 流式：拼接每个 chunk 的 delta.content 直至流结束
	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := sseData(line)
		if !ok {
			continue
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", newCallError(FailureParse, fmt.Errorf("malformed stream chunk: %w", err))
		}
		if len(chunk.Choices) > 0 {
			sb.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", classifyTransportError(err)
	}
	return sb.String(), nil
}

// workflowDecoder Dify 风格 workflow 会话协议（SSE 流式）
type workflowDecoder struct {
	cfg config.ProviderConfig
}

type workflowRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
}

type workflowEvent struct {
	Answer string `json:"answer"`
	Data   struct {
		Answer string `json:"answer"`
	} `json:"data"`
}

func (d *workflowDecoder) BuildRequest(ctx context.Context, key, system, user string) (*http.Request, error) {
	// workflow 端点只有单一 query 字段，系统指令并入正文
	query := user
	if system != "" {
		query = system + "\n\n" + user
	}
	body := workflowRequest{
		Inputs:         map[string]any{},
		Query:          query,
		ResponseMode:   "streaming",
		ConversationID: "",
		User:           "ppt-gen-api",
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow request: %w", err)
	}

	url := strings.TrimRight(d.cfg.BaseURL, "/") + "/chat-messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	return req, nil
}

func (d *workflowDecoder) DecodeResponse(resp *http.Response) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := sseData(line)
		if !ok {
			continue
		}
		var event workflowEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return "", newCallError(FailureParse, fmt.Errorf("malformed workflow event: %w", err))
		}
		if event.Answer != "" {
			sb.WriteString(event.Answer)
		} else if event.Data.Answer != "" {
			sb.WriteString(event.Data.Answer)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", classifyTransportError(err)
	}
	return sb.String(), nil
}

// sseData 提取 SSE 数据行的有效载荷。
// 空行、keep-alive 注释与 [DONE] 哨兵均被忽略。
func sseData(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" || payload == "[DONE]" {
		return "", false
	}
	return payload, true
}
