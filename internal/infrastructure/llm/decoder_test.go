package llm

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ppt-gen-api/internal/config"
)

func responseWithBody(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNewDecoderByKind(t *testing.T) {
	d, err := NewDecoder(config.ProviderConfig{Kind: config.ProviderKindChat})
	require.NoError(t, err)
	assert.IsType(t, &chatDecoder{}, d)

	d, err = NewDecoder(config.ProviderConfig{Kind: config.ProviderKindWorkflow})
	require.NoError(t, err)
	assert.IsType(t, &workflowDecoder{}, d)

	_, err = NewDecoder(config.ProviderConfig{Kind: "grpc"})
	assert.Error(t, err)
}

func TestChatBuildRequest(t *testing.T) {
	d := &chatDecoder{cfg: config.ProviderConfig{
		Kind:    config.ProviderKindChat,
		BaseURL: "https://api.example.com/v1/",
		Model:   "test-model",
	}}

	req, err := d.BuildRequest(context.Background(), "sk-test", "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/chat/completions", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"model":"test-model"`)
	assert.Contains(t, string(body), "system prompt")
	assert.Contains(t, string(body), "user prompt")
}

func TestChatDecodeNonStream(t *testing.T) {
	d := &chatDecoder{cfg: config.ProviderConfig{Kind: config.ProviderKindChat}}

	content, err := d.DecodeResponse(responseWithBody(
		`{"choices":[{"message":{"content":"hello world"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "hello world", content)
}

func TestChatDecodeNonStreamMalformed(t *testing.T) {
	d := &chatDecoder{cfg: config.ProviderConfig{Kind: config.ProviderKindChat}}

	_, err := d.DecodeResponse(responseWithBody(`not json at all`))
	require.Error(t, err)
	ce, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, FailureParse, ce.Kind)

	_, err = d.DecodeResponse(responseWithBody(`{"choices":[]}`))
	require.Error(t, err)
}

func TestChatDecodeStream(t *testing.T) {
	d := &chatDecoder{cfg: config.ProviderConfig{Kind: config.ProviderKindChat, Stream: true}}

	body := strings.Join([]string{
		`: keep-alive`,
		``,
		`data: {"choices":[{"delta":{"content":"分页"}}]}`,
		`data: {"choices":[{"delta":{"content":"结果"}}]}`,
		``,
		`data: [DONE]`,
	}, "\n")

	content, err := d.DecodeResponse(responseWithBody(body))
	require.NoError(t, err)
	assert.Equal(t, "分页结果", content)
}

func TestWorkflowBuildRequestMergesSystemIntoQuery(t *testing.T) {
	d := &workflowDecoder{cfg: config.ProviderConfig{
		Kind:    config.ProviderKindWorkflow,
		BaseURL: "https://api.dify.example/v1",
	}}

	req, err := d.BuildRequest(context.Background(), "app-key", "指令", "正文")
	require.NoError(t, err)
	assert.Equal(t, "https://api.dify.example/v1/chat-messages", req.URL.String())

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "指令\\n\\n正文")
	assert.Contains(t, string(body), `"response_mode":"streaming"`)
}

func TestWorkflowDecodeStream(t *testing.T) {
	d := &workflowDecoder{cfg: config.ProviderConfig{Kind: config.ProviderKindWorkflow}}

	body := strings.Join([]string{
		`data: {"event":"message","answer":"第一"}`,
		`data: {"event":"message","answer":"段"}`,
		`data: {"event":"node_finished","data":{"answer":"尾部"}}`,
		`data: {"event":"message_end"}`,
	}, "\n")

	content, err := d.DecodeResponse(responseWithBody(body))
	require.NoError(t, err)
	assert.Equal(t, "第一段尾部", content)
}

func TestWorkflowDecodeMalformedEvent(t *testing.T) {
	d := &workflowDecoder{cfg: config.ProviderConfig{Kind: config.ProviderKindWorkflow}}

	_, err := d.DecodeResponse(responseWithBody("data: {broken"))
	require.Error(t, err)
	ce, ok := AsCallError(err)
	require.True(t, ok)
	assert.Equal(t, FailureParse, ce.Kind)
}

func TestSSEData(t *testing.T) {
	cases := []struct {
		line    string
		payload string
		ok      bool
	}{
		{"", "", false},
		{": ping", "", false},
		{"event: message", "", false},
		{"data:", "", false},
		{"data: [DONE]", "", false},
		{"data: {\"a\":1}", "{\"a\":1}", true},
		{"data:{\"a\":1}", "{\"a\":1}", true},
	}
	for _, c := range cases {
		payload, ok := sseData(c.line)
		assert.Equal(t, c.ok, ok, c.line)
		assert.Equal(t, c.payload, payload, c.line)
	}
}
