package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/yurib/scribeline/pkg/logger"
)

// DefaultOpenAIBase is the upstream OpenAI API endpoint
var DefaultOpenAIBase = "https://api.openai.com"

// OpenAIProvider transcribes chunks through the OpenAI audio transcription
// endpoint. The audio is uploaded as a multipart file; the transcript is
// expected in the response's text field.
type OpenAIProvider struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewOpenAIProvider creates a new OpenAI transcription provider. An empty
// baseURL falls back to the upstream default (override it for proxies).
func NewOpenAIProvider(model string, timeoutSeconds int, log *logger.Logger, baseURL string) *OpenAIProvider {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultOpenAIBase
	}

	return &OpenAIProvider{
		model:   model,
		baseURL: base,
		logger:  log.Named("openai"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the provider identifier
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Transcribe sends one chunk and extracts the transcript text
func (p *OpenAIProvider) Transcribe(ctx context.Context, req Request) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filePart, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := filePart.Write(req.Audio); err != nil {
		return "", fmt.Errorf("failed to write audio payload: %w", err)
	}

	if err := writer.WriteField("model", p.model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	apiURL := p.baseURL + "/v1/audio/transcriptions"

	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", req.Credential))

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RequestError{StatusCode: resp.StatusCode, Detail: string(bodyBytes)}
	}

	var result struct {
		Text string `json:"text"`
	}

	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", ErrEmptyResult
	}

	return text, nil
}
