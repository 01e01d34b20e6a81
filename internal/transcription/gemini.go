package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yurib/scribeline/pkg/logger"
)

// DefaultGeminiBase is the upstream Gemini REST endpoint
var DefaultGeminiBase = "https://generativelanguage.googleapis.com"

// GeminiProvider transcribes chunks through the Gemini generateContent REST
// API. The audio rides inline as base64; the transcript is expected at
// candidates[0].content.parts[0].text and any other shape is an empty-result
// failure.
type GeminiProvider struct {
	model      string
	baseURL    string
	prompt     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewGeminiProvider creates a new Gemini transcription provider
func NewGeminiProvider(model string, timeoutSeconds int, log *logger.Logger, baseURL string) *GeminiProvider {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultGeminiBase
	}

	return &GeminiProvider{
		model:   model,
		baseURL: base,
		prompt:  "Transcribe this audio verbatim. Return only the spoken text.",
		logger:  log.Named("gemini"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the provider identifier
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Transcribe sends one chunk and extracts the transcript text
func (p *GeminiProvider) Transcribe(ctx context.Context, req Request) (string, error) {
	type inlineData struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	}
	type part struct {
		InlineData *inlineData `json:"inline_data,omitempty"`
		Text       string      `json:"text,omitempty"`
	}
	type content struct {
		Parts []part `json:"parts"`
	}
	type generateRequest struct {
		Contents []content `json:"contents"`
	}

	body := generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{
					MIMEType: req.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(req.Audio),
				}},
				{Text: p.prompt},
			},
		}},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	apiURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, p.model)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.Credential)

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
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResult
	}

	text := strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", ErrEmptyResult
	}

	return text, nil
}
