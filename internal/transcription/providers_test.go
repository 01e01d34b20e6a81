package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yurib/scribeline/pkg/logger"
)

func TestGeminiTranscribe(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" hello "}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("gemini-2.0-flash", 5, logger.NewNop(), srv.URL)

	text, err := p.Transcribe(context.Background(), Request{
		Audio:      []byte("wav-bytes"),
		MIMEType:   "audio/wav",
		Credential: "test-key",
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "hello" {
		t.Errorf("Transcribe() = %q, want %q", text, "hello")
	}
	if gotPath != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q, want test-key", gotKey)
	}
	if _, ok := gotBody["contents"]; !ok {
		t.Error("request body missing contents field")
	}
}

func TestGeminiTranscribeFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int  // non-zero expects *RequestError with this code
		wantEmpty  bool // expects ErrEmptyResult
	}{
		{
			name:       "server error surfaces status and body",
			status:     http.StatusTooManyRequests,
			body:       `{"error":"quota"}`,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:      "no candidates",
			status:    http.StatusOK,
			body:      `{"candidates":[]}`,
			wantEmpty: true,
		},
		{
			name:      "empty transcript text",
			status:    http.StatusOK,
			body:      `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`,
			wantEmpty: true,
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{"candidates": [`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewGeminiProvider("gemini-2.0-flash", 5, logger.NewNop(), srv.URL)
			_, err := p.Transcribe(context.Background(), Request{Audio: []byte("x"), Credential: "k"})
			if err == nil {
				t.Fatal("Transcribe() expected error, got nil")
			}

			if tt.wantStatus != 0 {
				var reqErr *RequestError
				if !errors.As(err, &reqErr) {
					t.Fatalf("error is %T, want *RequestError", err)
				}
				if reqErr.StatusCode != tt.wantStatus {
					t.Errorf("status = %d, want %d", reqErr.StatusCode, tt.wantStatus)
				}
				if !strings.Contains(reqErr.Detail, tt.body) {
					t.Errorf("detail %q does not preserve body %q", reqErr.Detail, tt.body)
				}
			}
			if tt.wantEmpty && !errors.Is(err, ErrEmptyResult) {
				t.Errorf("error = %v, want ErrEmptyResult", err)
			}
		})
	}
}

func TestOpenAITranscribe(t *testing.T) {
	var gotAuth, gotModel, gotFile string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		gotModel = r.FormValue("model")
		if _, header, err := r.FormFile("file"); err == nil {
			gotFile = header.Filename
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"transcribed speech"}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("whisper-1", 5, logger.NewNop(), srv.URL)

	text, err := p.Transcribe(context.Background(), Request{
		Audio:      []byte("wav-bytes"),
		MIMEType:   "audio/wav",
		Credential: "sk-test",
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "transcribed speech" {
		t.Errorf("Transcribe() = %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model field = %q, want whisper-1", gotModel)
	}
	if gotFile != "chunk.wav" {
		t.Errorf("upload filename = %q, want chunk.wav", gotFile)
	}
}

func TestDispatchFallsBackToSecondEndpoint(t *testing.T) {
	// First backend answers with garbage, second with a well-formed
	// transcript; the dispatcher must fall through and return it.
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": [`))
	}))
	defer broken.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`))
	}))
	defer healthy.Close()

	first := NewGeminiProvider("gemini-2.0-flash", 5, logger.NewNop(), broken.URL)
	second := NewGeminiProvider("gemini-2.0-flash", 5, logger.NewNop(), healthy.URL)
	d, _ := newTestDispatcher([]Provider{first, second})

	text, err := d.Dispatch(context.Background(), Request{Audio: []byte("wav"), MIMEType: "audio/wav", Credential: "k"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if text != "hello" {
		t.Errorf("Dispatch() = %q, want hello", text)
	}
}

func TestOpenAITranscribeEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":""}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("whisper-1", 5, logger.NewNop(), srv.URL)
	_, err := p.Transcribe(context.Background(), Request{Audio: []byte("x"), Credential: "k"})
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("error = %v, want ErrEmptyResult", err)
	}
}
