package transcription

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yurib/scribeline/internal/metrics"
	"github.com/yurib/scribeline/pkg/logger"
)

// fakeProvider fails with errs[i] on the i-th call and succeeds with text
// once the scripted errors run out
type fakeProvider struct {
	name  string
	errs  []error
	text  string
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Transcribe(ctx context.Context, req Request) (string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	return p.text, nil
}

func newTestDispatcher(providers []Provider) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(providers, DispatcherConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
	}, metrics.New(prometheus.NewRegistry()), logger.NewNop())

	sleeps := &[]time.Duration{}
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		*sleeps = append(*sleeps, dur)
		return nil
	}
	return d, sleeps
}

func TestDispatchFirstProviderWins(t *testing.T) {
	first := &fakeProvider{name: "gemini", text: "hello"}
	second := &fakeProvider{name: "openai", text: "unused"}
	d, sleeps := newTestDispatcher([]Provider{first, second})

	text, err := d.Dispatch(context.Background(), Request{Audio: []byte("x")})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if text != "hello" {
		t.Errorf("Dispatch() = %q, want %q", text, "hello")
	}
	if first.calls != 1 {
		t.Errorf("first provider called %d times, want 1", first.calls)
	}
	if second.calls != 0 {
		t.Errorf("second provider called %d times, want 0", second.calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("unexpected backoff sleeps: %v", *sleeps)
	}
}

func TestDispatchRetriesWithDoublingBackoff(t *testing.T) {
	boom := errors.New("boom")
	p := &fakeProvider{name: "gemini", errs: []error{boom, boom}, text: "eventually"}
	d, sleeps := newTestDispatcher([]Provider{p})

	text, err := d.Dispatch(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if text != "eventually" {
		t.Errorf("Dispatch() = %q, want %q", text, "eventually")
	}
	if p.calls != 3 {
		t.Errorf("provider called %d times, want 3", p.calls)
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("recorded sleeps %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestDispatchFallsThroughProviderChain(t *testing.T) {
	boom := errors.New("boom")
	first := &fakeProvider{name: "gemini", errs: []error{boom, boom, boom}}
	second := &fakeProvider{name: "openai", text: "rescued"}
	d, sleeps := newTestDispatcher([]Provider{first, second})

	text, err := d.Dispatch(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if text != "rescued" {
		t.Errorf("Dispatch() = %q, want %q", text, "rescued")
	}
	if first.calls != 3 {
		t.Errorf("first provider called %d times, want 3", first.calls)
	}
	if second.calls != 1 {
		t.Errorf("second provider called %d times, want 1", second.calls)
	}

	// Backoff restarts at the initial delay for each provider; the second
	// provider succeeded on its first attempt so only the first slept
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("recorded sleeps %v, want %v", *sleeps, want)
	}
}

func TestDispatchStructuralFailureConsumesRetries(t *testing.T) {
	// Empty results are retried exactly like transport failures
	p := &fakeProvider{name: "gemini", errs: []error{ErrEmptyResult, ErrEmptyResult, ErrEmptyResult}}
	rescue := &fakeProvider{name: "openai", text: "ok"}
	d, _ := newTestDispatcher([]Provider{p, rescue})

	text, err := d.Dispatch(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if text != "ok" {
		t.Errorf("Dispatch() = %q, want %q", text, "ok")
	}
	if p.calls != 3 {
		t.Errorf("provider called %d times, want 3", p.calls)
	}
}

func TestDispatchExhaustionAggregatesFailures(t *testing.T) {
	errA := errors.New("quota exceeded")
	errB := &RequestError{StatusCode: 500, Detail: "internal"}
	first := &fakeProvider{name: "gemini", errs: []error{errA, errA, errA}}
	second := &fakeProvider{name: "openai", errs: []error{errB, errB, errB}}
	d, _ := newTestDispatcher([]Provider{first, second})

	_, err := d.Dispatch(context.Background(), Request{})
	if err == nil {
		t.Fatal("Dispatch() expected error, got nil")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error is %T, want *ExhaustedError", err)
	}
	if len(exhausted.Attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(exhausted.Attempts))
	}
	if exhausted.Attempts[0].Provider != "gemini" || exhausted.Attempts[1].Provider != "openai" {
		t.Errorf("attempts out of provider order: %+v", exhausted.Attempts)
	}
	if !errors.Is(exhausted.Attempts[0].Err, errA) {
		t.Errorf("first attempt error = %v, want %v", exhausted.Attempts[0].Err, errA)
	}

	msg := err.Error()
	if !strings.Contains(msg, "all transcription providers failed") {
		t.Errorf("error message missing prefix: %q", msg)
	}
	if !strings.Contains(msg, "gemini: quota exceeded") {
		t.Errorf("error message missing first provider failure: %q", msg)
	}
	if !strings.Contains(msg, "openai:") {
		t.Errorf("error message missing second provider failure: %q", msg)
	}
}

func TestDispatchHonorsContextCancellation(t *testing.T) {
	boom := errors.New("boom")
	p := &fakeProvider{name: "gemini", errs: []error{boom, boom, boom}}
	d, _ := newTestDispatcher([]Provider{p})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want context.Canceled", err)
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times after cancel, want 1", p.calls)
	}
}
