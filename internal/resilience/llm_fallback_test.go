package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/llm"
	llmmock "github.com/MrWong99/intervox/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "hello from primary"},
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "hello from secondary"},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from primary" {
		t.Fatalf("content = %q, want 'hello from primary'", resp.Content)
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.CallCount())
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "hello from secondary"},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from secondary" {
		t.Fatalf("content = %q, want 'hello from secondary'", resp.Content)
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errors.New("a")}, "a", FallbackConfig{})
	fb.AddFallback("b", &llmmock.Provider{CompleteErr: errors.New("b")})

	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	primary := &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128_000, SupportsJSONMode: true}}
	fb := NewLLMFallback(primary, "primary", FallbackConfig{})

	if caps := fb.Capabilities(); caps.ContextWindow != 128_000 || !caps.SupportsJSONMode {
		t.Errorf("caps = %+v", caps)
	}

	fb.AddFallback("local", &llmmock.Provider{})
	if fb.Capabilities().SupportsJSONMode {
		t.Error("JSON mode must be off when a fallback lacks it")
	}
}
