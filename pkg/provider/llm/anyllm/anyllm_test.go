package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intervox/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "model"); err == nil {
		t.Error("expected error for empty backend")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("carrier-pigeon", "m1"); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Score the answer.",
		Messages:     []llm.Message{{Role: "user", Content: "Question: ..."}},
		Temperature:  0.2,
		MaxTokens:    512,
	})

	if params.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (system + user)", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "Score the answer." {
		t.Errorf("system message = %+v", params.Messages[0])
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("user role = %q", params.Messages[1].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("MaxTokens = %v, want 512", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if params.Temperature != nil {
		t.Error("Temperature should be nil when zero")
	}
	if params.MaxTokens != nil {
		t.Error("MaxTokens should be nil when zero")
	}
	if len(params.Messages) != 1 {
		t.Errorf("got %d messages, want 1 without system prompt", len(params.Messages))
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model      string
		wantWindow int
		wantOutput int
	}{
		{"gpt-4o-mini", 128_000, 16_384},
		{"gpt-4", 8_192, 4_096},
		{"o3-mini", 200_000, 100_000},
		{"claude-3-5-haiku-latest", 200_000, 8_192},
		{"gemini-2.0-flash", 1_048_576, 8_192},
		{"llama3.2", 128_000, 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantWindow || caps.MaxOutputTokens != tt.wantOutput {
				t.Errorf("caps = %+v, want window %d output %d", caps, tt.wantWindow, tt.wantOutput)
			}
		})
	}
}
