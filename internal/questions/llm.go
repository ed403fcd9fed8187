package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/provider/llm"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

const plannerSystemPrompt = `You are an experienced hiring manager preparing a spoken mock interview.

Write interview questions tailored to the candidate's resume and the job description.
Mix question types. Keep every question short enough to be read aloud in one breath.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "questions": [
    {
      "text": "<the question>",
      "type": "behavioral" | "technical" | "situational" | "leadership" | "culture_fit",
      "difficulty": "easy" | "medium" | "hard",
      "expected_duration_seconds": <integer>,
      "tips": ["<short tip>", ...]
    }
  ]
}`

// LLMOption configures an [LLMGenerator].
type LLMOption func(*LLMGenerator)

// WithBank replaces the fallback bank. Default: [DefaultBank].
func WithBank(b *Bank) LLMOption {
	return func(g *LLMGenerator) { g.bank = b }
}

// WithTemperature sets the sampling temperature. Default: 0.7.
func WithTemperature(t float64) LLMOption {
	return func(g *LLMGenerator) { g.temperature = t }
}

// WithGeneratorMetrics records reasoning latency and provider outcomes.
func WithGeneratorMetrics(m *observe.Metrics) LLMOption {
	return func(g *LLMGenerator) { g.metrics = m }
}

// LLMGenerator plans questions with a reasoning service. When the service
// fails or replies with something unusable the missing questions are taken
// from the fallback bank, so Generate only fails when ctx is done.
type LLMGenerator struct {
	llm         llm.Provider
	name        string
	bank        *Bank
	temperature float64
	metrics     *observe.Metrics
}

var _ Generator = (*LLMGenerator)(nil)

// NewLLMGenerator returns a generator backed by provider. name labels
// provider metrics.
func NewLLMGenerator(provider llm.Provider, name string, opts ...LLMOption) *LLMGenerator {
	g := &LLMGenerator{
		llm:         provider,
		name:        name,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(g)
	}
	if g.bank == nil {
		g.bank = DefaultBank()
	}
	return g
}

// Generate implements [Generator].
func (g *LLMGenerator) Generate(ctx context.Context, req Request) ([]Question, error) {
	if req.Count <= 0 {
		return []Question{}, nil
	}

	qs, err := g.ask(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("questions: generate: %w", ctxErr)
		}
		slog.Warn("question planner failed, using built-in bank",
			"provider", g.name, "user_id", req.UserID, "err", err)
	}
	if len(qs) > req.Count {
		qs = qs[:req.Count]
	}
	if len(qs) < req.Count {
		have := make(map[string]bool, len(qs))
		for _, q := range qs {
			have[textKey(q.Text)] = true
		}
		qs = append(qs, g.bank.Pick(req.Count-len(qs), func(q Question) bool {
			return have[textKey(q.Text)]
		})...)
	}
	return qs, nil
}

func (g *LLMGenerator) ask(ctx context.Context, req Request) ([]Question, error) {
	start := time.Now()
	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: plannerSystemPrompt,
		Temperature:  g.temperature,
		MaxTokens:    defaultMaxTokens,
		JSONMode:     true,
		Messages:     []llm.Message{{Role: "user", Content: buildPlannerPrompt(req)}},
	})
	if g.metrics != nil {
		g.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("purpose", "questions")))
		status := "ok"
		if err != nil {
			status = "error"
			g.metrics.RecordProviderError(ctx, g.name, "llm")
		}
		g.metrics.RecordProviderRequest(ctx, g.name, "llm", status)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("questions: empty reply")
	}
	return parseQuestions(resp.Content)
}

func buildPlannerPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %d interview questions.\n", req.Count)
	if req.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", req.Role)
	}
	if req.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", req.Company)
	}
	if req.JobContext != "" {
		fmt.Fprintf(&b, "\nJob description:\n%s\n", req.JobContext)
	}
	if req.ResumeContext != "" {
		fmt.Fprintf(&b, "\nCandidate resume:\n%s\n", req.ResumeContext)
	}
	return b.String()
}

type plannedQuestion struct {
	Text            string   `json:"text"`
	Type            string   `json:"type"`
	Difficulty      string   `json:"difficulty"`
	ExpectedSeconds float64  `json:"expected_duration_seconds"`
	Tips            []string `json:"tips"`
}

// parseQuestions accepts {"questions": [...]} or a bare array. Entries
// without text and exact duplicates are dropped; a reply with no usable
// entry is an error.
func parseQuestions(content string) ([]Question, error) {
	raw := []byte(stripMarkdown(content))

	var planned []plannedQuestion
	var wrapped struct {
		Questions []plannedQuestion `json:"questions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		planned = wrapped.Questions
	} else if err := json.Unmarshal(raw, &planned); err != nil {
		return nil, fmt.Errorf("questions: malformed reply: %w", err)
	}

	seen := make(map[string]bool, len(planned))
	out := make([]Question, 0, len(planned))
	for _, p := range planned {
		text := strings.TrimSpace(p.Text)
		if text == "" || seen[textKey(text)] {
			continue
		}
		seen[textKey(text)] = true

		typ, ok := ParseType(p.Type)
		if !ok {
			typ = TypeBehavioral
		}
		q := Question{
			Text:            text,
			Type:            typ,
			Difficulty:      normalizeDifficulty(p.Difficulty),
			ExpectedSeconds: int(p.ExpectedSeconds),
			Tips:            compact(p.Tips),
		}
		if q.ExpectedSeconds <= 0 {
			q.ExpectedSeconds = defaultExpectedSeconds(typ)
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, errors.New("questions: reply contained no questions")
	}
	return out, nil
}

func normalizeDifficulty(s string) string {
	switch d := strings.ToLower(strings.TrimSpace(s)); d {
	case "easy", "medium", "hard":
		return d
	default:
		return "medium"
	}
}

func textKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// stripMarkdown removes markdown code fences that some models wrap JSON in.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
