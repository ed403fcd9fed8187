package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/provider/llm"
)

// Judge produces the semantic judgment of one answer.
type Judge interface {
	Judge(ctx context.Context, in Input) (Judgment, error)
}

// errMalformedJudgment marks a reasoning-service reply that could not be
// turned into a [Judgment].
var errMalformedJudgment = errors.New("analysis: malformed judgment")

const (
	defaultJudgeTemperature = 0.2
	defaultJudgeMaxTokens   = 1200
)

const judgeSystemPrompt = `You are an experienced interviewer evaluating one answer from a mock job interview.

Evaluate the candidate's answer to the question. Use the STAR framework (Situation, Task, Action, Result) for structure.
Judge specificity (concrete details, numbers, names), relevance to the question and the role, and the impact the candidate describes.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "score": <integer 0-100>,
  "star": {"situation": <bool>, "task": <bool>, "action": <bool>, "result": <bool>},
  "specificity": <integer 1-10>,
  "relevance": <integer 1-10>,
  "impact": <integer 1-10>,
  "strengths": ["<short strength>", ...],
  "improvements": ["<short improvement>", ...],
  "suggestions": ["<actionable suggestion>", ...],
  "feedback": "<two or three sentences of detailed feedback addressed to the candidate>"
}`

// judgeResponse is the wire format requested from the model. Pointer fields
// distinguish missing values from zero.
type judgeResponse struct {
	Score *float64 `json:"score"`
	STAR  *struct {
		Situation bool `json:"situation"`
		Task      bool `json:"task"`
		Action    bool `json:"action"`
		Result    bool `json:"result"`
	} `json:"star"`
	Specificity  *float64 `json:"specificity"`
	Relevance    *float64 `json:"relevance"`
	Impact       *float64 `json:"impact"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Suggestions  []string `json:"suggestions"`
	Feedback     string   `json:"feedback"`
}

// JudgeOption configures an [LLMJudge].
type JudgeOption func(*LLMJudge)

// WithJudgeTemperature sets the sampling temperature. Default: 0.2.
func WithJudgeTemperature(t float64) JudgeOption {
	return func(j *LLMJudge) { j.temperature = t }
}

// WithJudgeMaxTokens caps the reply length. Default: 1200.
func WithJudgeMaxTokens(n int) JudgeOption {
	return func(j *LLMJudge) { j.maxTokens = n }
}

// WithJudgeMetrics records reasoning latency and provider outcomes.
func WithJudgeMetrics(m *observe.Metrics) JudgeOption {
	return func(j *LLMJudge) { j.metrics = m }
}

// LLMJudge asks a reasoning service for a JSON judgment. It is safe for
// concurrent use.
type LLMJudge struct {
	llm         llm.Provider
	name        string
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
}

var _ Judge = (*LLMJudge)(nil)

// NewLLMJudge returns a judge backed by provider. name labels provider
// metrics.
func NewLLMJudge(provider llm.Provider, name string, opts ...JudgeOption) *LLMJudge {
	j := &LLMJudge{
		llm:         provider,
		name:        name,
		temperature: defaultJudgeTemperature,
		maxTokens:   defaultJudgeMaxTokens,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Judge implements [Judge]. A reply that is not valid JSON or lacks a
// required field yields an error wrapping errMalformedJudgment.
func (j *LLMJudge) Judge(ctx context.Context, in Input) (Judgment, error) {
	req := llm.CompletionRequest{
		SystemPrompt: judgeSystemPrompt,
		Temperature:  j.temperature,
		MaxTokens:    j.maxTokens,
		JSONMode:     true,
		Messages:     []llm.Message{{Role: "user", Content: buildJudgePrompt(in)}},
	}

	start := time.Now()
	resp, err := j.llm.Complete(ctx, req)
	if j.metrics != nil {
		j.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("purpose", "analysis")))
		status := "ok"
		if err != nil {
			status = "error"
			j.metrics.RecordProviderError(ctx, j.name, "llm")
		}
		j.metrics.RecordProviderRequest(ctx, j.name, "llm", status)
	}
	if err != nil {
		return Judgment{}, fmt.Errorf("analysis: judge: %w", err)
	}
	if resp == nil {
		return Judgment{}, fmt.Errorf("%w: empty reply", errMalformedJudgment)
	}
	return parseJudgment(resp.Content)
}

func buildJudgePrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question (%s): %s\n\n", orDefault(in.QuestionType, "general"), in.Question)
	fmt.Fprintf(&b, "Candidate answer:\n%s\n", in.Transcript)
	if in.JobContext != "" {
		fmt.Fprintf(&b, "\nJob description:\n%s\n", in.JobContext)
	}
	if in.ResumeContext != "" {
		fmt.Fprintf(&b, "\nCandidate resume:\n%s\n", in.ResumeContext)
	}
	return b.String()
}

func parseJudgment(content string) (Judgment, error) {
	var r judgeResponse
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return Judgment{}, fmt.Errorf("%w: %w", errMalformedJudgment, err)
	}

	var missing []string
	if r.Score == nil {
		missing = append(missing, "score")
	}
	if r.Specificity == nil {
		missing = append(missing, "specificity")
	}
	if r.Relevance == nil {
		missing = append(missing, "relevance")
	}
	if r.Impact == nil {
		missing = append(missing, "impact")
	}
	if strings.TrimSpace(r.Feedback) == "" {
		missing = append(missing, "feedback")
	}
	if len(missing) > 0 {
		return Judgment{}, fmt.Errorf("%w: missing %s", errMalformedJudgment, strings.Join(missing, ", "))
	}

	j := Judgment{
		Score:        roundIn(*r.Score, 0, 100),
		Specificity:  roundIn(*r.Specificity, 1, 10),
		Relevance:    roundIn(*r.Relevance, 1, 10),
		Impact:       roundIn(*r.Impact, 1, 10),
		Strengths:    compact(r.Strengths),
		Improvements: compact(r.Improvements),
		Suggestions:  compact(r.Suggestions),
		Feedback:     strings.TrimSpace(r.Feedback),
	}
	if r.STAR != nil {
		j.STAR = STAR{
			Situation: r.STAR.Situation,
			Task:      r.STAR.Task,
			Action:    r.STAR.Action,
			Result:    r.STAR.Result,
		}
	}
	return j, nil
}

// roundIn clamps v to [lo, hi] before rounding; out-of-range float to int
// conversions are not portable.
func roundIn(v, lo, hi float64) int {
	return int(math.Round(math.Max(lo, math.Min(v, hi))))
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

// compact trims entries and drops empty ones.
func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
