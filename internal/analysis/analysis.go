// Package analysis scores one interview answer.
//
// Speech metrics (words per minute, long pauses, filler words) are computed
// locally from the transcript and optional word timings. The semantic
// judgment (STAR structure, specificity, relevance, impact, strengths and
// improvements) is delegated to a [Judge], normally an [LLMJudge]. The
// [Analyzer] runs both concurrently, retries transient judge failures behind a
// circuit breaker, and normalises the result into an [Result].
package analysis

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// ErrAnalysisUnavailable is returned when no valid judgment could be produced
// for an answer. The caller may retry the same turn.
var ErrAnalysisUnavailable = errors.New("analysis: analysis unavailable")

// Input is one finished answer.
type Input struct {
	Question     string
	QuestionType string
	Transcript   string

	// ResumeContext and JobContext are optional background handed to the
	// judge.
	ResumeContext string
	JobContext    string

	// Words carries optional per-word timings used for speech metrics.
	Words []stt.WordDetail

	// Duration is the length of the recorded turn, when known.
	Duration time.Duration
}

// STAR flags which parts of the Situation/Task/Action/Result structure the
// answer covered.
type STAR struct {
	Situation bool `json:"situation"`
	Task      bool `json:"task"`
	Action    bool `json:"action"`
	Result    bool `json:"result"`
}

// Judgment is the semantic part of an analysis as produced by a [Judge].
type Judgment struct {
	Score        int      `json:"score"`
	STAR         STAR     `json:"star"`
	Specificity  int      `json:"specificity"`
	Relevance    int      `json:"relevance"`
	Impact       int      `json:"impact"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Suggestions  []string `json:"suggestions"`
	Feedback     string   `json:"feedback"`
}

// Result is the full analysis of one answer. Score is in [0, 100];
// Specificity, Relevance and Impact are in [1, 10].
type Result struct {
	Judgment
	Metrics SpeechMetrics `json:"metrics"`
}

// Clone returns a copy that shares no lists or maps with r.
func (r Result) Clone() Result {
	r.Strengths = slices.Clone(r.Strengths)
	r.Improvements = slices.Clone(r.Improvements)
	r.Suggestions = slices.Clone(r.Suggestions)
	r.Metrics.Fillers = maps.Clone(r.Metrics.Fillers)
	return r
}

// normalize clamps the numeric fields into their documented ranges and
// replaces nil lists with empty ones so stored results marshal uniformly.
func normalize(j Judgment) Judgment {
	j.Score = clamp(j.Score, 0, 100)
	j.Specificity = clamp(j.Specificity, 1, 10)
	j.Relevance = clamp(j.Relevance, 1, 10)
	j.Impact = clamp(j.Impact, 1, 10)
	j.Strengths = nonNil(j.Strengths)
	j.Improvements = nonNil(j.Improvements)
	j.Suggestions = nonNil(j.Suggestions)
	return j
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
