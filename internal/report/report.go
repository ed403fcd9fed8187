// Package report aggregates the analysed answers of one interview into its
// final report.
//
// [Aggregate] is a pure function: the same items always produce the same
// report, field for field and in the same order, so a stored report can be
// compared byte-for-byte with a recomputation.
package report

import (
	"cmp"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/intervox/internal/analysis"
)

// ErrNoAnswersToReport is returned when none of the items was answered and
// analysed.
var ErrNoAnswersToReport = errors.New("report: no answered questions to report")

// topN is how many strengths and improvements a report lists.
const topN = 5

// Item is one planned question of the interview.
type Item struct {
	QuestionType string

	// Answer is the candidate's transcript; empty when skipped.
	Answer string

	// Analysis is nil until the answer has been analysed.
	Analysis *analysis.Result
}

// Answered reports whether the item counts towards the report.
func (it Item) Answered() bool {
	return strings.TrimSpace(it.Answer) != "" && it.Analysis != nil
}

// Report is the final, immutable result of an interview.
type Report struct {
	OverallScore int `json:"overall_score"`

	// Categories breaks the score down by question type, sorted by type.
	Categories []Category `json:"categories"`

	// STAR holds the fraction of answered questions covering each part.
	STAR STARRates `json:"star"`

	// Mean sub-scores on the 1..10 scale, one decimal.
	Specificity float64 `json:"specificity"`
	Relevance   float64 `json:"relevance"`
	Impact      float64 `json:"impact"`

	// Strengths and Improvements are the most frequent entries across all
	// answers, most frequent first.
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`

	Statistics Statistics `json:"statistics"`
}

// Clone returns a copy that shares no lists with r.
func (r Report) Clone() Report {
	r.Categories = slices.Clone(r.Categories)
	r.Strengths = slices.Clone(r.Strengths)
	r.Improvements = slices.Clone(r.Improvements)
	return r
}

// Category is the score breakdown for one question type.
type Category struct {
	Type         string `json:"type"`
	Count        int    `json:"count"`
	AverageScore int    `json:"average_score"`
}

// STARRates are fractions in [0, 1] with two decimals.
type STARRates struct {
	Situation float64 `json:"situation"`
	Task      float64 `json:"task"`
	Action    float64 `json:"action"`
	Result    float64 `json:"result"`
}

// Statistics are session-level delivery numbers.
type Statistics struct {
	// TotalDurationSeconds sums the length of all answered turns.
	TotalDurationSeconds int `json:"total_duration_seconds"`

	// PlannedDurationSeconds is the session's time budget.
	PlannedDurationSeconds int `json:"planned_duration_seconds"`

	// AverageWPM averages over answers that carried word timings.
	AverageWPM int `json:"average_wpm"`

	TotalFillerWords  int `json:"total_filler_words"`
	TotalLongPauses   int `json:"total_long_pauses"`
	QuestionsAnswered int `json:"questions_answered"`
	QuestionsSkipped  int `json:"questions_skipped"`
	TotalQuestions    int `json:"total_questions"`
}

// Aggregate builds the report for items. budget is the planned session
// length. It fails with [ErrNoAnswersToReport] if no item is answered.
func Aggregate(items []Item, budget time.Duration) (Report, error) {
	answered := make([]*analysis.Result, 0, len(items))
	types := make([]string, 0, len(items))
	for _, it := range items {
		if it.Answered() {
			answered = append(answered, it.Analysis)
			types = append(types, orDefault(it.QuestionType, "general"))
		}
	}
	if len(answered) == 0 {
		return Report{}, ErrNoAnswersToReport
	}

	n := float64(len(answered))
	var (
		scoreSum, specSum, relSum, impSum int
		star                              [4]int
		duration                          float64
		wpmSum                            float64
		wpmCount                          int
		fillers, pauses                   int
		strengths, improvements           tally
		byType                            = make(map[string][]int)
	)
	for i, a := range answered {
		scoreSum += a.Score
		specSum += a.Specificity
		relSum += a.Relevance
		impSum += a.Impact
		star[0] += b2i(a.STAR.Situation)
		star[1] += b2i(a.STAR.Task)
		star[2] += b2i(a.STAR.Action)
		star[3] += b2i(a.STAR.Result)

		duration += a.Metrics.DurationSeconds
		if a.Metrics.WPM > 0 {
			wpmSum += a.Metrics.WPM
			wpmCount++
		}
		fillers += a.Metrics.FillerCount
		pauses += a.Metrics.LongPauses

		strengths.add(a.Strengths)
		improvements.add(a.Improvements)
		byType[types[i]] = append(byType[types[i]], a.Score)
	}

	r := Report{
		OverallScore: roundInt(float64(scoreSum) / n),
		Categories:   categories(byType),
		STAR: STARRates{
			Situation: roundTo(float64(star[0])/n, 2),
			Task:      roundTo(float64(star[1])/n, 2),
			Action:    roundTo(float64(star[2])/n, 2),
			Result:    roundTo(float64(star[3])/n, 2),
		},
		Specificity:  roundTo(float64(specSum)/n, 1),
		Relevance:    roundTo(float64(relSum)/n, 1),
		Impact:       roundTo(float64(impSum)/n, 1),
		Strengths:    strengths.top(topN),
		Improvements: improvements.top(topN),
		Statistics: Statistics{
			TotalDurationSeconds:   roundInt(duration),
			PlannedDurationSeconds: roundInt(budget.Seconds()),
			TotalFillerWords:       fillers,
			TotalLongPauses:        pauses,
			QuestionsAnswered:      len(answered),
			QuestionsSkipped:       len(items) - len(answered),
			TotalQuestions:         len(items),
		},
	}
	if wpmCount > 0 {
		r.Statistics.AverageWPM = roundInt(wpmSum / float64(wpmCount))
	}
	return r, nil
}

func categories(byType map[string][]int) []Category {
	out := make([]Category, 0, len(byType))
	for typ, scores := range byType {
		sum := 0
		for _, s := range scores {
			sum += s
		}
		out = append(out, Category{
			Type:         typ,
			Count:        len(scores),
			AverageScore: roundInt(float64(sum) / float64(len(scores))),
		})
	}
	slices.SortFunc(out, func(a, b Category) int { return cmp.Compare(a.Type, b.Type) })
	return out
}

// tally counts case-insensitive duplicates while keeping the first spelling
// and first-seen order for ties.
type tally struct {
	order  []string
	counts map[string]int
	label  map[string]string
}

func (t *tally) add(items []string) {
	if t.counts == nil {
		t.counts = make(map[string]int)
		t.label = make(map[string]string)
	}
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		key := strings.ToLower(it)
		if _, seen := t.counts[key]; !seen {
			t.order = append(t.order, key)
			t.label[key] = it
		}
		t.counts[key]++
	}
}

func (t *tally) top(n int) []string {
	keys := slices.Clone(t.order)
	slices.SortStableFunc(keys, func(a, b string) int { return cmp.Compare(t.counts[b], t.counts[a]) })
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = t.label[k]
	}
	return out
}

func roundInt(v float64) int { return int(math.Round(v)) }

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
