package analysis

import (
	"math"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// LongPauseThreshold is the inter-word gap above which a pause counts as
// long.
const LongPauseThreshold = 2.0 // seconds

// fuzzyFillerThreshold is the minimum Jaro-Winkler similarity for a
// misspelled token ("basicly") to count as a long filler word.
const fuzzyFillerThreshold = 0.94

// singleWordFillers are matched per token. Hesitations ("um", "uh") are also
// matched in elongated form ("ummm", "uhhh").
var singleWordFillers = []string{"um", "uh", "like", "actually", "basically"}

// phraseFillers are matched as whole-word phrases on the full transcript.
var phraseFillers = []string{"you know", "kind of", "sort of"}

// SpeechMetrics are the locally computed delivery metrics of one answer.
type SpeechMetrics struct {
	WordCount int `json:"word_count"`

	// WPM is words per minute over the spoken span; 0 without word timings.
	WPM float64 `json:"wpm"`

	// LongPauses counts inter-word gaps above [LongPauseThreshold]; 0
	// without word timings.
	LongPauses int `json:"long_pauses"`

	FillerCount int            `json:"filler_count"`
	Fillers     map[string]int `json:"fillers"`

	// SpanSeconds is the time from the first word's start to the last
	// word's end.
	SpanSeconds float64 `json:"span_seconds"`

	// DurationSeconds is the answer length: the recorded turn length when
	// known, the spoken span otherwise.
	DurationSeconds float64 `json:"duration_seconds"`
}

// ComputeMetrics derives speech metrics from a transcript and optional word
// timings. When words are present they are the token source; otherwise the
// transcript is split on whitespace.
func ComputeMetrics(transcript string, words []stt.WordDetail) SpeechMetrics {
	var raw []string
	if len(words) > 0 {
		raw = make([]string, 0, len(words))
		for _, w := range words {
			raw = append(raw, w.Word)
		}
	} else {
		raw = strings.Fields(transcript)
	}
	tokens := normalizeTokens(raw)

	m := SpeechMetrics{
		WordCount: len(tokens),
		Fillers:   countFillers(tokens),
	}
	for _, n := range m.Fillers {
		m.FillerCount += n
	}

	if span, ok := spokenSpan(words); ok {
		m.SpanSeconds = round(span, 2)
		m.DurationSeconds = m.SpanSeconds
		if span > 0 {
			m.WPM = round(float64(m.WordCount)/(span/60), 1)
		}
		m.LongPauses = countLongPauses(words)
	}
	return m
}

// normalizeTokens lower-cases tokens and strips surrounding punctuation,
// dropping tokens that are punctuation only.
func normalizeTokens(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := strings.TrimFunc(strings.ToLower(r), func(c rune) bool {
			return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '\''
		})
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func countFillers(tokens []string) map[string]int {
	counts := make(map[string]int)
	for _, t := range tokens {
		if f, ok := matchFiller(t); ok {
			counts[f]++
		}
	}

	joined := " " + strings.Join(tokens, " ") + " "
	for _, p := range phraseFillers {
		if n := strings.Count(joined, " "+p+" "); n > 0 {
			counts[p] += n
		}
	}
	return counts
}

// matchFiller maps a normalised token onto the filler vocabulary.
func matchFiller(token string) (string, bool) {
	squeezed := squeeze(token)
	for _, f := range singleWordFillers {
		if token == f || (len(f) == 2 && squeezed == f) {
			return f, true
		}
	}
	// Transcription misspellings of the long fillers. Length is bounded so
	// that real words sharing a stem ("actual") do not match.
	if len(token) < 6 {
		return "", false
	}
	for _, f := range singleWordFillers {
		if len(f) < 6 || abs(len(f)-len(token)) > 1 {
			continue
		}
		if matchr.JaroWinkler(token, f, false) >= fuzzyFillerThreshold {
			return f, true
		}
	}
	return "", false
}

// squeeze collapses runs of the same rune: "ummm" -> "um".
func squeeze(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// spokenSpan returns the seconds between the first start and the last end.
// ok is false when the words carry no timing information.
func spokenSpan(words []stt.WordDetail) (float64, bool) {
	if len(words) == 0 {
		return 0, false
	}
	first, last := words[0], words[len(words)-1]
	if last.End <= 0 {
		return 0, false
	}
	span := (last.End - first.Start).Seconds()
	if span < 0 {
		return 0, false
	}
	return span, true
}

func countLongPauses(words []stt.WordDetail) int {
	n := 0
	for i := 1; i < len(words); i++ {
		if gap := (words[i].Start - words[i-1].End).Seconds(); gap > LongPauseThreshold {
			n++
		}
	}
	return n
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
