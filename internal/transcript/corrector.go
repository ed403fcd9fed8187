package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// span whose Double Metaphone code matches a term. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when the
// pronunciation codes differ. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// Corrector replaces misheard spans of a transcript with known terms. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewCorrector returns a [Corrector] configured with the supplied options.
func NewCorrector(opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct returns text with every span that sounds or reads like one of terms
// replaced by that term, along with the corrections applied.
//
// At each token position the corrector tries every window up to the longest
// term plus one word and keeps the best-scoring match, so "data dog" becomes
// "Datadog" while "stripe" next to an unrelated word stays a one-word match.
// Punctuation around a replaced span is preserved. When nothing is replaced
// text is returned unchanged, including its whitespace.
func (c *Corrector) Correct(text string, terms []string) (string, []Correction) {
	prepared := prepareTerms(terms)
	tokens := strings.Fields(text)
	if len(prepared) == 0 || len(tokens) == 0 {
		return text, nil
	}
	maxWords := 2
	for _, t := range prepared {
		maxWords = max(maxWords, t.words)
	}

	out := make([]string, 0, len(tokens))
	var corrections []Correction
	for i := 0; i < len(tokens); {
		var (
			best  candidate
			bestN int
		)
		for n := min(maxWords, len(tokens)-i); n >= 1; n-- {
			cand, ok := c.match(strings.Join(tokens[i:i+n], " "), n, prepared)
			if ok && cand.score > best.score {
				best, bestN = cand, n
			}
		}
		if bestN == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}

		span := tokens[i : i+bestN]
		i += bestN
		lead, core, trail := splitPunct(strings.Join(span, " "))
		if core == best.term {
			out = append(out, span...)
			continue
		}
		out = append(out, lead+best.term+trail)
		corrections = append(corrections, Correction{
			Original:   core,
			Corrected:  best.term,
			Confidence: best.score,
			Method:     best.method,
		})
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// splitPunct separates leading and trailing punctuation from s.
func splitPunct(s string) (lead, core, trail string) {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	start := strings.IndexFunc(s, isWord)
	if start < 0 {
		return s, "", ""
	}
	end := strings.LastIndexFunc(s, isWord)
	_, size := utf8.DecodeRuneInString(s[end:])
	end += size
	return s[:start], s[start:end], s[end:]
}
