package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.85

	// Minimum lengths in letters and digits. Shorter names collide with too
	// many common words.
	minTermLen = 4
	minSpanLen = 3
)

// term is a known spelling prepared for repeated matching.
type term struct {
	text  string
	words int
	key   string
	codes map[string]struct{}
}

func prepareTerms(terms []string) []term {
	out := make([]term, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := normalize(t)
		if len([]rune(key)) < minTermLen {
			continue
		}
		out = append(out, term{
			text:  t,
			words: len(strings.Fields(t)),
			key:   key,
			codes: codes(key),
		})
	}
	return out
}

// candidate is the best term found for one span.
type candidate struct {
	term   string
	score  float64
	method Method
}

// match compares span, made of spanWords tokens, against every term.
//
// A span is only compared with terms of the same word count, except that a
// single-word term may also be heard as two words ("data dog" for
// "Datadog"). Such split spans must agree phonetically. Phonetic candidates
// outrank spelling-only ones.
func (c *Corrector) match(span string, spanWords int, terms []term) (candidate, bool) {
	key := normalize(span)
	if len([]rune(key)) < minSpanLen {
		return candidate{}, false
	}
	spanCodes := codes(key)

	var best candidate
	for _, t := range terms {
		split := t.words == 1 && spanWords == 2
		if spanWords != t.words && !split {
			continue
		}
		// Inflections and compounds of a term are words in their own right.
		if key != t.key && (strings.HasPrefix(key, t.key) || strings.HasPrefix(t.key, key)) {
			continue
		}

		score := matchr.JaroWinkler(key, t.key, false)
		phonetic := overlap(spanCodes, t.codes)
		switch {
		case phonetic && score >= c.phoneticThreshold:
			if best.method != MethodPhonetic || score > best.score {
				best = candidate{term: t.text, score: score, method: MethodPhonetic}
			}
		case !split && best.method != MethodPhonetic && score >= c.fuzzyThreshold && score > best.score:
			best = candidate{term: t.text, score: score, method: MethodFuzzy}
		}
	}
	return best, best.term != ""
}

// normalize lowercases s and drops everything but letters and digits, so
// "Data Dog" and "datadog" share a key.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// codes returns the Double Metaphone codes of key. Empty codes are dropped.
func codes(key string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(key)
	if p != "" {
		out[p] = struct{}{}
	}
	if s != "" {
		out[s] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
