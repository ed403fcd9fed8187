// Package transcript repairs speech-to-text output before it is judged.
//
// Transcribers routinely mishear the proper nouns an interview revolves
// around: the company name and the job title. Keyword boosting helps where
// the provider supports it, but the answer text can still arrive as "acne
// corp" or "data dog". A [Corrector] aligns such spans with the session's
// known terms using Double Metaphone codes and Jaro-Winkler similarity and
// substitutes the canonical spelling.
//
// Correction runs in-process and never calls a provider. All types are safe
// for concurrent use.
package transcript

// Method identifies how a correction was found.
type Method string

const (
	// MethodPhonetic marks a span whose pronunciation code matched the term.
	MethodPhonetic Method = "phonetic"

	// MethodFuzzy marks a span accepted on spelling similarity alone.
	MethodFuzzy Method = "fuzzy"
)

// Correction records one substitution made by a [Corrector].
type Correction struct {
	// Original is the span as produced by the transcriber, without
	// surrounding punctuation.
	Original string

	// Corrected is the known term that replaced it.
	Corrected string

	// Confidence is the Jaro-Winkler similarity between the two (0.0–1.0).
	Confidence float64

	Method Method
}
