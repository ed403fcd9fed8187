// Package questions plans the questions of an interview.
//
// [LLMGenerator] asks the reasoning service for questions tailored to the
// candidate's resume and the job description and falls back to a built-in
// [Bank] when the reply is unusable. [Deduplicator] wraps any [Generator] and
// replaces candidates that are semantically too close to questions the same
// user has already been asked.
package questions

import (
	"context"
	"strings"
)

// Type classifies a question.
type Type string

// Known question types.
const (
	TypeBehavioral  Type = "behavioral"
	TypeTechnical   Type = "technical"
	TypeSituational Type = "situational"
	TypeLeadership  Type = "leadership"
	TypeCultureFit  Type = "culture_fit"
)

// Types lists the known types in the order the bank mixes them.
var Types = []Type{TypeBehavioral, TypeTechnical, TypeSituational, TypeLeadership, TypeCultureFit}

// ParseType maps free-form model output onto a known [Type]. ok is false
// when nothing matched.
func ParseType(s string) (Type, bool) {
	norm := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range Types {
		if norm == string(t) {
			return t, true
		}
	}
	switch norm {
	case "culture", "cultural", "cultural_fit":
		return TypeCultureFit, true
	case "situation", "hypothetical":
		return TypeSituational, true
	}
	return "", false
}

// Question is one planned interview question.
type Question struct {
	Text       string `json:"text"`
	Type       Type   `json:"type"`
	Difficulty string `json:"difficulty"`

	// ExpectedSeconds is how long a good answer takes.
	ExpectedSeconds int      `json:"expected_duration_seconds"`
	Tips            []string `json:"tips"`
}

// Request describes the interview to plan for.
type Request struct {
	UserID        string
	ResumeContext string
	JobContext    string
	Company       string
	Role          string

	// Count is the number of questions wanted.
	Count int
}

// Generator plans questions. Implementations return at most req.Count
// questions and must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]Question, error)
}

// defaultExpectedSeconds is the answer length assumed when none is given.
func defaultExpectedSeconds(t Type) int {
	switch t {
	case TypeTechnical:
		return 180
	case TypeCultureFit:
		return 90
	default:
		return 120
	}
}
