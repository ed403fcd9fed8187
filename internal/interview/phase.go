package interview

import (
	"fmt"
)

// Phase is a stage of the interview. Phases only ever move forward.
type Phase int

// Interview phases in order.
const (
	PhaseWelcome Phase = iota
	PhaseSmallTalk
	PhaseCompanyIntro
	PhaseQuestions
	PhaseWrapUp
	PhaseCompleted
)

var phaseNames = [...]string{
	PhaseWelcome:      "welcome",
	PhaseSmallTalk:    "small_talk",
	PhaseCompanyIntro: "company_intro",
	PhaseQuestions:    "questions",
	PhaseWrapUp:       "wrap_up",
	PhaseCompleted:    "completed",
}

// String returns the snake_case name of the phase.
func (p Phase) String() string {
	if p < PhaseWelcome || p > PhaseCompleted {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Index is the position of p in the phase order.
func (p Phase) Index() int { return int(p) }

// Next returns the phase after p. The terminal phase returns itself.
func (p Phase) Next() Phase {
	if p >= PhaseCompleted {
		return PhaseCompleted
	}
	return p + 1
}

// Scripted reports whether p is one of the short interviewer-led phases
// before the questions start.
func (p Phase) Scripted() bool {
	return p < PhaseQuestions
}

// ParsePhase is the inverse of [Phase.String].
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("interview: unknown phase %q", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (p Phase) MarshalText() ([]byte, error) {
	if p < PhaseWelcome || p > PhaseCompleted {
		return nil, fmt.Errorf("interview: invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
