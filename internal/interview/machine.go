package interview

import "fmt"

// Machine is the phase state of one session: the current phase, the index
// of the question being asked and the number of planned questions.
//
// Every method either applies a legal transition and returns it, or returns
// an error and leaves the machine untouched. The zero Machine is not usable;
// create one with [NewMachine] or [RestoreMachine].
type Machine struct {
	phase Phase
	index int
	total int
}

// Transition describes one applied step. From equals To when the step
// moved the question index without changing phase.
type Transition struct {
	From  Phase
	To    Phase
	Index int
}

// PhaseChanged reports whether the step entered a new phase.
func (t Transition) PhaseChanged() bool { return t.From != t.To }

// NewMachine returns a machine in [PhaseWelcome] planning total questions.
func NewMachine(total int) (*Machine, error) {
	if total < 1 {
		return nil, fmt.Errorf("%w: need at least one question, got %d", ErrInvalidTransition, total)
	}
	return &Machine{phase: PhaseWelcome, total: total}, nil
}

// RestoreMachine rebuilds a machine from persisted state and checks that
// the combination is reachable.
func RestoreMachine(phase Phase, index, total int) (*Machine, error) {
	switch {
	case total < 1:
		return nil, fmt.Errorf("%w: need at least one question, got %d", ErrInvalidTransition, total)
	case phase < PhaseWelcome || phase > PhaseCompleted:
		return nil, fmt.Errorf("%w: unknown phase %d", ErrInvalidTransition, int(phase))
	case index < 0 || index > total:
		return nil, fmt.Errorf("%w: question index %d out of range [0,%d]", ErrInvalidTransition, index, total)
	case phase == PhaseQuestions && index == total:
		return nil, fmt.Errorf("%w: questions phase with all %d questions answered", ErrInvalidTransition, total)
	case phase.Scripted() && index != 0:
		return nil, fmt.Errorf("%w: %s with question index %d", ErrInvalidTransition, phase, index)
	}
	return &Machine{phase: phase, index: index, total: total}, nil
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// Index returns the current question index. It equals Total once every
// question has been answered.
func (m *Machine) Index() int { return m.index }

// Total returns the number of planned questions.
func (m *Machine) Total() int { return m.total }

// AdvanceScript moves from one scripted phase to the next. Leaving
// [PhaseCompanyIntro] enters [PhaseQuestions] at index 0.
func (m *Machine) AdvanceScript() (Transition, error) {
	if !m.phase.Scripted() {
		return Transition{}, fmt.Errorf("%w: cannot advance script in %s", ErrInvalidTransition, m.phase)
	}
	t := Transition{From: m.phase, To: m.phase.Next(), Index: m.index}
	m.phase = t.To
	return t, nil
}

// AnswerRecorded marks the answer to question index as durably recorded and
// moves to the next question. After the last question the machine enters
// [PhaseWrapUp]. index must be the current question.
func (m *Machine) AnswerRecorded(index int) (Transition, error) {
	if m.phase != PhaseQuestions {
		if m.phase > PhaseQuestions && index < m.total {
			return Transition{}, fmt.Errorf("%w: question %d can no longer be answered in %s", ErrOutOfOrder, index, m.phase)
		}
		return Transition{}, fmt.Errorf("%w: no question is open in %s", ErrInvalidTransition, m.phase)
	}
	if index != m.index {
		return Transition{}, fmt.Errorf("%w: answer for question %d, current question is %d", ErrOutOfOrder, index, m.index)
	}
	t := Transition{From: m.phase, To: m.phase, Index: m.index + 1}
	if t.Index == m.total {
		t.To = PhaseWrapUp
	}
	m.phase, m.index = t.To, t.Index
	return t, nil
}

// FinishEarly jumps to [PhaseWrapUp] from any earlier phase, leaving the
// remaining questions unanswered. In wrap_up it is a no-op.
func (m *Machine) FinishEarly() (Transition, error) {
	switch m.phase {
	case PhaseCompleted:
		return Transition{}, ErrSessionCompleted
	case PhaseWrapUp:
		return Transition{From: m.phase, To: m.phase, Index: m.index}, nil
	}
	t := Transition{From: m.phase, To: PhaseWrapUp, Index: m.index}
	m.phase = t.To
	return t, nil
}

// Complete enters the terminal phase. Only legal from [PhaseWrapUp].
func (m *Machine) Complete() (Transition, error) {
	switch m.phase {
	case PhaseCompleted:
		return Transition{}, ErrSessionCompleted
	case PhaseWrapUp:
	default:
		return Transition{}, fmt.Errorf("%w: cannot complete from %s", ErrInvalidTransition, m.phase)
	}
	t := Transition{From: m.phase, To: PhaseCompleted, Index: m.index}
	m.phase = t.To
	return t, nil
}
