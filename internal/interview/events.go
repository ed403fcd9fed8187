package interview

import "time"

// EventType classifies a history entry.
type EventType string

const (
	EventPhaseChange    EventType = "phase_change"
	EventAIUtterance    EventType = "ai_utterance"
	EventUserResponse   EventType = "user_response"
	EventAnswerAnalysis EventType = "answer_analysis"
)

// Event is one entry of a session's history. Seq starts at 1 and increases
// by one per entry.
type Event struct {
	Seq   int       `json:"seq"`
	Type  EventType `json:"type"`
	Phase Phase     `json:"phase"`
	At    time.Time `json:"at"`

	// Text is the spoken line for utterances and responses and a short
	// feedback summary for analyses.
	Text string `json:"text,omitempty"`

	// QuestionIndex is set for events tied to one question.
	QuestionIndex *int `json:"question_index,omitempty"`

	// Score is set for answer_analysis events.
	Score *int `json:"score,omitempty"`

	// From is the previous phase of a phase_change.
	From *Phase `json:"from,omitempty"`
}

// appendEvent stamps e with the next sequence number and, unless it is a
// phase change, the session's current phase.
func (s *Session) appendEvent(e Event) {
	e.Seq = len(s.History) + 1
	if e.Type != EventPhaseChange {
		e.Phase = s.Phase
	}
	s.History = append(s.History, e)
}

func (s *Session) appendTransition(t Transition, at time.Time) {
	if !t.PhaseChanged() {
		return
	}
	from := t.From
	s.appendEvent(Event{Type: EventPhaseChange, Phase: t.To, From: &from, At: at})
}

func intPtr(v int) *int { return &v }
