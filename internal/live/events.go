package live

import (
	"context"
	"errors"

	"github.com/MrWong99/intervox/internal/analysis"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/report"
	"github.com/MrWong99/intervox/pkg/vad"
)

// EventType names a live event. The values double as the "type" field of
// the messages sent to the browser.
type EventType string

const (
	EventCalibrated       EventType = "calibrated"
	EventSpeechStarted    EventType = "speech_started"
	EventSpeechEnded      EventType = "speech_ended"
	EventRecordingStarted EventType = "recording_started"
	EventRecordingStopped EventType = "recording_stopped"
	EventTranscript       EventType = "transcript"
	EventAnswer           EventType = "answer"
	EventCompleted        EventType = "completed"
	EventError            EventType = "error"
)

// Event is something the candidate's client should know about.
type Event struct {
	Type EventType `json:"type"`

	ExchangeID    string `json:"exchange_id,omitempty"`
	QuestionIndex *int   `json:"question_index,omitempty"`

	// Detector readings.
	Level        float64 `json:"level,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	StreamMillis int64   `json:"stream_ms,omitempty"`

	// BudgetMillis is the time allowed for the answer being recorded.
	BudgetMillis int64      `json:"budget_ms,omitempty"`
	Reason       StopReason `json:"reason,omitempty"`

	Transcript string                  `json:"transcript,omitempty"`
	Result     *interview.SubmitResult `json:"result,omitempty"`
	Report     *report.Report          `json:"report,omitempty"`

	// Code classifies an error event; Error carries its message.
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Error codes carried by [EventError].
const (
	CodeAudioUnavailable    = "audio_unavailable"
	CodeTranscriptionFailed = "transcription_failed"
	CodeAnalysisUnavailable = "analysis_unavailable"
	CodeNoAnswersToReport   = "no_answers_to_report"
	CodeTurnInFlight        = "turn_in_flight"
	CodeNoOpenQuestion      = "no_open_question"
	CodeSessionCompleted    = "session_completed"
	CodeOutOfOrder          = "out_of_order"
	CodeSessionNotFound     = "session_not_found"
	CodeAccessDenied        = "access_denied"
	CodeCancelled           = "cancelled"
	CodeInternal            = "internal"
)

// ErrorCode classifies err for clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, vad.ErrAudioUnavailable):
		return CodeAudioUnavailable
	case errors.Is(err, ErrTranscriptionFailed), errors.Is(err, interview.ErrEmptyAnswer):
		return CodeTranscriptionFailed
	case errors.Is(err, analysis.ErrAnalysisUnavailable):
		return CodeAnalysisUnavailable
	case errors.Is(err, report.ErrNoAnswersToReport):
		return CodeNoAnswersToReport
	case errors.Is(err, ErrTurnInFlight), errors.Is(err, interview.ErrAnswerInFlight):
		return CodeTurnInFlight
	case errors.Is(err, ErrNoOpenQuestion), errors.Is(err, ErrNoTurn):
		return CodeNoOpenQuestion
	case errors.Is(err, interview.ErrSessionCompleted), errors.Is(err, ErrEnded):
		return CodeSessionCompleted
	case errors.Is(err, interview.ErrOutOfOrder), errors.Is(err, interview.ErrInvalidTransition):
		return CodeOutOfOrder
	case errors.Is(err, interview.ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, interview.ErrAccessDenied):
		return CodeAccessDenied
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	default:
		return CodeInternal
	}
}

// ErrorEvent builds the [EventError] event for err.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Code: ErrorCode(err), Error: err.Error()}
}
