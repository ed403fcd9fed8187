package interview

import (
	"errors"
	"fmt"
)

// VoiceConfig describes the interviewer's synthetic voice. The client uses
// it to drive text-to-speech.
type VoiceConfig struct {
	Provider string  `yaml:"provider" json:"provider"`
	VoiceID  string  `yaml:"voice_id" json:"voice_id"`
	Speed    float64 `yaml:"speed"    json:"speed"`
	Language string  `yaml:"language" json:"language"`
}

// Config holds the tunables of interview planning.
type Config struct {
	// DefaultDurationMinutes is used when a session is created without one.
	DefaultDurationMinutes int `yaml:"default_duration_minutes"`

	MinDurationMinutes int `yaml:"min_duration_minutes"`
	MaxDurationMinutes int `yaml:"max_duration_minutes"`

	// MaxQuestions caps the question count derived from the duration.
	MaxQuestions int `yaml:"max_questions"`

	// MinutesPerQuestion sets how many questions a duration yields.
	MinutesPerQuestion int `yaml:"minutes_per_question"`

	InterviewerName string      `yaml:"interviewer_name"`
	Voice           VoiceConfig `yaml:"voice"`
}

// DefaultConfig returns the built-in interview settings.
func DefaultConfig() Config {
	return Config{
		DefaultDurationMinutes: 15,
		MinDurationMinutes:     5,
		MaxDurationMinutes:     60,
		MaxQuestions:           10,
		MinutesPerQuestion:     3,
		InterviewerName:        "Alex",
		Voice: VoiceConfig{
			Provider: "browser",
			VoiceID:  "default",
			Speed:    1.0,
			Language: "en-US",
		},
	}
}

// WithDefaults fills zero fields from [DefaultConfig].
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.DefaultDurationMinutes == 0 {
		c.DefaultDurationMinutes = d.DefaultDurationMinutes
	}
	if c.MinDurationMinutes == 0 {
		c.MinDurationMinutes = d.MinDurationMinutes
	}
	if c.MaxDurationMinutes == 0 {
		c.MaxDurationMinutes = d.MaxDurationMinutes
	}
	if c.MaxQuestions == 0 {
		c.MaxQuestions = d.MaxQuestions
	}
	if c.MinutesPerQuestion == 0 {
		c.MinutesPerQuestion = d.MinutesPerQuestion
	}
	if c.InterviewerName == "" {
		c.InterviewerName = d.InterviewerName
	}
	if c.Voice.Provider == "" {
		c.Voice.Provider = d.Voice.Provider
	}
	if c.Voice.VoiceID == "" {
		c.Voice.VoiceID = d.Voice.VoiceID
	}
	if c.Voice.Speed == 0 {
		c.Voice.Speed = d.Voice.Speed
	}
	if c.Voice.Language == "" {
		c.Voice.Language = d.Voice.Language
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.MinDurationMinutes < 1 {
		errs = append(errs, fmt.Errorf("interview: min_duration_minutes must be at least 1, got %d", c.MinDurationMinutes))
	}
	if c.MaxDurationMinutes < c.MinDurationMinutes {
		errs = append(errs, fmt.Errorf("interview: max_duration_minutes (%d) is below min_duration_minutes (%d)", c.MaxDurationMinutes, c.MinDurationMinutes))
	}
	if c.DefaultDurationMinutes < c.MinDurationMinutes || c.DefaultDurationMinutes > c.MaxDurationMinutes {
		errs = append(errs, fmt.Errorf("interview: default_duration_minutes %d is outside [%d,%d]", c.DefaultDurationMinutes, c.MinDurationMinutes, c.MaxDurationMinutes))
	}
	if c.MaxQuestions < 1 {
		errs = append(errs, fmt.Errorf("interview: max_questions must be at least 1, got %d", c.MaxQuestions))
	}
	if c.MinutesPerQuestion < 1 {
		errs = append(errs, fmt.Errorf("interview: minutes_per_question must be at least 1, got %d", c.MinutesPerQuestion))
	}
	if c.Voice.Speed <= 0 || c.Voice.Speed > 4 {
		errs = append(errs, fmt.Errorf("interview: voice.speed must be in (0,4], got %v", c.Voice.Speed))
	}
	return errors.Join(errs...)
}

// clampDuration maps a requested duration onto the configured range. Zero
// selects the default.
func (c Config) clampDuration(minutes int) int {
	if minutes <= 0 {
		minutes = c.DefaultDurationMinutes
	}
	return max(c.MinDurationMinutes, min(minutes, c.MaxDurationMinutes))
}

// questionCount derives the number of questions from a duration.
func (c Config) questionCount(minutes int) int {
	return max(1, min(minutes/c.MinutesPerQuestion, c.MaxQuestions))
}
