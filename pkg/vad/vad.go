// Package vad turns a stream of audio levels into speech turns.
//
// The detector is energy based. It spends the first CalibrationWindow of a
// stream measuring the room's noise floor, derives a threshold from it, and
// then follows an exponentially smoothed RMS envelope. Crossing above the
// threshold starts speech immediately; dropping below starts a silence
// countdown of SilenceDelay and speech only ends once the countdown runs out
// uninterrupted. Short dips between words therefore never split an answer.
//
// All timing is measured on the audio clock carried by [audio.Level.At], so
// the detector behaves identically in tests, under load, and in real time.
// The one exception is StallTimeout: a live [Handle] ends open speech when
// frames stop arriving altogether, which the audio clock cannot see.
//
// [Detector] is the pure state machine; [Start] runs one over a live level
// stream and reports transitions through callbacks.
package vad

import (
	"errors"
	"fmt"
	"time"
)

// ErrAudioUnavailable is returned when there is no audio stream to analyse
// or the stream ended before calibration could complete.
var ErrAudioUnavailable = errors.New("vad: audio unavailable")

// Default tuning values.
const (
	DefaultBaseThreshold         = 0.01
	DefaultCalibrationWindow     = 300 * time.Millisecond
	DefaultCalibrationMultiplier = 3.0
	DefaultSmoothing             = 0.3
	DefaultSilenceDelay          = 2000 * time.Millisecond
	DefaultStallTimeout          = 5 * time.Second
)

// Config holds the detector tuning. Zero fields are replaced by defaults in
// [Config.WithDefaults].
type Config struct {
	// BaseThreshold is the lowest threshold the detector will ever use, on the
	// normalised RMS scale [0, 1]. It keeps a silent calibration window from
	// producing a hypersensitive detector.
	BaseThreshold float64 `yaml:"base_threshold"`

	// CalibrationWindow is how much audio at stream start is used to measure
	// the noise floor.
	CalibrationWindow time.Duration `yaml:"calibration_window"`

	// CalibrationMultiplier scales the measured noise floor into the threshold.
	CalibrationMultiplier float64 `yaml:"calibration_multiplier"`

	// Smoothing is the weight α of the previous envelope value:
	// smoothed = α·smoothed + (1-α)·raw. Range [0, 1).
	Smoothing float64 `yaml:"smoothing"`

	// SilenceDelay is how long the envelope must stay at or below the
	// threshold before speech is considered finished.
	SilenceDelay time.Duration `yaml:"silence_delay"`

	// StallTimeout ends an open speech segment after this much wall-clock
	// time without any frame (muted track, network stall). Zero disables it.
	// WithDefaults leaves it alone.
	StallTimeout time.Duration `yaml:"stall_timeout"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		BaseThreshold:         DefaultBaseThreshold,
		CalibrationWindow:     DefaultCalibrationWindow,
		CalibrationMultiplier: DefaultCalibrationMultiplier,
		Smoothing:             DefaultSmoothing,
		SilenceDelay:          DefaultSilenceDelay,
		StallTimeout:          DefaultStallTimeout,
	}
}

// WithDefaults returns a copy of c with unset fields filled from
// [DefaultConfig]. Smoothing and StallTimeout are left alone since 0 is a
// valid value for both.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.BaseThreshold == 0 {
		c.BaseThreshold = d.BaseThreshold
	}
	if c.CalibrationWindow == 0 {
		c.CalibrationWindow = d.CalibrationWindow
	}
	if c.CalibrationMultiplier == 0 {
		c.CalibrationMultiplier = d.CalibrationMultiplier
	}
	if c.SilenceDelay == 0 {
		c.SilenceDelay = d.SilenceDelay
	}
	return c
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	if c.BaseThreshold <= 0 || c.BaseThreshold >= 1 {
		errs = append(errs, fmt.Errorf("vad: base_threshold %v must be in (0, 1)", c.BaseThreshold))
	}
	if c.CalibrationWindow <= 0 {
		errs = append(errs, fmt.Errorf("vad: calibration_window %v must be positive", c.CalibrationWindow))
	}
	if c.CalibrationMultiplier < 1 {
		errs = append(errs, fmt.Errorf("vad: calibration_multiplier %v must be at least 1", c.CalibrationMultiplier))
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		errs = append(errs, fmt.Errorf("vad: smoothing %v must be in [0, 1)", c.Smoothing))
	}
	if c.SilenceDelay <= 0 {
		errs = append(errs, fmt.Errorf("vad: silence_delay %v must be positive", c.SilenceDelay))
	}
	if c.StallTimeout < 0 {
		errs = append(errs, fmt.Errorf("vad: stall_timeout %v must not be negative", c.StallTimeout))
	}
	return errors.Join(errs...)
}

// EventType classifies a detector transition.
type EventType int

const (
	// SpeechStarted fires when the envelope first rises above the threshold.
	SpeechStarted EventType = iota + 1

	// SpeechEnded fires when the envelope stayed at or below the threshold
	// for SilenceDelay, or when the stream stalled for StallTimeout.
	SpeechEnded
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case SpeechStarted:
		return "speech_started"
	case SpeechEnded:
		return "speech_ended"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a speech transition.
type Event struct {
	Type EventType

	// At is the stream time of the level sample that caused the transition.
	At time.Duration

	// Level is the smoothed envelope at that moment.
	Level float64
}
