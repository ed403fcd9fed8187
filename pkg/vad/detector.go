package vad

import (
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
)

// Detector is the energy-based speech state machine. It is not safe for
// concurrent use; [Handle] serialises access for the live case.
type Detector struct {
	cfg Config

	calibrated bool
	calSum     float64
	calCount   int

	noiseFloor float64
	threshold  float64
	smoothed   float64

	speaking       bool
	silencePending bool
	silenceSince   time.Duration
}

// NewDetector returns a detector in the calibrating state. cfg is used as
// given; call [Config.WithDefaults] first if fields may be unset.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, threshold: cfg.BaseThreshold}
}

// Process feeds one level sample and returns the transition it caused, if
// any. Samples whose time lies inside the calibration window only update the
// noise estimate; the first sample at or past the window end completes
// calibration.
func (d *Detector) Process(l audio.Level) (Event, bool) {
	if !d.calibrated {
		d.calSum += l.RMS
		d.calCount++
		if l.At >= d.cfg.CalibrationWindow {
			d.finishCalibration()
		}
		return Event{}, false
	}

	d.smoothed = d.cfg.Smoothing*d.smoothed + (1-d.cfg.Smoothing)*l.RMS

	if d.smoothed > d.threshold {
		d.silencePending = false
		if !d.speaking {
			d.speaking = true
			return Event{Type: SpeechStarted, At: l.At, Level: d.smoothed}, true
		}
		return Event{}, false
	}

	if !d.speaking {
		return Event{}, false
	}
	if !d.silencePending {
		d.silencePending = true
		d.silenceSince = l.At
	}
	if l.At-d.silenceSince >= d.cfg.SilenceDelay {
		d.speaking = false
		d.silencePending = false
		return Event{Type: SpeechEnded, At: l.At, Level: d.smoothed}, true
	}
	return Event{}, false
}

func (d *Detector) finishCalibration() {
	if d.calCount > 0 {
		d.noiseFloor = d.calSum / float64(d.calCount)
	}
	d.threshold = max(d.cfg.BaseThreshold, d.noiseFloor*d.cfg.CalibrationMultiplier)
	d.smoothed = d.noiseFloor
	d.calibrated = true
}

// EndSpeech closes an open speech segment at stream time at without waiting
// for the silence countdown. It reports false when nobody is speaking.
func (d *Detector) EndSpeech(at time.Duration) (Event, bool) {
	if !d.speaking {
		return Event{}, false
	}
	d.speaking = false
	d.silencePending = false
	return Event{Type: SpeechEnded, At: at, Level: d.smoothed}, true
}

// ResetSpeaking forces the detector out of the speaking state and cancels a
// pending silence countdown without emitting an event.
func (d *Detector) ResetSpeaking() {
	d.speaking = false
	d.silencePending = false
}

// Calibrated reports whether the noise floor has been measured.
func (d *Detector) Calibrated() bool { return d.calibrated }

// Speaking reports whether the detector currently considers the candidate
// to be speaking.
func (d *Detector) Speaking() bool { return d.speaking }

// Level returns the smoothed envelope.
func (d *Detector) Level() float64 { return d.smoothed }

// Threshold returns the active threshold. Before calibration completes it is
// BaseThreshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// NoiseFloor returns the mean calibration level.
func (d *Detector) NoiseFloor() float64 { return d.noiseFloor }
