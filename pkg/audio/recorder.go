package audio

import "sync"

// Recorder accumulates PCM for one answer turn. Frames written while the
// recorder is not armed are dropped. It is safe for concurrent use; the
// sampler tap writes while the turn controller arms and collects.
type Recorder struct {
	mu         sync.Mutex
	armed      bool
	pcm        []byte
	sampleRate int
	channels   int
}

// Arm discards anything buffered and starts capturing.
func (r *Recorder) Arm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
	r.pcm = nil
}

// Armed reports whether frames are currently being captured.
func (r *Recorder) Armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

// Write appends frame when armed. The format of the first captured frame
// defines the format of the take; frames in a different format are dropped.
func (r *Recorder) Write(frame AudioFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed || len(frame.Data) == 0 {
		return
	}
	if len(r.pcm) == 0 {
		r.sampleRate, r.channels = frame.SampleRate, frame.Channels
	} else if frame.SampleRate != r.sampleRate || frame.Channels != r.channels {
		return
	}
	r.pcm = append(r.pcm, frame.Data...)
}

// Take disarms the recorder and returns the captured PCM with its format.
func (r *Recorder) Take() (pcm []byte, sampleRate, channels int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pcm, sampleRate, channels = r.pcm, r.sampleRate, r.channels
	r.armed = false
	r.pcm = nil
	return pcm, sampleRate, channels
}
