package audio

import (
	"encoding/binary"
	"math"
)

// fullScale is the magnitude of the most negative int16 sample, used to
// normalise amplitudes into [0, 1].
const fullScale = 32768.0

// Samples decodes interleaved 16-bit little-endian PCM into int16 samples.
// A trailing odd byte is ignored.
func Samples(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// DownmixMono averages interleaved channels into a mono sample slice. When
// channels is 1 or less the samples are decoded unchanged.
func DownmixMono(pcm []byte, channels int) []int16 {
	if channels <= 1 {
		return Samples(pcm)
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]int16, frames)
	for i := range frames {
		var sum int
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[idx:])))
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}

// RMS returns the normalised root-mean-square amplitude of the frame after
// down-mixing to mono. Empty or malformed frames yield 0.
func RMS(frame AudioFrame) float64 {
	samples := DownmixMono(frame.Data, frame.Channels)
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / fullScale
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Float32Mono converts PCM to mono float32 samples in [-1, 1], the input
// format expected by whisper.cpp.
func Float32Mono(pcm []byte, channels int) []float32 {
	samples := DownmixMono(pcm, channels)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / fullScale
	}
	return out
}
