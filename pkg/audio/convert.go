package audio

import (
	"encoding/binary"
	"fmt"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is 16 kHz mono, the input format speech recognisers expect.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// ToMono converts PCM in format from to mono at dstRate. Channels are
// averaged first so only one channel is resampled. A trailing partial frame
// is dropped.
func ToMono(pcm []byte, from Format, dstRate int) ([]byte, error) {
	if from.SampleRate <= 0 || from.Channels <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: convert %s to %dHz mono: invalid format", from, dstRate)
	}
	mono := pcm
	if from.Channels > 1 {
		mono = encodeSamples(DownmixMono(pcm, from.Channels))
	} else if len(pcm)%2 != 0 {
		mono = pcm[:len(pcm)-1]
	}
	return ResampleMono16(mono, from.SampleRate, dstRate), nil
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := Samples(pcm)
	dstSamples := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := src[srcIdx]
		s1 := s0
		if srcIdx+1 < len(src) {
			s1 = src[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return encodeSamples(out)
}

func encodeSamples(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
