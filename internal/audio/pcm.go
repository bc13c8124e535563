package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// CanonicalSampleRate is the sample rate every component exchanges audio at.
const CanonicalSampleRate = 16000

// int16Scale is the magnitude of the signed 16-bit range used for normalization.
const int16Scale = 32768.0

// ErrEmptyBuffer is returned when a PCM buffer without samples is used where audio is required.
var ErrEmptyBuffer = errors.New("empty audio buffer")

// PCM is a mono buffer of normalized float samples in [-1, 1].
type PCM struct {
	Samples    []float32
	SampleRate int
}

// Channels always reports 1: buffers are downmixed before they become PCM.
func (p PCM) Channels() int {
	return 1
}

// Len returns the number of samples.
func (p PCM) Len() int {
	return len(p.Samples)
}

// Duration returns the playback length of the buffer.
func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(p.Samples)) / float64(p.SampleRate) * float64(time.Second))
}

// Validate checks that the buffer can be handed to a consumer.
func (p PCM) Validate() error {
	if len(p.Samples) == 0 {
		return ErrEmptyBuffer
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	return nil
}

// Int16 converts the samples to signed 16-bit PCM, clamping out of range values.
func (p PCM) Int16() []int16 {
	out := make([]int16, len(p.Samples))
	for i, s := range p.Samples {
		v := math.Round(float64(s) * int16Scale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// FromInt16 builds a PCM buffer from signed 16-bit samples.
func FromInt16(samples []int16, sampleRate int) PCM {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / int16Scale
	}
	return PCM{Samples: out, SampleRate: sampleRate}
}

// FromLE16 converts interleaved little-endian 16-bit frames into mono PCM.
// A trailing odd byte is ignored.
func FromLE16(data []byte, channels, sampleRate int) PCM {
	if channels < 1 {
		channels = 1
	}
	n := len(data) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		samples[i] = float32(v) / int16Scale
	}
	return PCM{Samples: Downmix(samples, channels), SampleRate: sampleRate}
}

// Downmix averages interleaved channels into a single channel.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[f*channels+c]
		}
		out[f] = sum / float32(channels)
	}
	return out
}

// Resample converts the buffer to the target rate using linear interpolation.
func Resample(p PCM, targetRate int) PCM {
	if targetRate <= 0 || p.SampleRate <= 0 || p.SampleRate == targetRate {
		return p
	}
	if len(p.Samples) == 0 {
		return PCM{SampleRate: targetRate}
	}

	ratio := float64(p.SampleRate) / float64(targetRate)
	outLen := int(math.Round(float64(len(p.Samples)) * float64(targetRate) / float64(p.SampleRate)))
	if outLen < 1 {
		outLen = 1
	}

	out := make([]float32, outLen)
	last := len(p.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = p.Samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = p.Samples[idx]*(1-frac) + p.Samples[idx+1]*frac
	}

	return PCM{Samples: out, SampleRate: targetRate}
}

// MeanAbsAmplitude returns the mean absolute sample value of the buffer.
func MeanAbsAmplitude(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}
