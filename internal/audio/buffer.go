package audio

import (
	"fmt"
	"sync"
)

// Buffer accumulates captured PCM-16 chunks in capture order
type Buffer struct {
	sampleRate int
	channels   int

	// Raw little-endian 16-bit frames, appended as chunks arrive
	rawAudioData []byte

	chunks uint32

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	SampleRate  int     `json:"sample_rate"`
	Chunks      uint32  `json:"chunks"`
	Samples     int     `json:"samples"`
	DurationSec float64 `json:"duration_seconds"`
}

// NewBuffer creates an empty capture buffer
func NewBuffer(sampleRate, channels int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	return &Buffer{
		sampleRate:   sampleRate,
		channels:     channels,
		rawAudioData: make([]byte, 0, sampleRate*2*channels), // one second
	}
}

// Append copies one chunk of interleaved PCM-16 frames onto the end of the buffer
func (b *Buffer) Append(rawData []byte) error {
	frameSize := 2 * b.channels
	if len(rawData)%frameSize != 0 {
		return fmt.Errorf("audio data length must be a multiple of %d (got %d bytes)", frameSize, len(rawData))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rawAudioData = append(b.rawAudioData, rawData...)
	b.chunks++

	return nil
}

// PCM returns the accumulated audio as mono normalized PCM
func (b *Buffer) PCM() PCM {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return FromLE16(b.rawAudioData, b.channels, b.sampleRate)
}

// Size returns the current number of frames in the buffer
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rawAudioData) / (2 * b.channels)
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	samples := len(b.rawAudioData) / (2 * b.channels)
	duration := float64(0)
	if b.sampleRate > 0 {
		duration = float64(samples) / float64(b.sampleRate)
	}

	return BufferStats{
		SampleRate:  b.sampleRate,
		Chunks:      b.chunks,
		Samples:     samples,
		DurationSec: duration,
	}
}
