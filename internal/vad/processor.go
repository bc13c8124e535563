package vad

import (
	"fmt"
	"sync"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
)

const (
	// DefaultThreshold is the mean absolute amplitude below which a chunk counts as silent
	DefaultThreshold = 0.01
	// DefaultSilenceChunks is how many consecutive silent chunks are tolerated before stopping
	DefaultSilenceChunks = 10
)

// Processor is an amplitude gate that tracks runs of silent chunks
type Processor struct {
	threshold     float64
	silenceChunks int

	silentRun int

	// Statistics
	totalChunks   uint64
	silentChunks  uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// Result represents the outcome of gating one chunk
type Result struct {
	Amplitude  float64 `json:"amplitude"`   // Mean absolute amplitude of the chunk
	Silent     bool    `json:"silent"`      // Amplitude was below the threshold
	SilentRun  int     `json:"silent_run"`  // Consecutive silent chunks including this one
	ShouldStop bool    `json:"should_stop"` // Run exceeded the tolerated number of chunks
}

// ProcessorStats represents gate statistics
type ProcessorStats struct {
	TotalChunks      uint64    `json:"total_chunks"`
	SilentChunks     uint64    `json:"silent_chunks"`
	SilentPercentage float64   `json:"silent_percentage"`
	CurrentRun       int       `json:"current_run"`
	LastProcessed    time.Time `json:"last_processed"`
	Threshold        float64   `json:"threshold"`
}

// NewProcessor creates a silence gate. The gate reports ShouldStop once more
// than silenceChunks consecutive chunks fall below threshold.
func NewProcessor(threshold float64, silenceChunks int) (*Processor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if silenceChunks <= 0 {
		return nil, fmt.Errorf("silence chunks must be positive, got %d", silenceChunks)
	}

	return &Processor{
		threshold:     threshold,
		silenceChunks: silenceChunks,
	}, nil
}

// Process gates one chunk of normalized samples
func (p *Processor) Process(samples []float32) Result {
	amplitude := audio.MeanAbsAmplitude(samples)

	p.mu.Lock()
	defer p.mu.Unlock()

	silent := amplitude < p.threshold
	if silent {
		p.silentRun++
		p.silentChunks++
	} else {
		p.silentRun = 0
	}
	p.totalChunks++
	p.lastProcessed = time.Now()

	return Result{
		Amplitude:  amplitude,
		Silent:     silent,
		SilentRun:  p.silentRun,
		ShouldStop: p.silentRun > p.silenceChunks,
	}
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	silentPercentage := float64(0)
	if p.totalChunks > 0 {
		silentPercentage = float64(p.silentChunks) / float64(p.totalChunks) * 100
	}

	return ProcessorStats{
		TotalChunks:      p.totalChunks,
		SilentChunks:     p.silentChunks,
		SilentPercentage: silentPercentage,
		CurrentRun:       p.silentRun,
		LastProcessed:    p.lastProcessed,
		Threshold:        p.threshold,
	}
}
