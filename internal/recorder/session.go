package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/device"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/vad"
)

var (
	// ErrAlreadyRecording is returned by Start while the session is recording.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrSessionClosed is returned by Start once the session has stopped. Sessions are single use.
	ErrSessionClosed = errors.New("recording session already stopped")
)

// State of a recording session
type State int32

const (
	Idle State = iota
	Recording
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Reasons a session finished
const (
	ReasonStopped     = "stopped"
	ReasonSilence     = "silence"
	ReasonMaxDuration = "max_duration"
	ReasonDeviceError = "device_error"
)

// CaptureOpener opens the process capture handle.
type CaptureOpener interface {
	OpenCapture(cfg device.CaptureConfig) (*device.CaptureHandle, error)
}

// Config holds recording parameters
type Config struct {
	SampleRate int
	ChunkSize  int
	DeviceID   string
	// QueueSize bounds buffered device periods; zero uses the device default.
	QueueSize int

	// StopTimeout bounds how long Stop waits for the capture loop.
	StopTimeout time.Duration
	// MaxDuration ends the recording once this much audio was captured. Zero is unlimited.
	MaxDuration time.Duration

	// SilenceStop enables the auto-stop variant.
	SilenceStop      bool
	SilenceThreshold float64
	SilenceChunks    int

	// OnProgress receives elapsed wall-clock time after each chunk. It runs on
	// its own goroutine and only sees the latest value.
	OnProgress func(elapsed time.Duration)
}

// DefaultConfig returns the fixed-duration defaults
func DefaultConfig() Config {
	return Config{
		SampleRate:       audio.CanonicalSampleRate,
		ChunkSize:        device.DefaultChunkSize,
		StopTimeout:      2 * time.Second,
		SilenceThreshold: vad.DefaultThreshold,
		SilenceChunks:    vad.DefaultSilenceChunks,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = d.SilenceThreshold
	}
	if c.SilenceChunks <= 0 {
		c.SilenceChunks = d.SilenceChunks
	}
	return c
}

// Stats summarizes a session
type Stats struct {
	State        string        `json:"state"`
	Reason       string        `json:"reason,omitempty"`
	Chunks       uint32        `json:"chunks"`
	Samples      int           `json:"samples"`
	SilentChunks uint64        `json:"silent_chunks"`
	Dropped      uint64        `json:"dropped_periods"`
	Duration     time.Duration `json:"duration"`
}

// Session owns one in-progress capture
type Session struct {
	opener  CaptureOpener
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	state     State
	handle    *device.CaptureHandle
	buffer    *audio.Buffer
	gate      *vad.Processor
	cancel    context.CancelFunc
	startTime time.Time
	reason    string

	loopDone chan struct{}
	quit     chan struct{}
	done     chan struct{}
	progress chan time.Duration

	finalizeOnce sync.Once
	result       audio.PCM
	hasResult    bool
}

// New creates an idle session
func New(opener CaptureOpener, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Session{
		opener:   opener,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "recorder")),
		metrics:  m,
		state:    Idle,
		buffer:   audio.NewBuffer(cfg.SampleRate, 1),
		loopDone: make(chan struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		progress: make(chan time.Duration, 1),
	}
}

// Start opens the capture device and spawns the capture loop. It returns
// immediately.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Recording, Stopping:
		return ErrAlreadyRecording
	case Stopped:
		return ErrSessionClosed
	}

	var gate *vad.Processor
	if s.cfg.SilenceStop {
		var err error
		gate, err = vad.NewProcessor(s.cfg.SilenceThreshold, s.cfg.SilenceChunks)
		if err != nil {
			return fmt.Errorf("invalid silence detection config: %w", err)
		}
	}

	handle, err := s.opener.OpenCapture(device.CaptureConfig{
		SampleRate: s.cfg.SampleRate,
		Channels:   1,
		ChunkSize:  s.cfg.ChunkSize,
		QueueSize:  s.cfg.QueueSize,
		DeviceID:   s.cfg.DeviceID,
	})
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.handle = handle
	s.gate = gate
	s.cancel = cancel
	s.startTime = time.Now()
	s.state = Recording

	go s.run(ctx)
	go s.notify()

	s.metrics.RecordRecordingStarted()
	s.logger.Info("Recording started",
		slog.Int("sample_rate", s.cfg.SampleRate),
		slog.Int("chunk_size", s.cfg.ChunkSize),
		slog.Bool("silence_stop", s.cfg.SilenceStop),
		slog.Duration("max_duration", s.cfg.MaxDuration))

	return nil
}

// Stop ends the recording and returns the captured audio. The boolean is
// false when nothing was captured. Repeated and concurrent calls return the
// same result.
func (s *Session) Stop() (audio.PCM, bool) {
	s.finalize(ReasonStopped)
	return s.result, s.hasResult
}

// Done is closed once the session reached Stopped, whichever way it stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session stops on its own or ctx is done, then finalizes it.
func (s *Session) Wait(ctx context.Context) (audio.PCM, bool, error) {
	select {
	case <-s.done:
		return s.result, s.hasResult, nil
	case <-ctx.Done():
		pcm, ok := s.Stop()
		return pcm, ok, ctx.Err()
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Duration returns elapsed wall-clock time while recording, or the captured
// audio length once stopped.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Recording, Stopping:
		return time.Since(s.startTime)
	case Stopped:
		return s.result.Duration()
	}
	return 0
}

// Stats returns capture statistics
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffer.GetStats()
	st := Stats{
		State:   s.state.String(),
		Reason:  s.reason,
		Chunks:  buf.Chunks,
		Samples: buf.Samples,
	}
	if s.gate != nil {
		st.SilentChunks = s.gate.GetStats().SilentChunks
	}
	if s.handle != nil {
		st.Dropped = s.handle.Dropped()
	}
	if s.state == Stopped {
		st.Duration = s.result.Duration()
	} else if s.state != Idle {
		st.Duration = time.Since(s.startTime)
	}
	return st
}

func (s *Session) run(ctx context.Context) {
	reason := s.capture(ctx)
	close(s.loopDone)

	// self-stop goes through the same finalization as Stop
	if reason != "" {
		s.finalize(reason)
	}
}

// capture reads chunks until cancelled or a stop condition hits. It returns
// the stop reason, or "" when cancelled from outside.
func (s *Session) capture(ctx context.Context) string {
	maxSamples := 0
	if s.cfg.MaxDuration > 0 {
		maxSamples = int(s.cfg.MaxDuration.Seconds() * float64(s.cfg.SampleRate))
	}

	for {
		if maxSamples > 0 && s.buffer.Size() >= maxSamples {
			return ReasonMaxDuration
		}

		chunk, err := s.handle.ReadChunk(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ""
			}
			s.logger.Warn("Capture stream ended", slog.String("error", err.Error()))
			return ReasonDeviceError
		}

		s.mu.Lock()
		if s.state != Recording {
			s.mu.Unlock()
			return ""
		}
		if err := s.buffer.Append(chunk.Data); err != nil {
			s.mu.Unlock()
			s.logger.Warn("Dropping malformed chunk", slog.String("error", err.Error()))
			continue
		}
		elapsed := time.Since(s.startTime)
		s.mu.Unlock()

		silent := false
		stop := false
		if s.gate != nil {
			result := s.gate.Process(chunk.PCM().Samples)
			silent = result.Silent
			stop = result.ShouldStop
		}
		s.metrics.RecordChunk(silent)
		s.publish(elapsed)

		if stop {
			s.logger.Info("Silence detected, stopping recording",
				slog.Int("silent_chunks", s.gate.GetStats().CurrentRun))
			return ReasonSilence
		}
	}
}

// publish replaces any undelivered progress value with elapsed
func (s *Session) publish(elapsed time.Duration) {
	for {
		select {
		case s.progress <- elapsed:
			return
		default:
		}
		select {
		case <-s.progress:
		default:
		}
	}
}

func (s *Session) notify() {
	for {
		select {
		case <-s.quit:
			return
		case elapsed := <-s.progress:
			if s.cfg.OnProgress != nil {
				s.cfg.OnProgress(elapsed)
			}
		}
	}
}

func (s *Session) finalize(reason string) {
	s.finalizeOnce.Do(func() {
		s.mu.Lock()
		started := s.cancel != nil
		if !started {
			s.state = Stopped
			s.reason = reason
			s.mu.Unlock()
			close(s.done)
			return
		}
		s.state = Stopping
		s.mu.Unlock()

		s.cancel()

		timer := time.NewTimer(s.cfg.StopTimeout)
		select {
		case <-s.loopDone:
		case <-timer.C:
			s.logger.Warn("Capture loop did not stop in time, returning accumulated audio",
				slog.Duration("timeout", s.cfg.StopTimeout))
		}
		timer.Stop()

		s.handle.Close()
		close(s.quit)

		s.mu.Lock()
		pcm := s.buffer.PCM()
		s.result = pcm
		s.hasResult = pcm.Len() > 0
		s.reason = reason
		s.state = Stopped
		s.mu.Unlock()

		s.metrics.RecordRecordingFinished(reason, pcm.Duration().Seconds())
		s.logger.Info("Recording stopped",
			slog.String("reason", reason),
			slog.Int("samples", pcm.Len()),
			slog.Duration("duration", pcm.Duration()))

		close(s.done)
	})
}
