package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
)

// PlaybackHandle is an open output stream. All methods are safe from any goroutine.
type PlaybackHandle struct {
	cfg     PlaybackConfig
	stream  Stream
	release func()
	logger  *slog.Logger

	// serializes stream Stop and Close
	opMu sync.Mutex

	mu      sync.Mutex
	data    []byte
	pos     int
	started bool
	drained bool
	closed  bool

	closeOnce sync.Once
}

func newPlaybackHandle(cfg PlaybackConfig, logger *slog.Logger, release func()) *PlaybackHandle {
	return &PlaybackHandle{
		cfg:     cfg,
		release: release,
		logger:  logger,
	}
}

// Load replaces the queued audio, resampled to the stream rate
func (h *PlaybackHandle) Load(pcm audio.PCM) error {
	if err := pcm.Validate(); err != nil {
		return fmt.Errorf("cannot load playback audio: %w", err)
	}

	samples := audio.Resample(pcm, h.cfg.SampleRate).Int16()
	channels := h.cfg.Channels
	data := make([]byte, 0, len(samples)*channels*bytesPerSample)
	for _, s := range samples {
		for c := 0; c < channels; c++ {
			data = append(data, byte(uint16(s)), byte(uint16(s)>>8))
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	h.data = data
	h.pos = 0
	h.drained = false
	return nil
}

// Start begins output of the loaded audio
func (h *PlaybackHandle) Start() error {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	if h.data == nil {
		h.mu.Unlock()
		return fmt.Errorf("no audio loaded")
	}
	h.started = true
	h.mu.Unlock()

	if err := h.stream.Start(); err != nil {
		h.mu.Lock()
		h.started = false
		h.mu.Unlock()
		return unavailable("start playback device", err)
	}
	return nil
}

// Busy reports whether loaded audio is still being rendered. It turns false
// only after the device requested data past the end of the buffer.
func (h *PlaybackHandle) Busy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started && !h.drained && !h.closed
}

// Stop halts output immediately. No-op after Close.
func (h *PlaybackHandle) Stop() {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	h.drained = true
	closed := h.closed
	h.mu.Unlock()

	if !closed && h.stream != nil {
		if err := h.stream.Stop(); err != nil {
			h.logger.Warn("Failed to stop playback stream", slog.String("error", err.Error()))
		}
	}
}

// Close stops the stream and releases the playback slot. Idempotent.
func (h *PlaybackHandle) Close() {
	h.closeOnce.Do(func() {
		h.opMu.Lock()
		defer h.opMu.Unlock()

		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		if h.stream != nil {
			if err := h.stream.Stop(); err != nil {
				h.logger.Warn("Failed to stop playback stream", slog.String("error", err.Error()))
			}
			if err := h.stream.Close(); err != nil {
				h.logger.Warn("Failed to close playback stream", slog.String("error", err.Error()))
			}
		}

		h.release()
	})
}

func (h *PlaybackHandle) fill(out []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || h.drained || h.closed {
		return 0
	}
	if h.pos >= len(h.data) {
		// the previous period held the tail; nothing is left in flight
		h.drained = true
		return 0
	}

	n := copy(out, h.data[h.pos:])
	h.pos += n
	return n
}

func (h *PlaybackHandle) onStopped() {
	h.mu.Lock()
	h.drained = true
	h.mu.Unlock()
}
