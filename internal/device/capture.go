package device

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
)

// CaptureHandle is an open input stream. All methods are safe from any goroutine.
type CaptureHandle struct {
	cfg     CaptureConfig
	stream  Stream
	release func()
	logger  *slog.Logger
	metrics *metrics.Metrics

	// device periods, bounded; the audio thread drops on overflow
	periods chan []byte
	done    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
	stopOnce  sync.Once

	readMu  sync.Mutex
	pending []byte

	dropped atomic.Uint64
}

func newCaptureHandle(cfg CaptureConfig, logger *slog.Logger, m *metrics.Metrics, release func()) *CaptureHandle {
	return &CaptureHandle{
		cfg:     cfg,
		release: release,
		logger:  logger,
		metrics: m,
		periods: make(chan []byte, cfg.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Config returns the effective capture configuration
func (h *CaptureHandle) Config() CaptureConfig {
	return h.cfg
}

// Dropped returns the number of device periods discarded on queue overflow
func (h *CaptureHandle) Dropped() uint64 {
	return h.dropped.Load()
}

// ReadChunk blocks until ChunkSize frames are available, the context is done,
// the handle is closed or the stream stops.
func (h *CaptureHandle) ReadChunk(ctx context.Context) (Chunk, error) {
	need := h.cfg.ChunkSize * h.cfg.Channels * bytesPerSample

	h.readMu.Lock()
	defer h.readMu.Unlock()

	for len(h.pending) < need {
		// queued periods win over shutdown signals
		select {
		case p := <-h.periods:
			h.pending = append(h.pending, p...)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return Chunk{}, ctx.Err()
		case <-h.done:
			return Chunk{}, ErrHandleClosed
		case <-h.stopped:
			select {
			case p := <-h.periods:
				h.pending = append(h.pending, p...)
			default:
				return Chunk{}, ErrStreamStopped
			}
		case p := <-h.periods:
			h.pending = append(h.pending, p...)
		}
	}

	data := make([]byte, need)
	copy(data, h.pending)
	h.pending = append(h.pending[:0], h.pending[need:]...)

	return Chunk{
		Data:       data,
		Frames:     h.cfg.ChunkSize,
		Channels:   h.cfg.Channels,
		SampleRate: h.cfg.SampleRate,
		Timestamp:  time.Now(),
	}, nil
}

// Close stops the stream and releases the capture slot. It is idempotent and
// safe after a stream failure; device errors are logged.
func (h *CaptureHandle) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		if h.stream != nil {
			if err := h.stream.Stop(); err != nil {
				h.logger.Warn("Failed to stop capture stream", slog.String("error", err.Error()))
			}
			if err := h.stream.Close(); err != nil {
				h.logger.Warn("Failed to close capture stream", slog.String("error", err.Error()))
			}
		}

		if n := h.dropped.Load(); n > 0 {
			h.logger.Warn("Capture periods dropped", slog.Uint64("dropped", n))
		}

		h.release()
	})
}

func (h *CaptureHandle) onData(frames []byte) {
	select {
	case <-h.done:
		return
	default:
	}

	buf := make([]byte, len(frames))
	copy(buf, frames)

	select {
	case h.periods <- buf:
	default:
		h.dropped.Add(1)
		h.metrics.RecordPeriodsDropped(1)
	}
}

func (h *CaptureHandle) onStopped() {
	h.stopOnce.Do(func() { close(h.stopped) })
}
