package device

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
)

// Manager hands out the process-wide capture and playback handles.
// At most one handle of each kind is open at a time.
type Manager struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	captureOpen  bool
	playbackOpen bool
}

// NewManager creates a device manager over the given backend
func NewManager(backend Backend, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend: backend,
		logger:  logger.With(slog.String("component", "device")),
		metrics: m,
	}
}

// Devices lists the endpoints of the given kind
func (m *Manager) Devices(kind Kind) ([]Info, error) {
	devices, err := m.backend.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s devices: %w", kind, err)
	}
	return devices, nil
}

// ResolveDevice maps a device ID or a case-insensitive name fragment to a device ID.
// An empty query selects the system default and returns "".
func (m *Manager) ResolveDevice(kind Kind, query string) (string, error) {
	if query == "" {
		return "", nil
	}

	devices, err := m.Devices(kind)
	if err != nil {
		return "", err
	}

	for _, d := range devices {
		if d.ID == query {
			return d.ID, nil
		}
	}

	needle := strings.ToLower(query)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			return d.ID, nil
		}
	}

	return "", fmt.Errorf("%w: no %s device matches %q", ErrDeviceUnavailable, kind, query)
}

// OpenCapture opens and starts the input stream
func (m *Manager) OpenCapture(cfg CaptureConfig) (*CaptureHandle, error) {
	cfg = cfg.withDefaults()

	if err := m.acquire(Capture); err != nil {
		m.metrics.RecordDeviceOpenFailure(Capture.String(), "busy")
		return nil, err
	}

	h := newCaptureHandle(cfg, m.logger, m.metrics, func() { m.release(Capture) })

	stream, err := m.backend.OpenCapture(cfg, CaptureCallbacks{
		Data:    h.onData,
		Stopped: h.onStopped,
	})
	if err != nil {
		m.release(Capture)
		m.metrics.RecordDeviceOpenFailure(Capture.String(), "open")
		return nil, unavailable("open capture device", err)
	}
	h.stream = stream

	if err := stream.Start(); err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			m.logger.Warn("Failed to close capture stream after start failure", slog.String("error", closeErr.Error()))
		}
		m.release(Capture)
		m.metrics.RecordDeviceOpenFailure(Capture.String(), "start")
		return nil, unavailable("start capture device", err)
	}

	m.logger.Debug("Capture stream opened",
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("channels", cfg.Channels),
		slog.Int("chunk_size", cfg.ChunkSize),
		slog.String("device_id", cfg.DeviceID))

	return h, nil
}

// OpenPlayback opens the output stream. Output starts with PlaybackHandle.Start.
func (m *Manager) OpenPlayback(cfg PlaybackConfig) (*PlaybackHandle, error) {
	cfg = cfg.withDefaults()

	if err := m.acquire(Playback); err != nil {
		m.metrics.RecordDeviceOpenFailure(Playback.String(), "busy")
		return nil, err
	}

	h := newPlaybackHandle(cfg, m.logger, func() { m.release(Playback) })

	stream, err := m.backend.OpenPlayback(cfg, PlaybackCallbacks{
		Fill:    h.fill,
		Stopped: h.onStopped,
	})
	if err != nil {
		m.release(Playback)
		m.metrics.RecordDeviceOpenFailure(Playback.String(), "open")
		return nil, unavailable("open playback device", err)
	}
	h.stream = stream

	m.logger.Debug("Playback stream opened",
		slog.Int("sample_rate", cfg.SampleRate),
		slog.String("device_id", cfg.DeviceID))

	return h, nil
}

// Close releases the backend
func (m *Manager) Close() error {
	return m.backend.Close()
}

func (m *Manager) acquire(kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	held := &m.captureOpen
	if kind == Playback {
		held = &m.playbackOpen
	}
	if *held {
		return fmt.Errorf("%w: a %s handle is already open", ErrDeviceBusy, kind)
	}
	*held = true
	return nil
}

func (m *Manager) release(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if kind == Playback {
		m.playbackOpen = false
	} else {
		m.captureOpen = false
	}
}

func unavailable(op string, err error) error {
	if errors.Is(err, ErrDeviceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrDeviceUnavailable, err)
}
