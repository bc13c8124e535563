package device

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoBackend drives the host audio API through miniaudio.
type MalgoBackend struct {
	ctx    *malgo.AllocatedContext
	logger *slog.Logger

	closeOnce sync.Once
}

// NewMalgoBackend initializes a miniaudio context with the platform default backends
func NewMalgoBackend(logger *slog.Logger) (*MalgoBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "miniaudio"))

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize audio context: %v", ErrDeviceUnavailable, err)
	}

	return &MalgoBackend{ctx: ctx, logger: logger}, nil
}

// Devices lists endpoints of the given kind
func (b *MalgoBackend) Devices(kind Kind) ([]Info, error) {
	infos, err := b.ctx.Devices(malgoType(kind))
	if err != nil {
		return nil, err
	}

	out := make([]Info, 0, len(infos))
	for i := range infos {
		info := &infos[i]
		out = append(out, Info{
			ID:      info.ID.String(),
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return out, nil
}

// OpenCapture initializes an s16 input device
func (b *MalgoBackend) OpenCapture(cfg CaptureConfig, cb CaptureCallbacks) (Stream, error) {
	s := &malgoStream{}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodSize)
	deviceConfig.Alsa.NoMMap = 1

	if cfg.DeviceID != "" {
		if err := b.lookup(Capture, cfg.DeviceID, s); err != nil {
			return nil, err
		}
		deviceConfig.Capture.DeviceID = s.id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if cb.Data != nil {
				cb.Data(input)
			}
		},
		Stop: func() {
			if cb.Stopped != nil {
				cb.Stopped()
			}
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	s.device = device

	return s, nil
}

// OpenPlayback initializes an s16 output device
func (b *MalgoBackend) OpenPlayback(cfg PlaybackConfig, cb PlaybackCallbacks) (Stream, error) {
	s := &malgoStream{}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodSize)
	deviceConfig.Alsa.NoMMap = 1

	if cfg.DeviceID != "" {
		if err := b.lookup(Playback, cfg.DeviceID, s); err != nil {
			return nil, err
		}
		deviceConfig.Playback.DeviceID = s.id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			n := 0
			if cb.Fill != nil {
				n = cb.Fill(output)
			}
			clear(output[n:])
		},
		Stop: func() {
			if cb.Stopped != nil {
				cb.Stopped()
			}
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	s.device = device

	return s, nil
}

// Close releases the miniaudio context
func (b *MalgoBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.ctx.Uninit()
		b.ctx.Free()
	})
	return err
}

// lookup copies the native ID of the device into the stream so the pointer
// handed to miniaudio stays valid for the life of the device.
func (b *MalgoBackend) lookup(kind Kind, id string, s *malgoStream) error {
	infos, err := b.ctx.Devices(malgoType(kind))
	if err != nil {
		return err
	}
	for i := range infos {
		if infos[i].ID.String() == id {
			s.id = infos[i].ID
			return nil
		}
	}
	return fmt.Errorf("%w: unknown %s device %q", ErrDeviceUnavailable, kind, id)
}

func malgoType(kind Kind) malgo.DeviceType {
	if kind == Playback {
		return malgo.Playback
	}
	return malgo.Capture
}

type malgoStream struct {
	device *malgo.Device
	id     malgo.DeviceID
}

func (s *malgoStream) Start() error {
	return s.device.Start()
}

func (s *malgoStream) Stop() error {
	if !s.device.IsStarted() {
		return nil
	}
	return s.device.Stop()
}

func (s *malgoStream) Close() error {
	s.device.Uninit()
	return nil
}
