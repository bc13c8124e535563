// Package devicetest provides an in-memory device.Backend for tests.
package devicetest

import (
	"errors"
	"sync"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/device"
)

// ErrNoDevice is what a Backend with Unavailable set returns on open.
var ErrNoDevice = errors.New("no device")

// Backend simulates capture and playback devices with goroutines that run the
// callbacks every Period.
type Backend struct {
	// Signal produces the sample at the given absolute frame index. Nil means silence.
	Signal func(frame int) int16
	// Frames limits the capture source; the stream stops once it is exhausted. Zero is unlimited.
	Frames int
	// Period between callbacks; defaults to one millisecond.
	Period time.Duration
	// Unavailable makes every open fail.
	Unavailable bool

	Inputs  []device.Info
	Outputs []device.Info

	mu            sync.Mutex
	captureOpens  int
	playbackOpens int
	played        []byte
	lastCapture   device.CaptureConfig
	lastPlayback  device.PlaybackConfig
}

// Devices lists the configured inputs or outputs
func (b *Backend) Devices(kind device.Kind) ([]device.Info, error) {
	if kind == device.Playback {
		return b.Outputs, nil
	}
	return b.Inputs, nil
}

// OpenCapture returns a stream that emits PeriodSize frames per tick
func (b *Backend) OpenCapture(cfg device.CaptureConfig, cb device.CaptureCallbacks) (device.Stream, error) {
	if b.Unavailable {
		return nil, ErrNoDevice
	}

	b.mu.Lock()
	b.captureOpens++
	b.lastCapture = cfg
	b.mu.Unlock()

	frame := 0
	s := &stream{period: b.period(), onStopped: cb.Stopped}
	s.tick = func() bool {
		frames := cfg.PeriodSize
		if b.Frames > 0 && frame+frames > b.Frames {
			frames = b.Frames - frame
		}
		if frames <= 0 {
			return false
		}

		buf := make([]byte, 0, frames*cfg.Channels*2)
		for i := 0; i < frames; i++ {
			var v int16
			if b.Signal != nil {
				v = b.Signal(frame + i)
			}
			for c := 0; c < cfg.Channels; c++ {
				buf = append(buf, byte(uint16(v)), byte(uint16(v)>>8))
			}
		}
		frame += frames
		cb.Data(buf)
		return true
	}
	return s, nil
}

// OpenPlayback returns a stream that pulls PeriodSize frames per tick and keeps them
func (b *Backend) OpenPlayback(cfg device.PlaybackConfig, cb device.PlaybackCallbacks) (device.Stream, error) {
	if b.Unavailable {
		return nil, ErrNoDevice
	}

	b.mu.Lock()
	b.playbackOpens++
	b.lastPlayback = cfg
	b.mu.Unlock()

	buf := make([]byte, cfg.PeriodSize*cfg.Channels*2)
	s := &stream{period: b.period(), onStopped: cb.Stopped}
	s.tick = func() bool {
		n := cb.Fill(buf)
		if n > 0 {
			b.mu.Lock()
			b.played = append(b.played, buf[:n]...)
			b.mu.Unlock()
		}
		return true
	}
	return s, nil
}

// Close is a no-op
func (b *Backend) Close() error {
	return nil
}

// CaptureOpens returns how many capture streams were opened
func (b *Backend) CaptureOpens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.captureOpens
}

// PlaybackOpens returns how many playback streams were opened
func (b *Backend) PlaybackOpens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playbackOpens
}

// PlayedFrames returns how many bytes of s16le output were rendered, in frames
func (b *Backend) PlayedFrames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	channels := b.lastPlayback.Channels
	if channels < 1 {
		channels = 1
	}
	return len(b.played) / (2 * channels)
}

// LastCapture returns the configuration of the latest capture open
func (b *Backend) LastCapture() device.CaptureConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCapture
}

func (b *Backend) period() time.Duration {
	if b.Period > 0 {
		return b.Period
	}
	return time.Millisecond
}

type stream struct {
	period    time.Duration
	tick      func() bool
	onStopped func()

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stop, s.done)
	return nil
}

func (s *stream) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.tick() {
				// source exhausted, like a device that went away
				if s.onStopped != nil {
					s.onStopped()
				}
				return
			}
		}
	}
}

func (s *stream) Stop() error {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.mu.Unlock()

	if s.onStopped != nil {
		s.onStopped()
	}
	return nil
}

func (s *stream) Close() error {
	return s.Stop()
}
