package player

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/device"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
)

// ErrArtifactNotFound is returned by Play when the source file does not exist.
var ErrArtifactNotFound = errors.New("audio artifact not found")

// State of the player
type State int32

const (
	Idle State = iota
	Playing
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// Source is audio the player can render.
type Source interface {
	pcm(ctx context.Context, codec *audio.Codec) (audio.PCM, error)
	String() string
}

type fileSource struct{ path string }

// FromFile plays an audio file decoded through the codec
func FromFile(path string) Source {
	return fileSource{path: path}
}

func (s fileSource) pcm(ctx context.Context, codec *audio.Codec) (audio.PCM, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return audio.PCM{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, s.path)
	}
	return codec.DecodeFile(ctx, s.path)
}

func (s fileSource) String() string { return s.path }

type pcmSource struct{ buf audio.PCM }

// FromPCM plays an in-memory buffer
func FromPCM(pcm audio.PCM) Source {
	return pcmSource{buf: pcm}
}

func (s pcmSource) pcm(context.Context, *audio.Codec) (audio.PCM, error) {
	return s.buf, s.buf.Validate()
}

func (s pcmSource) String() string { return "pcm" }

// PlaybackOpener opens the process playback handle.
type PlaybackOpener interface {
	OpenPlayback(cfg device.PlaybackConfig) (*device.PlaybackHandle, error)
}

// Config holds playback parameters
type Config struct {
	SampleRate   int
	DeviceID     string
	PollInterval time.Duration
}

// DefaultConfig returns playback defaults
func DefaultConfig() Config {
	return Config{
		SampleRate:   audio.CanonicalSampleRate,
		PollInterval: 100 * time.Millisecond,
	}
}

// Player renders one source at a time. Playing while already playing
// supersedes the current playback: it is halted and its onFinished never
// fires. Every other playback fires onFinished exactly once, either after the
// device drained or on Stop.
type Player struct {
	opener  PlaybackOpener
	codec   *audio.Codec
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// serializes Play and Stop
	playMu sync.Mutex

	mu      sync.Mutex
	current *playback
	state   atomic.Int32
}

type playback struct {
	handle     *device.PlaybackHandle
	source     string
	onFinished func()

	// consumed by whoever ends the playback; only that path may fire onFinished
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

// claim reports whether the caller won the right to end this playback
func (pb *playback) claim() bool {
	won := false
	pb.once.Do(func() { won = true })
	return won
}

// New creates an idle player
func New(opener PlaybackOpener, codec *audio.Codec, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.CanonicalSampleRate
	}

	return &Player{
		opener:  opener,
		codec:   codec,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "player")),
		metrics: m,
	}
}

// Play starts rendering src and returns once output has started.
func (p *Player) Play(src Source, onFinished func()) error {
	pcm, err := src.pcm(context.Background(), p.codec)
	if err != nil {
		return err
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()

	p.mu.Lock()
	old := p.current
	p.current = nil
	p.mu.Unlock()

	if old != nil {
		superseded := old.claim()
		p.halt(old)
		if superseded {
			p.metrics.RecordPlaybackFinished("superseded")
			p.logger.Debug("Playback superseded", slog.String("source", old.source))
		}
	}

	handle, err := p.opener.OpenPlayback(device.PlaybackConfig{
		SampleRate: p.cfg.SampleRate,
		Channels:   1,
		DeviceID:   p.cfg.DeviceID,
	})
	if err != nil {
		p.state.Store(int32(Finished))
		return fmt.Errorf("failed to open playback: %w", err)
	}

	if err := handle.Load(pcm); err != nil {
		handle.Close()
		p.state.Store(int32(Finished))
		return err
	}
	if err := handle.Start(); err != nil {
		handle.Close()
		p.state.Store(int32(Finished))
		return fmt.Errorf("failed to start playback: %w", err)
	}

	pb := &playback{
		handle:     handle,
		source:     src.String(),
		onFinished: onFinished,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	p.mu.Lock()
	p.current = pb
	p.state.Store(int32(Playing))
	p.mu.Unlock()

	p.metrics.RecordPlaybackStarted()
	p.logger.Info("Playback started",
		slog.String("source", pb.source),
		slog.Duration("duration", pcm.Duration()))

	go p.watch(pb)

	return nil
}

// Stop halts output and fires onFinished if it has not fired yet. Idempotent.
func (p *Player) Stop() {
	p.playMu.Lock()

	p.mu.Lock()
	pb := p.current
	p.current = nil
	if pb != nil {
		p.state.Store(int32(Finished))
	}
	p.mu.Unlock()

	if pb == nil {
		p.playMu.Unlock()
		return
	}

	won := pb.claim()
	p.halt(pb)
	p.playMu.Unlock()

	if won {
		p.metrics.RecordPlaybackFinished("stopped")
		p.logger.Info("Playback stopped", slog.String("source", pb.source))
		if pb.onFinished != nil {
			pb.onFinished()
		}
	}
}

// IsPlaying reports whether audio is being rendered. Never blocks.
func (p *Player) IsPlaying() bool {
	return State(p.state.Load()) == Playing
}

// State returns the current state
func (p *Player) State() State {
	return State(p.state.Load())
}

// halt stops output, ends the watcher and releases the device
func (p *Player) halt(pb *playback) {
	pb.handle.Stop()
	close(pb.stop)
	<-pb.done
	pb.handle.Close()
}

func (p *Player) watch(pb *playback) {
	drained := p.poll(pb)
	close(pb.done)

	if drained {
		p.complete(pb)
	}
}

func (p *Player) poll(pb *playback) bool {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pb.stop:
			return false
		case <-ticker.C:
			if !pb.handle.Busy() {
				return true
			}
		}
	}
}

func (p *Player) complete(pb *playback) {
	if !pb.claim() {
		return
	}

	pb.handle.Close()

	p.mu.Lock()
	if p.current == pb {
		p.current = nil
		p.state.Store(int32(Finished))
	}
	p.mu.Unlock()

	p.metrics.RecordPlaybackFinished("completed")
	p.logger.Info("Playback finished", slog.String("source", pb.source))

	if pb.onFinished != nil {
		pb.onFinished()
	}
}
