package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/artifact"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/player"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/recorder"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/translator"
)

var (
	// ErrNotRecording is returned by StopRecording without an active recording
	ErrNotRecording = errors.New("no recording in progress")
	// ErrNoAudio is returned when a recording captured nothing
	ErrNoAudio = errors.New("no audio captured")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("controller closed")
	// ErrNoPlayer is returned by playback calls on a controller built without a player
	ErrNoPlayer = errors.New("no playback device configured")
)

// Outcome of a translation handled by the controller
type Outcome struct {
	translator.Result
	ArtifactID string
}

// RecordOptions tune a single blocking recording
type RecordOptions struct {
	// MaxDuration bounds the recording. Zero uses the controller default.
	MaxDuration time.Duration
	// UntilSilence stops after sustained silence
	UntilSilence bool
	OnProgress   func(elapsed time.Duration)
}

// Controller drives the record, translate, store and play flow shared by
// the front ends. Each recording gets a fresh single-use recorder session.
type Controller struct {
	opener      recorder.CaptureOpener
	recorderCfg recorder.Config
	orch        *translator.Orchestrator
	store       *artifact.Store
	player      *player.Player
	base        *slog.Logger
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu        sync.Mutex
	recording *recorder.Session
	lastID    string
	closed    bool
}

// New creates a controller. recorderCfg is applied to every recording.
func New(opener recorder.CaptureOpener, recorderCfg recorder.Config, orch *translator.Orchestrator,
	store *artifact.Store, p *player.Player, logger *slog.Logger, m *metrics.Metrics) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		opener:      opener,
		recorderCfg: recorderCfg,
		orch:        orch,
		store:       store,
		player:      p,
		base:        logger,
		logger:      logger.With(slog.String("component", "session")),
		metrics:     m,
	}
}

// StartRecording begins an interactive recording that runs until
// StopRecording or one of the configured stop conditions.
func (c *Controller) StartRecording(onProgress func(time.Duration)) error {
	cfg := c.recorderCfg
	cfg.OnProgress = onProgress
	_, err := c.start(cfg)
	return err
}

func (c *Controller) start(cfg recorder.Config) (*recorder.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.recording != nil {
		select {
		case <-c.recording.Done():
		default:
			return nil, recorder.ErrAlreadyRecording
		}
	}

	rec := recorder.New(c.opener, cfg, c.base, c.metrics)
	if err := rec.Start(); err != nil {
		return nil, err
	}
	c.recording = rec

	c.logger.Info("Session recording started",
		slog.Bool("until_silence", cfg.SilenceStop),
		slog.Duration("max_duration", cfg.MaxDuration))
	return rec, nil
}

// StopRecording ends the current recording and returns its audio.
// A recording that already stopped on its own returns its result once.
func (c *Controller) StopRecording() (audio.PCM, error) {
	c.mu.Lock()
	rec := c.recording
	c.recording = nil
	c.mu.Unlock()

	if rec == nil {
		return audio.PCM{}, ErrNotRecording
	}
	return c.finish(rec)
}

func (c *Controller) finish(rec *recorder.Session) (audio.PCM, error) {
	pcm, ok := rec.Stop()
	stats := rec.Stats()
	c.logger.Info("Session recording stopped",
		slog.String("reason", stats.Reason),
		slog.Uint64("chunks", uint64(stats.Chunks)),
		slog.Duration("duration", stats.Duration))

	if !ok {
		return audio.PCM{}, ErrNoAudio
	}
	return pcm, nil
}

// IsRecording reports whether a recording is capturing
func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	rec := c.recording
	c.mu.Unlock()
	return rec != nil && rec.State() == recorder.Recording
}

// Record captures until a stop condition or ctx is done and returns the audio.
func (c *Controller) Record(ctx context.Context, opts RecordOptions) (audio.PCM, error) {
	cfg := c.recorderCfg
	if opts.MaxDuration > 0 {
		cfg.MaxDuration = opts.MaxDuration
	}
	cfg.SilenceStop = opts.UntilSilence
	cfg.OnProgress = opts.OnProgress

	rec, err := c.start(cfg)
	if err != nil {
		return audio.PCM{}, err
	}

	_, _, waitErr := rec.Wait(ctx)

	c.mu.Lock()
	if c.recording == rec {
		c.recording = nil
	}
	c.mu.Unlock()

	pcm, err := c.finish(rec)
	if waitErr != nil {
		return audio.PCM{}, waitErr
	}
	return pcm, err
}

// Translate runs the pipeline under the current configuration and stores
// the output.
func (c *Controller) Translate(ctx context.Context, pcm audio.PCM) (Outcome, error) {
	res, err := c.orch.Run(ctx, pcm)
	if err != nil {
		return Outcome{}, err
	}
	return c.keep(res)
}

// TranslateWith is Translate for an explicit language pair
func (c *Controller) TranslateWith(ctx context.Context, cfg translator.Configuration, pcm audio.PCM) (Outcome, error) {
	res, err := c.orch.RunWith(ctx, cfg, pcm)
	if err != nil {
		return Outcome{}, err
	}
	return c.keep(res)
}

func (c *Controller) keep(res translator.Result) (Outcome, error) {
	id, err := c.store.Put(res.Audio)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to store translated audio: %w", err)
	}

	c.mu.Lock()
	c.lastID = id
	c.mu.Unlock()

	c.logger.Info("Translation stored",
		slog.String("audio_id", id),
		slog.String("configuration", res.Configuration.String()),
		slog.Duration("took", res.Duration))

	return Outcome{Result: res, ArtifactID: id}, nil
}

// LastArtifact returns the id of the most recent translation
func (c *Controller) LastArtifact() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID, c.lastID != ""
}

// Configure changes the language pair
func (c *Controller) Configure(source, target string) error {
	return c.orch.Configure(source, target)
}

// Configuration returns the current language pair
func (c *Controller) Configuration() translator.Configuration {
	return c.orch.Configuration()
}

// Play renders a stored artifact, superseding any current playback
func (c *Controller) Play(id string, onFinished func()) error {
	if c.player == nil {
		return ErrNoPlayer
	}
	a, ok := c.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", player.ErrArtifactNotFound, id)
	}
	return c.player.Play(player.FromFile(a.Path), onFinished)
}

// PlayPCM renders a buffer directly
func (c *Controller) PlayPCM(pcm audio.PCM, onFinished func()) error {
	if c.player == nil {
		return ErrNoPlayer
	}
	return c.player.Play(player.FromPCM(pcm), onFinished)
}

// StopPlayback halts the current playback
func (c *Controller) StopPlayback() {
	if c.player != nil {
		c.player.Stop()
	}
}

// IsPlaying reports whether audio is being rendered
func (c *Controller) IsPlaying() bool {
	return c.player != nil && c.player.IsPlaying()
}

// Close stops any recording and playback. The controller is unusable afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	rec := c.recording
	c.recording = nil
	c.mu.Unlock()

	if rec != nil {
		rec.Stop()
	}
	c.StopPlayback()

	c.logger.Info("Session controller closed", slog.Int("artifacts", c.store.Len()))
}
