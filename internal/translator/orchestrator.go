package translator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
)

// Stage names a pipeline step
type Stage string

const (
	StageInitialize Stage = "initialize"
	StageTranscribe Stage = "transcribe"
	StageTranslate  Stage = "translate"
	StageSynthesize Stage = "synthesize"
)

// PipelineError reports the stage that failed
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Engine is the external speech collaborator.
type Engine interface {
	Transcribe(ctx context.Context, pcm audio.PCM, language string) (string, error)
	Translate(ctx context.Context, text, source, target string) (string, error)
	Synthesize(ctx context.Context, text, language string) (audio.PCM, error)
}

// EngineFactory builds an engine bound to one configuration. It is called
// lazily on the first run after every configuration change.
type EngineFactory func(ctx context.Context, cfg Configuration) (Engine, error)

// Result of one pipeline run
type Result struct {
	Configuration Configuration
	SourceText    string
	TargetText    string
	Audio         audio.PCM
	Duration      time.Duration
}

// Orchestrator owns the language configuration and the engine built for it.
//
// Runs snapshot the configuration and engine under the lock and execute the
// stages outside it. A run started before Configure completes with the
// languages and engine it snapshotted.
type Orchestrator struct {
	factory    EngineFactory
	sampleRate int
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu         sync.Mutex
	cfg        Configuration
	generation uint64
	engine     Engine
	engineGen  uint64
}

// New creates an orchestrator with a validated initial configuration
func New(cfg Configuration, factory EngineFactory, logger *slog.Logger, m *metrics.Metrics) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("engine factory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		factory:    factory,
		sampleRate: audio.CanonicalSampleRate,
		logger:     logger.With(slog.String("component", "translator")),
		metrics:    m,
		cfg:        cfg,
		generation: 1,
	}, nil
}

// Configure replaces the language pair. On failure the previous pair is kept.
func (o *Orchestrator) Configure(source, target string) error {
	cfg, err := NewConfiguration(source, target)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.apply(cfg)
	return nil
}

// Configuration returns the current pair
func (o *Orchestrator) Configuration() Configuration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// Run executes transcribe, translate and synthesize under the current configuration
func (o *Orchestrator) Run(ctx context.Context, pcm audio.PCM) (Result, error) {
	if err := pcm.Validate(); err != nil {
		return Result{}, err
	}

	cfg, engine, err := o.snapshot(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	return o.run(ctx, cfg, engine, pcm)
}

// RunWith switches to cfg and snapshots it in one critical section, then runs
// the pipeline. It is what per-request callers use.
func (o *Orchestrator) RunWith(ctx context.Context, cfg Configuration, pcm audio.PCM) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := pcm.Validate(); err != nil {
		return Result{}, err
	}

	snap, engine, err := o.snapshot(ctx, &cfg)
	if err != nil {
		return Result{}, err
	}
	return o.run(ctx, snap, engine, pcm)
}

// apply must be called with o.mu held
func (o *Orchestrator) apply(cfg Configuration) {
	if cfg == o.cfg {
		return
	}

	previous := o.cfg
	o.cfg = cfg
	o.generation++
	// the engine for the old pair is dropped; in-flight runs keep their snapshot
	o.engine = nil

	o.metrics.RecordConfigurationChange()
	o.logger.Info("Translation configuration changed",
		slog.String("from", previous.String()),
		slog.String("to", cfg.String()))
}

func (o *Orchestrator) snapshot(ctx context.Context, next *Configuration) (Configuration, Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if next != nil {
		o.apply(*next)
	}

	if o.engine == nil || o.engineGen != o.generation {
		start := time.Now()
		engine, err := o.factory(ctx, o.cfg)
		o.metrics.RecordStage(string(StageInitialize), time.Since(start).Seconds(), err != nil)
		if err != nil {
			o.metrics.RecordPipelineRun("failure", time.Since(start).Seconds())
			return Configuration{}, nil, &PipelineError{Stage: StageInitialize, Err: err}
		}
		o.engine = engine
		o.engineGen = o.generation

		o.metrics.RecordEngineInitialization()
		o.logger.Debug("Speech engine initialized",
			slog.String("configuration", o.cfg.String()),
			slog.Duration("took", time.Since(start)))
	}

	return o.cfg, o.engine, nil
}

func (o *Orchestrator) run(ctx context.Context, cfg Configuration, engine Engine, pcm audio.PCM) (Result, error) {
	start := time.Now()

	fail := func(stage Stage, err error) (Result, error) {
		o.metrics.RecordPipelineRun("failure", time.Since(start).Seconds())
		o.logger.Warn("Pipeline stage failed",
			slog.String("stage", string(stage)),
			slog.String("configuration", cfg.String()),
			slog.String("error", err.Error()))
		return Result{}, &PipelineError{Stage: stage, Err: err}
	}

	pcm = audio.Resample(pcm, o.sampleRate)

	stageStart := time.Now()
	sourceText, err := engine.Transcribe(ctx, pcm, cfg.Source)
	o.metrics.RecordStage(string(StageTranscribe), time.Since(stageStart).Seconds(), err != nil)
	if err != nil {
		return fail(StageTranscribe, err)
	}

	stageStart = time.Now()
	targetText, err := engine.Translate(ctx, sourceText, cfg.Source, cfg.Target)
	o.metrics.RecordStage(string(StageTranslate), time.Since(stageStart).Seconds(), err != nil)
	if err != nil {
		return fail(StageTranslate, err)
	}

	stageStart = time.Now()
	out, err := engine.Synthesize(ctx, targetText, cfg.Target)
	o.metrics.RecordStage(string(StageSynthesize), time.Since(stageStart).Seconds(), err != nil)
	if err != nil {
		return fail(StageSynthesize, err)
	}
	if err := out.Validate(); err != nil {
		return fail(StageSynthesize, fmt.Errorf("synthesizer returned unusable audio: %w", err))
	}
	out = audio.Resample(out, o.sampleRate)

	elapsed := time.Since(start)
	o.metrics.RecordPipelineRun("success", elapsed.Seconds())
	o.logger.Info("Pipeline completed",
		slog.String("configuration", cfg.String()),
		slog.Int("source_chars", len(sourceText)),
		slog.Int("target_chars", len(targetText)),
		slog.Int("output_samples", out.Len()),
		slog.Duration("duration", elapsed))

	return Result{
		Configuration: cfg,
		SourceText:    sourceText,
		TargetText:    targetText,
		Audio:         out,
		Duration:      elapsed,
	}, nil
}
