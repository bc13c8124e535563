package translator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
)

// fakeEngine records the languages each stage saw and optionally blocks
// inside Transcribe until released.
type fakeEngine struct {
	cfg     Configuration
	outRate int

	entered chan struct{}
	release chan struct{}

	failStage Stage

	mu    sync.Mutex
	calls []string
}

func (e *fakeEngine) record(s string) {
	e.mu.Lock()
	e.calls = append(e.calls, s)
	e.mu.Unlock()
}

func (e *fakeEngine) Transcribe(ctx context.Context, pcm audio.PCM, language string) (string, error) {
	e.record("transcribe:" + language)
	if e.entered != nil {
		close(e.entered)
		<-e.release
	}
	if e.failStage == StageTranscribe {
		return "", errors.New("model offline")
	}
	return "olá mundo", nil
}

func (e *fakeEngine) Translate(ctx context.Context, text, source, target string) (string, error) {
	e.record("translate:" + source + ">" + target)
	if e.failStage == StageTranslate {
		return "", errors.New("model offline")
	}
	return "hello world", nil
}

func (e *fakeEngine) Synthesize(ctx context.Context, text, language string) (audio.PCM, error) {
	e.record("synthesize:" + language)
	if e.failStage == StageSynthesize {
		return audio.PCM{}, errors.New("model offline")
	}
	rate := e.outRate
	if rate == 0 {
		rate = 22050
	}
	return audio.PCM{Samples: make([]float32, rate/2), SampleRate: rate}, nil
}

type factory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	build   func(cfg Configuration) *fakeEngine
	err     error
}

func (f *factory) New(ctx context.Context, cfg Configuration) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := &fakeEngine{cfg: cfg}
	if f.build != nil {
		e = f.build(cfg)
	}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *factory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func speech() audio.PCM {
	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = 0.2
	}
	return audio.PCM{Samples: samples, SampleRate: audio.CanonicalSampleRate}
}

func counter(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	var total float64
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		total += pb.GetCounter().GetValue()
	}
	return total
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		target  string
		wantErr bool
	}{
		{name: "pt-BR to en", source: PortugueseBR, target: English},
		{name: "en to pt-BR", source: English, target: PortugueseBR},
		{name: "equal languages", source: English, target: English, wantErr: true},
		{name: "unsupported source", source: "fr", target: English, wantErr: true},
		{name: "unsupported target", source: English, target: "de", wantErr: true},
		{name: "empty", source: "", target: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &factory{}
			o, err := New(DefaultConfiguration(), f.New, nil, nil)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			err = o.Configure(tt.source, tt.target)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfiguration) {
					t.Fatalf("Expected ErrInvalidConfiguration, got %v", err)
				}
				if got := o.Configuration(); got != DefaultConfiguration() {
					t.Errorf("Configuration changed on failure: %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Configure failed: %v", err)
			}
			want := Configuration{Source: tt.source, Target: tt.target}
			if got := o.Configuration(); got != want {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	f := &factory{}
	if _, err := New(Configuration{Source: English, Target: English}, f.New, nil, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
	if _, err := New(DefaultConfiguration(), nil, nil, nil); err == nil {
		t.Error("Expected error for nil factory")
	}
}

func TestLanguages(t *testing.T) {
	langs := Languages()
	if len(langs) != 2 {
		t.Fatalf("Expected 2 languages, got %d", len(langs))
	}
	langs[0].Name = "changed"
	if l, _ := LookupLanguage(PortugueseBR); l.Name != "Portuguese (Brazil)" {
		t.Errorf("Languages must return a copy, got %q", l.Name)
	}
	if !IsSupported(English) || IsSupported("es") {
		t.Error("Unexpected support table")
	}
}

func TestRunPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	f := &factory{}
	o, err := New(DefaultConfiguration(), f.New, nil, m)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := o.Run(context.Background(), speech())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.SourceText == "" || res.TargetText == "" {
		t.Errorf("Expected non-empty texts, got %q / %q", res.SourceText, res.TargetText)
	}
	if res.Audio.SampleRate != audio.CanonicalSampleRate {
		t.Errorf("Expected 16000 Hz output, got %d", res.Audio.SampleRate)
	}
	if res.Audio.Len() == 0 {
		t.Error("Expected output audio")
	}
	if res.Configuration != DefaultConfiguration() {
		t.Errorf("Unexpected configuration in result: %v", res.Configuration)
	}

	// engine is cached across runs with the same configuration
	if _, err := o.Run(context.Background(), speech()); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if f.count() != 1 {
		t.Errorf("Expected one engine, got %d", f.count())
	}
	if got := counter(t, m.PipelineRuns); got != 2 {
		t.Errorf("Expected 2 pipeline runs, got %f", got)
	}
}

func TestRunRejectsEmptyAudio(t *testing.T) {
	f := &factory{}
	o, _ := New(DefaultConfiguration(), f.New, nil, nil)

	_, err := o.Run(context.Background(), audio.PCM{SampleRate: audio.CanonicalSampleRate})
	if !errors.Is(err, audio.ErrEmptyBuffer) {
		t.Fatalf("Expected ErrEmptyBuffer, got %v", err)
	}
	if f.count() != 0 {
		t.Error("Engine must not be built for rejected input")
	}
}

func TestRunStageFailure(t *testing.T) {
	for _, stage := range []Stage{StageTranscribe, StageTranslate, StageSynthesize} {
		t.Run(string(stage), func(t *testing.T) {
			f := &factory{build: func(cfg Configuration) *fakeEngine {
				return &fakeEngine{cfg: cfg, failStage: stage}
			}}
			o, _ := New(DefaultConfiguration(), f.New, nil, nil)

			res, err := o.Run(context.Background(), speech())
			var perr *PipelineError
			if !errors.As(err, &perr) {
				t.Fatalf("Expected PipelineError, got %v", err)
			}
			if perr.Stage != stage {
				t.Errorf("Expected stage %s, got %s", stage, perr.Stage)
			}
			if res.SourceText != "" || res.TargetText != "" || res.Audio.Len() != 0 {
				t.Error("Expected no partial results")
			}
		})
	}
}

func TestRunInitializationFailure(t *testing.T) {
	f := &factory{err: errors.New("weights missing")}
	o, _ := New(DefaultConfiguration(), f.New, nil, nil)

	_, err := o.Run(context.Background(), speech())
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Stage != StageInitialize {
		t.Fatalf("Expected initialize PipelineError, got %v", err)
	}
}

func TestConfigureRebuildsEngine(t *testing.T) {
	f := &factory{}
	o, _ := New(DefaultConfiguration(), f.New, nil, nil)

	if _, err := o.Run(context.Background(), speech()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := o.Configure(English, PortugueseBR); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	res, err := o.Run(context.Background(), speech())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.count() != 2 {
		t.Errorf("Expected engine rebuilt after Configure, got %d engines", f.count())
	}
	if res.Configuration.Source != English {
		t.Errorf("Expected en source, got %s", res.Configuration.Source)
	}

	// same pair again does not rebuild
	if err := o.Configure(English, PortugueseBR); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := o.Run(context.Background(), speech()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.count() != 2 {
		t.Errorf("Expected no rebuild for unchanged pair, got %d engines", f.count())
	}
}

func TestConfigureDuringRunUsesSnapshot(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	var built atomic.Int32
	f := &factory{build: func(cfg Configuration) *fakeEngine {
		e := &fakeEngine{cfg: cfg}
		if built.Add(1) == 1 {
			e.entered = entered
			e.release = release
		}
		return e
	}}
	o, _ := New(DefaultConfiguration(), f.New, nil, nil)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.Run(context.Background(), speech())
		done <- outcome{res, err}
	}()

	<-entered
	if err := o.Configure(English, PortugueseBR); err != nil {
		t.Fatalf("Configure during run failed: %v", err)
	}
	close(release)

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish")
	}
	if out.err != nil {
		t.Fatalf("In-flight run failed: %v", out.err)
	}
	if out.res.Configuration != DefaultConfiguration() {
		t.Errorf("Expected pre-change configuration, got %v", out.res.Configuration)
	}

	first := f.engines[0]
	first.mu.Lock()
	calls := append([]string(nil), first.calls...)
	first.mu.Unlock()
	want := []string{"transcribe:pt-BR", "translate:pt-BR>en", "synthesize:en"}
	if len(calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}

	if got := o.Configuration(); got.Source != English || got.Target != PortugueseBR {
		t.Errorf("Expected new configuration after run, got %v", got)
	}
}

func TestRunWith(t *testing.T) {
	f := &factory{}
	o, _ := New(DefaultConfiguration(), f.New, nil, nil)

	cfg := Configuration{Source: English, Target: PortugueseBR}
	res, err := o.RunWith(context.Background(), cfg, speech())
	if err != nil {
		t.Fatalf("RunWith failed: %v", err)
	}
	if res.Configuration != cfg {
		t.Errorf("Expected %v, got %v", cfg, res.Configuration)
	}
	if o.Configuration() != cfg {
		t.Errorf("Expected orchestrator switched to %v", cfg)
	}

	_, err = o.RunWith(context.Background(), Configuration{Source: English, Target: English}, speech())
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
	if o.Configuration() != cfg {
		t.Error("Invalid RunWith must not change the configuration")
	}
}

func TestConcurrentRunsAndConfigure(t *testing.T) {
	f := &factory{}
	o, _ := New(DefaultConfiguration(), f.New, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = o.Configure(English, PortugueseBR)
			} else {
				_ = o.Configure(PortugueseBR, English)
			}
		}(i)
		go func() {
			defer wg.Done()
			res, err := o.Run(context.Background(), speech())
			if err != nil {
				t.Errorf("Run failed: %v", err)
				return
			}
			if res.Configuration.Source == res.Configuration.Target {
				t.Errorf("Mixed configuration %v", res.Configuration)
			}
		}()
	}
	wg.Wait()

	for _, e := range f.engines {
		e.mu.Lock()
		for _, c := range e.calls {
			if c == "transcribe:"+e.cfg.Target {
				t.Errorf("Engine for %v transcribed in the target language", e.cfg)
			}
		}
		e.mu.Unlock()
	}
}
