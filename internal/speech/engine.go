package speech

import (
	"fmt"
	"log/slog"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/translator"
)

// Engine kinds
const (
	EngineStub   = "stub"
	EngineHTTP   = "http"
	EngineOpenAI = "openai"
)

// Options selects and configures an engine
type Options struct {
	Engine string
	HTTP   Config
	OpenAI OpenAIConfig
}

// NewFactory builds the EngineFactory for opts.Engine. The returned close
// function releases the engine's resources.
func NewFactory(opts Options, codec *audio.Codec, logger *slog.Logger, m *metrics.Metrics) (translator.EngineFactory, func() error, error) {
	noop := func() error { return nil }

	switch opts.Engine {
	case EngineStub, "":
		return (&Stub{}).Factory(), noop, nil
	case EngineHTTP:
		client, err := NewClient(opts.HTTP, codec, logger, m)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create model server client: %w", err)
		}
		return client.Factory(), client.Close, nil
	case EngineOpenAI:
		engine, err := NewOpenAIEngine(opts.OpenAI, codec, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OpenAI engine: %w", err)
		}
		return engine.Factory(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine %q", opts.Engine)
	}
}
