package speech

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/translator"
)

// Stub is a deterministic offline engine. Texts describe their inputs and
// synthesized audio is a short tone whose length follows the text.
type Stub struct {
	// Delay is added to every stage
	Delay time.Duration
}

func (s *Stub) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(s.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stub) Transcribe(ctx context.Context, pcm audio.PCM, language string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %.2fs of speech", language, pcm.Duration().Seconds()), nil
}

func (s *Stub) Translate(ctx context.Context, text, source, target string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return strings.Replace(text, "["+source+"]", "["+target+"]", 1), nil
}

func (s *Stub) Synthesize(ctx context.Context, text, language string) (audio.PCM, error) {
	if err := s.wait(ctx); err != nil {
		return audio.PCM{}, err
	}

	// 50ms per character, 440Hz
	n := len(text) * audio.CanonicalSampleRate / 20
	if n == 0 {
		n = audio.CanonicalSampleRate / 20
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*440*float64(i)/audio.CanonicalSampleRate))
	}
	return audio.PCM{Samples: samples, SampleRate: audio.CanonicalSampleRate}, nil
}

// Factory returns an EngineFactory handing out this stub
func (s *Stub) Factory() translator.EngineFactory {
	return func(ctx context.Context, cfg translator.Configuration) (translator.Engine, error) {
		return s, nil
	}
}
