package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/translator"
)

// OpenAIConfig selects models for the OpenAI-backed engine
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	TranscribeModel string
	TranslateModel  string
	SpeechModel     string
	Voice           string
}

// OpenAIEngine runs the three stages against the OpenAI audio and chat APIs
type OpenAIEngine struct {
	client *openai.Client
	config OpenAIConfig
	codec  *audio.Codec
	logger *slog.Logger
}

// NewOpenAIEngine creates an engine. The API key is required.
func NewOpenAIEngine(config OpenAIConfig, codec *audio.Codec, logger *slog.Logger) (*OpenAIEngine, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key cannot be empty")
	}
	if config.TranscribeModel == "" {
		config.TranscribeModel = openai.Whisper1
	}
	if config.TranslateModel == "" {
		config.TranslateModel = openai.GPT4oMini
	}
	if config.SpeechModel == "" {
		config.SpeechModel = string(openai.TTSModel1)
	}
	if config.Voice == "" {
		config.Voice = string(openai.VoiceAlloy)
	}
	if codec == nil {
		codec = audio.NewCodec(audio.CanonicalSampleRate, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		codec:  codec,
		logger: logger.With(slog.String("component", "speech_openai")),
	}, nil
}

// Transcribe sends the buffer to the transcription endpoint as WAV
func (e *OpenAIEngine) Transcribe(ctx context.Context, pcm audio.PCM, language string) (string, error) {
	wav, err := e.codec.Encode(pcm)
	if err != nil {
		return "", fmt.Errorf("failed to encode audio: %w", err)
	}

	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.config.TranscribeModel,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: isoLanguage(language),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", describeOpenAIError(err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Translate asks a chat model for a plain translation
func (e *OpenAIEngine) Translate(ctx context.Context, text, source, target string) (string, error) {
	prompt := fmt.Sprintf("Translate the user's text from %s to %s. Reply with the translation only.",
		languageName(source), languageName(target))

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.config.TranslateModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", describeOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Synthesize requests WAV speech and decodes it
func (e *OpenAIEngine) Synthesize(ctx context.Context, text, language string) (audio.PCM, error) {
	resp, err := e.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(e.config.SpeechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(e.config.Voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return audio.PCM{}, describeOpenAIError(err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return audio.PCM{}, fmt.Errorf("failed to read speech response: %w", err)
	}
	return e.codec.Decode(ctx, data, "wav")
}

// Factory returns an EngineFactory that shares this engine across configurations
func (e *OpenAIEngine) Factory() translator.EngineFactory {
	return func(ctx context.Context, cfg translator.Configuration) (translator.Engine, error) {
		e.logger.Debug("Using OpenAI engine", slog.String("configuration", cfg.String()))
		return e, nil
	}
}

// isoLanguage maps a supported language code to ISO-639-1
func isoLanguage(code string) string {
	base, _, _ := strings.Cut(code, "-")
	return strings.ToLower(base)
}

func languageName(code string) string {
	if l, ok := translator.LookupLanguage(code); ok {
		return l.Name
	}
	return code
}

func describeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401:
			return fmt.Errorf("invalid OpenAI API key: %w", err)
		case 404:
			return fmt.Errorf("model not found: %w", err)
		case 429:
			return fmt.Errorf("OpenAI rate limit exceeded: %w", err)
		}
	}
	return fmt.Errorf("OpenAI request failed: %w", err)
}
