package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/speech"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/translator"
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Recording   RecordingConfig   `yaml:"recording"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Storage     StorageConfig     `yaml:"storage"`
	Translation TranslationConfig `yaml:"translation"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP API server configuration
type ServerConfig struct {
	Address         string   `yaml:"address"`
	Port            int      `yaml:"port"`
	ReadTimeout     int      `yaml:"read_timeout"`     // seconds
	WriteTimeout    int      `yaml:"write_timeout"`    // seconds
	ShutdownTimeout int      `yaml:"shutdown_timeout"` // seconds
	MaxBodyMB       int      `yaml:"max_body_mb"`
	RateLimit       int      `yaml:"rate_limit"` // translate requests per minute per client, 0 disables
	CORSOrigins     []string `yaml:"cors_origins"`
}

// AudioConfig contains capture format and decoding parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	ChunkSize  int    `yaml:"chunk_size"` // frames per capture chunk
	QueueSize  int    `yaml:"queue_size"` // device periods buffered before dropping
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// RecordingConfig contains recording session parameters
type RecordingConfig struct {
	Device           string  `yaml:"device"`
	StopTimeout      float64 `yaml:"stop_timeout"`   // seconds
	MaxDuration      float64 `yaml:"max_duration"`   // seconds, until-silence cap
	FixedDuration    float64 `yaml:"fixed_duration"` // seconds
	SilenceThreshold float64 `yaml:"silence_threshold"`
	SilenceChunks    int     `yaml:"silence_chunks"`
}

// PlaybackConfig contains playback parameters
type PlaybackConfig struct {
	Device       string `yaml:"device"`
	PollInterval int    `yaml:"poll_interval"` // milliseconds
}

// StorageConfig contains artifact storage parameters
type StorageConfig struct {
	Dir string `yaml:"dir"` // empty means the OS temp dir
}

// TranslationConfig selects the languages and the speech engine
type TranslationConfig struct {
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
	Engine         string `yaml:"engine"` // stub, http or openai
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Timeout        int    `yaml:"timeout"` // seconds
	MaxRetries     int    `yaml:"max_retries"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
}

// OpenAIConfig contains OpenAI engine settings
type OpenAIConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	TranscribeModel string `yaml:"transcribe_model"`
	TranslateModel  string `yaml:"translate_model"`
	SpeechModel     string `yaml:"speech_model"`
	Voice           string `yaml:"voice"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            5000,
			ReadTimeout:     30,
			WriteTimeout:    120,
			ShutdownTimeout: 10,
			MaxBodyMB:       25,
			RateLimit:       30,
			CORSOrigins:     []string{"*"},
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			ChunkSize:  1024,
			QueueSize:  64,
			FFmpegPath: "ffmpeg",
		},
		Recording: RecordingConfig{
			StopTimeout:      2,
			MaxDuration:      30,
			FixedDuration:    5,
			SilenceThreshold: 0.01,
			SilenceChunks:    10,
		},
		Playback: PlaybackConfig{
			PollInterval: 100,
		},
		Translation: TranslationConfig{
			SourceLanguage: translator.PortugueseBR,
			TargetLanguage: translator.English,
			Engine:         speech.EngineStub,
			Timeout:        60,
			MaxRetries:     3,
			MaxConcurrent:  4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// LoadEnvFile loads a .env file into the process environment. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration file over the defaults, applies environment
// overrides and validates the result. An empty path uses the defaults only.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides secrets and endpoints from VT_* and OPENAI_API_KEY
func (c *Config) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("VT_SERVER_ADDRESS", &c.Server.Address)
	setString("VT_SOURCE_LANGUAGE", &c.Translation.SourceLanguage)
	setString("VT_TARGET_LANGUAGE", &c.Translation.TargetLanguage)
	setString("VT_ENGINE", &c.Translation.Engine)
	setString("VT_MODEL_ENDPOINT", &c.Translation.Endpoint)
	setString("VT_MODEL_API_KEY", &c.Translation.APIKey)
	setString("VT_STORAGE_DIR", &c.Storage.Dir)
	setString("VT_FFMPEG_PATH", &c.Audio.FFmpegPath)
	setString("VT_LOG_LEVEL", &c.Logging.Level)
	setString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	setString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)

	if v, ok := os.LookupEnv("VT_SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VT_SERVER_PORT must be an integer, got %q", v)
		}
		c.Server.Port = port
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if c.Translation.Engine == speech.EngineOpenAI && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai config: api_key is required for the openai engine")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadTimeout < 1 || s.WriteTimeout < 1 {
		return fmt.Errorf("read_timeout and write_timeout must be at least 1 second")
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	if s.MaxBodyMB < 1 {
		return fmt.Errorf("max_body_mb must be at least 1, got %d", s.MaxBodyMB)
	}

	if s.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %d", s.RateLimit)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.ChunkSize < 64 || a.ChunkSize > 16384 {
		return fmt.Errorf("chunk_size must be between 64 and 16384 frames, got %d", a.ChunkSize)
	}

	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", a.QueueSize)
	}

	return nil
}

// Validate validates recording configuration
func (r *RecordingConfig) Validate() error {
	if r.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive, got %f", r.StopTimeout)
	}

	if r.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive, got %f", r.MaxDuration)
	}

	if r.FixedDuration <= 0 {
		return fmt.Errorf("fixed_duration must be positive, got %f", r.FixedDuration)
	}

	if r.SilenceThreshold <= 0 || r.SilenceThreshold >= 1 {
		return fmt.Errorf("silence_threshold must be between 0 and 1 (exclusive), got %f", r.SilenceThreshold)
	}

	if r.SilenceChunks < 1 {
		return fmt.Errorf("silence_chunks must be at least 1, got %d", r.SilenceChunks)
	}

	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.PollInterval < 1 {
		return fmt.Errorf("poll_interval must be at least 1 ms, got %d", p.PollInterval)
	}
	return nil
}

// Validate validates translation configuration
func (t *TranslationConfig) Validate() error {
	if _, err := translator.NewConfiguration(t.SourceLanguage, t.TargetLanguage); err != nil {
		return err
	}

	switch t.Engine {
	case speech.EngineStub, speech.EngineOpenAI:
	case speech.EngineHTTP:
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http engine")
		}
	default:
		return fmt.Errorf("engine must be one of [stub, http, openai], got '%s'", t.Engine)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// anything other than stdout or stderr is a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// SpeechOptions maps the translation and openai sections to engine options
func (c *Config) SpeechOptions() speech.Options {
	return speech.Options{
		Engine: c.Translation.Engine,
		HTTP: speech.Config{
			Endpoint:      c.Translation.Endpoint,
			APIKey:        c.Translation.APIKey,
			Timeout:       c.Translation.GetTimeoutDuration(),
			MaxRetries:    c.Translation.MaxRetries,
			MaxConcurrent: c.Translation.MaxConcurrent,
		},
		OpenAI: speech.OpenAIConfig{
			APIKey:          c.OpenAI.APIKey,
			BaseURL:         c.OpenAI.BaseURL,
			TranscribeModel: c.OpenAI.TranscribeModel,
			TranslateModel:  c.OpenAI.TranslateModel,
			SpeechModel:     c.OpenAI.SpeechModel,
			Voice:           c.OpenAI.Voice,
		},
	}
}

// LanguagePair returns the configured translation languages
func (t *TranslationConfig) LanguagePair() translator.Configuration {
	return translator.Configuration{Source: t.SourceLanguage, Target: t.TargetLanguage}
}

// GetAddr returns the listen address
func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// GetReadTimeoutDuration returns the read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetShutdownTimeoutDuration returns the shutdown timeout as a time.Duration
func (s *ServerConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetMaxBodyBytes returns the request body limit in bytes
func (s *ServerConfig) GetMaxBodyBytes() int64 {
	return int64(s.MaxBodyMB) << 20
}

// GetStopTimeoutDuration returns the recording stop timeout as a time.Duration
func (r *RecordingConfig) GetStopTimeoutDuration() time.Duration {
	return time.Duration(r.StopTimeout * float64(time.Second))
}

// GetMaxDuration returns the until-silence cap as a time.Duration
func (r *RecordingConfig) GetMaxDuration() time.Duration {
	return time.Duration(r.MaxDuration * float64(time.Second))
}

// GetFixedDuration returns the fixed recording length as a time.Duration
func (r *RecordingConfig) GetFixedDuration() time.Duration {
	return time.Duration(r.FixedDuration * float64(time.Second))
}

// GetPollIntervalDuration returns the playback poll interval as a time.Duration
func (p *PlaybackConfig) GetPollIntervalDuration() time.Duration {
	return time.Duration(p.PollInterval) * time.Millisecond
}

// GetTimeoutDuration returns the model server timeout as a time.Duration
func (t *TranslationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
