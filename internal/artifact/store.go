package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
)

var (
	// ErrNotFound is returned by Open for unknown ids and missing files
	ErrNotFound = errors.New("artifact not found")
	// ErrFileRemoved marks a registered artifact whose file was deleted
	ErrFileRemoved = errors.New("artifact file removed")
)

// Artifact is a stored output file. It is never mutated after Put.
type Artifact struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	SampleRate int       `json:"sample_rate"`
	Samples    int       `json:"samples"`
	Size       int       `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

// Duration of the stored audio
func (a Artifact) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.Samples) * time.Second / time.Duration(a.SampleRate)
}

// Store keeps synthesized audio as WAV files in a scratch directory for the
// lifetime of the process
type Store struct {
	dir     string
	codec   *audio.Codec
	logger  *slog.Logger
	metrics *metrics.Metrics

	artifacts map[string]Artifact
	mu        sync.RWMutex
}

// NewStore creates a store writing to dir, or the OS temp dir when empty
func NewStore(dir string, codec *audio.Codec, logger *slog.Logger, m *metrics.Metrics) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if codec == nil {
		codec = audio.NewCodec(audio.CanonicalSampleRate, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		dir:       dir,
		codec:     codec,
		logger:    logger.With(slog.String("component", "artifact_store")),
		metrics:   m,
		artifacts: make(map[string]Artifact),
	}, nil
}

// Dir returns the scratch directory
func (s *Store) Dir() string {
	return s.dir
}

// Put encodes pcm as WAV, writes translated_<id>.wav and registers it
func (s *Store) Put(pcm audio.PCM) (string, error) {
	if err := pcm.Validate(); err != nil {
		return "", err
	}

	data, err := s.codec.Encode(pcm)
	if err != nil {
		return "", fmt.Errorf("failed to encode artifact: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, "translated_"+id+".wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	a := Artifact{
		ID:         id,
		Path:       path,
		SampleRate: pcm.SampleRate,
		Samples:    pcm.Len(),
		Size:       len(data),
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	s.artifacts[id] = a
	s.mu.Unlock()

	s.metrics.RecordArtifactStored(len(data))
	s.logger.Debug("Artifact stored",
		slog.String("id", id),
		slog.String("path", path),
		slog.Int("size", len(data)))

	return id, nil
}

// Get looks up an artifact. It reports false for unknown ids and for
// entries whose file no longer exists.
func (s *Store) Get(id string) (Artifact, bool) {
	s.mu.RLock()
	a, ok := s.artifacts[id]
	s.mu.RUnlock()
	if !ok {
		return Artifact{}, false
	}

	if _, err := os.Stat(a.Path); err != nil {
		return Artifact{}, false
	}
	return a, true
}

// Open returns the artifact's WAV file for streaming
func (s *Store) Open(id string) (*os.File, Artifact, error) {
	s.mu.RLock()
	a, ok := s.artifacts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	f, err := os.Open(a.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Artifact{}, fmt.Errorf("%w: %w: %s", ErrNotFound, ErrFileRemoved, id)
		}
		return nil, Artifact{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, a, nil
}

// Len returns the number of registered artifacts
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}
