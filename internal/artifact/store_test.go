package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/metrics"
)

func testPCM(n int) audio.PCM {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(i%100) / 200
	}
	return audio.PCM{Samples: samples, SampleRate: audio.CanonicalSampleRate}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil, nil, metrics.NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestPutGet(t *testing.T) {
	s := newStore(t)

	id, err := s.Put(testPCM(1600))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	a, ok := s.Get(id)
	if !ok {
		t.Fatal("Expected artifact to be found")
	}
	if a.ID != id || a.Samples != 1600 || a.SampleRate != audio.CanonicalSampleRate {
		t.Errorf("Unexpected artifact %+v", a)
	}
	if filepath.Dir(a.Path) != s.Dir() {
		t.Errorf("Artifact written outside the scratch dir: %s", a.Path)
	}
	if base := filepath.Base(a.Path); base != "translated_"+id+".wav" {
		t.Errorf("Unexpected file name %s", base)
	}
	if a.Duration().Milliseconds() != 100 {
		t.Errorf("Expected 100ms, got %s", a.Duration())
	}

	// the file decodes back to the stored audio
	pcm, err := audio.NewCodec(audio.CanonicalSampleRate, nil).DecodeFile(context.Background(), a.Path)
	if err != nil {
		t.Fatalf("DecodeFile failed: %v", err)
	}
	if pcm.Len() != 1600 {
		t.Errorf("Expected 1600 samples, got %d", pcm.Len())
	}
}

func TestGetUnknown(t *testing.T) {
	s := newStore(t)
	if _, ok := s.Get("does-not-exist"); ok {
		t.Error("Expected unknown id to be absent")
	}
	if _, _, err := s.Open("does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetAfterExternalDelete(t *testing.T) {
	s := newStore(t)
	id, err := s.Put(testPCM(160))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	a, _ := s.Get(id)
	if err := os.Remove(a.Path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, ok := s.Get(id); ok {
		t.Error("Expected deleted artifact to be absent")
	}
	if _, _, err := s.Open(id); !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrFileRemoved) {
		t.Errorf("Expected ErrNotFound and ErrFileRemoved, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	s := newStore(t)
	id, _ := s.Put(testPCM(320))

	f, a, err := s.Open(id)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !audio.IsWAV(data) || len(data) != a.Size {
		t.Errorf("Expected %d bytes of WAV, got %d", a.Size, len(data))
	}
}

func TestPutEmpty(t *testing.T) {
	s := newStore(t)
	if _, err := s.Put(audio.PCM{SampleRate: 16000}); !errors.Is(err, audio.ErrEmptyBuffer) {
		t.Errorf("Expected ErrEmptyBuffer, got %v", err)
	}
	if s.Len() != 0 {
		t.Error("Failed Put must not register")
	}
}

func TestConcurrentPut(t *testing.T) {
	s := newStore(t)

	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Put(testPCM(160))
			if err != nil {
				t.Errorf("Put failed: %v", err)
				return
			}
			ids <- id
			s.Get(id)
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("Duplicate id %s", id)
		}
		seen[id] = true
		if strings.TrimSpace(id) == "" {
			t.Error("Empty id")
		}
	}
	if s.Len() != n {
		t.Errorf("Expected %d artifacts, got %d", n, s.Len())
	}
}
