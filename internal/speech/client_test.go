package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/translator"
)

func testPCM() audio.PCM {
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.25
	}
	return audio.PCM{Samples: samples, SampleRate: audio.CanonicalSampleRate}
}

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Endpoint:   url + "/",
		MaxRetries: retries,
		MaxBackoff: time.Millisecond,
		Timeout:    5 * time.Second,
	}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

// modelServer mimics the model server endpoints
func modelServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if !audio.IsWAV(data) {
			http.Error(w, "not a wav", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"text": fmt.Sprintf(" olá (%s, %s) ", r.FormValue("language"), r.FormValue("sample_rate")),
		})
	})
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"text": req.SourceLanguage + ">" + req.TargetLanguage + ":" + req.Text,
		})
	})
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		samples := make([]int16, 2205)
		wav, _ := audio.EncodeWAV(samples, 22050)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientStages(t *testing.T) {
	srv := modelServer(t)
	c := newTestClient(t, srv.URL, 0)
	ctx := context.Background()

	text, err := c.Transcribe(ctx, testPCM(), "pt-BR")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "olá (pt-BR, 16000)" {
		t.Errorf("Unexpected transcription %q", text)
	}

	translated, err := c.Translate(ctx, "olá", "pt-BR", "en")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if translated != "pt-BR>en:olá" {
		t.Errorf("Unexpected translation %q", translated)
	}

	pcm, err := c.Synthesize(ctx, "hello", "en")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if pcm.SampleRate != audio.CanonicalSampleRate {
		t.Errorf("Expected 16000 Hz, got %d", pcm.SampleRate)
	}
	if pcm.Len() == 0 {
		t.Error("Expected samples")
	}

	stats := c.GetStats()
	if stats.TotalRequests != 3 || stats.SuccessRequests != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestClientRetries(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		failures  int32
		wantErr   bool
		wantCalls int32
	}{
		{name: "5xx retried", status: http.StatusBadGateway, failures: 2, wantCalls: 3},
		{name: "429 retried", status: http.StatusTooManyRequests, failures: 1, wantCalls: 2},
		{name: "4xx not retried", status: http.StatusBadRequest, failures: 5, wantErr: true, wantCalls: 1},
		{name: "retries exhausted", status: http.StatusServiceUnavailable, failures: 10, wantErr: true, wantCalls: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= tt.failures {
					http.Error(w, "busy", tt.status)
					return
				}
				json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, 3)
			got, err := c.Translate(context.Background(), "x", "pt-BR", "en")

			if calls.Load() != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, calls.Load())
			}
			if tt.wantErr {
				var statusErr *StatusError
				if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.status {
					t.Fatalf("Expected StatusError %d, got %v", tt.status, err)
				}
				if c.GetStats().FailedRequests != 1 {
					t.Error("Expected one failed request")
				}
				return
			}
			if err != nil || got != "ok" {
				t.Fatalf("Expected ok, got %q, %v", got, err)
			}
		})
	}
}

func TestClientUndecodableSynthesis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not audio"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Synthesize(context.Background(), "hello", "en")
	var decodeErr *audio.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}
	if c.GetStats().TotalRetries != 0 {
		t.Error("Decode failures must not be retried")
	}
}

func TestClientContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, MaxRetries: 5, MaxBackoff: time.Second}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Translate(ctx, "x", "pt-BR", "en")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Cancellation did not interrupt backoff")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}, nil, nil, nil); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&StatusError{StatusCode: 500}, true},
		{&StatusError{StatusCode: 429}, true},
		{&StatusError{StatusCode: 404}, false},
		{fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 503}), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("invalid character"), false},
	}

	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStubThroughOrchestrator(t *testing.T) {
	o, err := translator.New(translator.DefaultConfiguration(), (&Stub{}).Factory(), nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := o.Run(context.Background(), testPCM())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.HasPrefix(res.SourceText, "[pt-BR]") || !strings.HasPrefix(res.TargetText, "[en]") {
		t.Errorf("Unexpected texts %q / %q", res.SourceText, res.TargetText)
	}
	if res.Audio.SampleRate != audio.CanonicalSampleRate || res.Audio.Len() == 0 {
		t.Errorf("Unexpected audio %d samples at %d Hz", res.Audio.Len(), res.Audio.SampleRate)
	}
}

func TestHTTPEngineThroughOrchestrator(t *testing.T) {
	srv := modelServer(t)
	factory, closeFn, err := NewFactory(Options{
		Engine: EngineHTTP,
		HTTP:   Config{Endpoint: srv.URL},
	}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	defer closeFn()

	o, err := translator.New(translator.DefaultConfiguration(), factory, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := o.Run(context.Background(), testPCM())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.SourceText == "" || res.TargetText == "" {
		t.Error("Expected texts")
	}
	if res.Audio.SampleRate != audio.CanonicalSampleRate {
		t.Errorf("Expected 16000 Hz, got %d", res.Audio.SampleRate)
	}
}

func TestNewFactory(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "default stub", opts: Options{}},
		{name: "stub", opts: Options{Engine: EngineStub}},
		{name: "http without endpoint", opts: Options{Engine: EngineHTTP}, wantErr: true},
		{name: "openai without key", opts: Options{Engine: EngineOpenAI}, wantErr: true},
		{name: "openai", opts: Options{Engine: EngineOpenAI, OpenAI: OpenAIConfig{APIKey: "sk-test"}}},
		{name: "unknown", opts: Options{Engine: "whisper.cpp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, closeFn, err := NewFactory(tt.opts, nil, nil, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFactory failed: %v", err)
			}
			if factory == nil || closeFn == nil {
				t.Fatal("Expected factory and close function")
			}
			if err := closeFn(); err != nil {
				t.Errorf("close failed: %v", err)
			}
		})
	}
}
