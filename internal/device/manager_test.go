package device_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/device"
	"github.com/carlosalbertobarbosajunior/voice-translator/internal/device/devicetest"
)

func TestOpenCaptureIsExclusive(t *testing.T) {
	mgr := device.NewManager(&devicetest.Backend{}, nil, nil)

	h, err := mgr.OpenCapture(device.CaptureConfig{})
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}

	if _, err := mgr.OpenCapture(device.CaptureConfig{}); !errors.Is(err, device.ErrDeviceBusy) {
		t.Fatalf("Expected ErrDeviceBusy, got %v", err)
	}

	// playback is a separate slot
	p, err := mgr.OpenPlayback(device.PlaybackConfig{})
	if err != nil {
		t.Fatalf("OpenPlayback failed while capture open: %v", err)
	}
	p.Close()

	h.Close()
	h.Close()

	h2, err := mgr.OpenCapture(device.CaptureConfig{})
	if err != nil {
		t.Fatalf("Reopen after Close failed: %v", err)
	}
	h2.Close()
}

func TestOpenUnavailable(t *testing.T) {
	mgr := device.NewManager(&devicetest.Backend{Unavailable: true}, nil, nil)

	if _, err := mgr.OpenCapture(device.CaptureConfig{}); !errors.Is(err, device.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if _, err := mgr.OpenPlayback(device.PlaybackConfig{}); !errors.Is(err, device.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}

	// the failed open must not hold the slot
	mgr = device.NewManager(&devicetest.Backend{}, nil, nil)
	h, err := mgr.OpenCapture(device.CaptureConfig{})
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	h.Close()
}

func TestReadChunkReturnsFixedSizeInOrder(t *testing.T) {
	backend := &devicetest.Backend{Signal: func(i int) int16 { return int16(i % 1000) }}
	mgr := device.NewManager(backend, nil, nil)

	h, err := mgr.OpenCapture(device.CaptureConfig{ChunkSize: 1024, PeriodSize: 300})
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	next := 0
	for i := 0; i < 3; i++ {
		chunk, err := h.ReadChunk(ctx)
		if err != nil {
			t.Fatalf("ReadChunk %d failed: %v", i, err)
		}
		if chunk.Frames != 1024 || len(chunk.Data) != 2048 {
			t.Fatalf("Unexpected chunk size: frames=%d bytes=%d", chunk.Frames, len(chunk.Data))
		}
		samples := chunk.PCM().Int16()
		for j, s := range samples {
			if want := int16(next % 1000); s != want {
				t.Fatalf("Chunk %d sample %d: expected %d, got %d", i, j, want, s)
			}
			next++
		}
	}
}

func TestReadChunkAfterSourceStops(t *testing.T) {
	backend := &devicetest.Backend{Frames: 1500}
	mgr := device.NewManager(backend, nil, nil)

	h, err := mgr.OpenCapture(device.CaptureConfig{ChunkSize: 1024})
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.ReadChunk(ctx); err != nil {
		t.Fatalf("First chunk failed: %v", err)
	}
	if _, err := h.ReadChunk(ctx); !errors.Is(err, device.ErrStreamStopped) {
		t.Fatalf("Expected ErrStreamStopped for the partial tail, got %v", err)
	}
}

func TestReadChunkUnblocksOnCloseAndContext(t *testing.T) {
	// a source with no frames never fills a chunk
	backend := &devicetest.Backend{Period: time.Hour}
	mgr := device.NewManager(backend, nil, nil)

	h, err := mgr.OpenCapture(device.CaptureConfig{})
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.ReadChunk(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := h.ReadChunk(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	h.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, device.ErrHandleClosed) && !errors.Is(err, device.ErrStreamStopped) {
			t.Fatalf("Expected closed handle error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadChunk did not unblock on Close")
	}
}

func TestCaptureQueueIsBounded(t *testing.T) {
	backend := &devicetest.Backend{}
	mgr := device.NewManager(backend, nil, nil)

	h, err := mgr.OpenCapture(device.CaptureConfig{QueueSize: 2, PeriodSize: 64})
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	defer h.Close()

	// nobody reads: the backend must drop instead of growing
	deadline := time.Now().Add(2 * time.Second)
	for h.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Dropped() == 0 {
		t.Fatal("Expected periods to be dropped when the queue is full")
	}
}

func TestPlaybackDrains(t *testing.T) {
	backend := &devicetest.Backend{}
	mgr := device.NewManager(backend, nil, nil)

	h, err := mgr.OpenPlayback(device.PlaybackConfig{PeriodSize: 512})
	if err != nil {
		t.Fatalf("OpenPlayback failed: %v", err)
	}
	defer h.Close()

	if err := h.Start(); err == nil {
		t.Fatal("Expected error starting without loaded audio")
	}

	pcm := audio.PCM{Samples: make([]float32, 4000), SampleRate: audio.CanonicalSampleRate}
	if err := h.Load(pcm); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if h.Busy() {
		t.Fatal("Handle must not be busy before Start")
	}
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Busy() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if h.Busy() {
		t.Fatal("Playback never drained")
	}
	if got := backend.PlayedFrames(); got != 4000 {
		t.Errorf("Expected 4000 frames rendered, got %d", got)
	}
}

func TestPlaybackStopHaltsOutput(t *testing.T) {
	backend := &devicetest.Backend{Period: 5 * time.Millisecond}
	mgr := device.NewManager(backend, nil, nil)

	h, err := mgr.OpenPlayback(device.PlaybackConfig{PeriodSize: 16})
	if err != nil {
		t.Fatalf("OpenPlayback failed: %v", err)
	}
	defer h.Close()

	if err := h.Load(audio.PCM{Samples: make([]float32, 16000), SampleRate: 16000}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !h.Busy() {
		t.Fatal("Expected busy after Start")
	}

	h.Stop()
	if h.Busy() {
		t.Fatal("Expected not busy after Stop")
	}
	played := backend.PlayedFrames()
	time.Sleep(20 * time.Millisecond)
	if backend.PlayedFrames() != played {
		t.Error("Output continued after Stop")
	}
}

func TestResolveDevice(t *testing.T) {
	backend := &devicetest.Backend{
		Inputs: []device.Info{
			{ID: "a1", Name: "Built-in Microphone", Default: true},
			{ID: "b2", Name: "USB Headset"},
		},
	}
	mgr := device.NewManager(backend, nil, nil)

	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"b2", "b2", false},
		{"headset", "b2", false},
		{"MICRO", "a1", false},
		{"bluetooth", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := mgr.ResolveDevice(device.Capture, tt.query)
			if tt.wantErr {
				if !errors.Is(err, device.ErrDeviceUnavailable) {
					t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveDevice failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHandlesSafeFromManyGoroutines(t *testing.T) {
	mgr := device.NewManager(&devicetest.Backend{}, nil, nil)

	h, err := mgr.OpenPlayback(device.PlaybackConfig{})
	if err != nil {
		t.Fatalf("OpenPlayback failed: %v", err)
	}
	_ = h.Load(audio.PCM{Samples: make([]float32, 1000), SampleRate: 16000})
	_ = h.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Busy()
			h.Stop()
			h.Close()
		}()
	}
	wg.Wait()

	if _, err := mgr.OpenPlayback(device.PlaybackConfig{}); err != nil {
		t.Fatalf("Playback slot not released: %v", err)
	}
}
