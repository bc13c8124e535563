package audio

import (
	"sync"
	"testing"
)

func le16(values ...int16) []byte {
	out := make([]byte, 0, len(values)*2)
	for _, v := range values {
		out = append(out, byte(uint16(v)), byte(uint16(v)>>8))
	}
	return out
}

func TestNewBuffer(t *testing.T) {
	buffer := NewBuffer(16000, 1)

	if buffer.Size() != 0 {
		t.Errorf("Expected empty buffer, got %d samples", buffer.Size())
	}
	if stats := buffer.GetStats(); stats.Chunks != 0 || stats.SampleRate != 16000 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if buffer.PCM().Len() != 0 {
		t.Error("Expected empty PCM from empty buffer")
	}
}

func TestBufferAppendInOrder(t *testing.T) {
	buffer := NewBuffer(16000, 1)

	chunks := [][]byte{
		le16(100, 200),
		le16(300, 400),
		le16(500, 600),
	}
	for i, c := range chunks {
		if err := buffer.Append(c); err != nil {
			t.Fatalf("Append chunk %d failed: %v", i, err)
		}
	}

	got := buffer.PCM().Int16()
	want := []int16{100, 200, 300, 400, 500, 600}
	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	stats := buffer.GetStats()
	if stats.Chunks != 3 || stats.Samples != 6 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestBufferRejectsPartialFrames(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		data     []byte
	}{
		{"odd bytes mono", 1, []byte{1, 2, 3}},
		{"partial stereo frame", 2, []byte{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := NewBuffer(16000, tt.channels)
			if err := buffer.Append(tt.data); err == nil {
				t.Error("Expected error")
			}
			if buffer.Size() != 0 {
				t.Error("Rejected data must not be stored")
			}
		})
	}
}

func TestBufferStereoDownmix(t *testing.T) {
	buffer := NewBuffer(16000, 2)
	if err := buffer.Append(le16(16384, 0, 0, -16384)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	pcm := buffer.PCM()
	if pcm.Len() != 2 || pcm.Samples[0] != 0.25 || pcm.Samples[1] != -0.25 {
		t.Errorf("Unexpected downmix: %v", pcm.Samples)
	}
	if buffer.Size() != 2 {
		t.Errorf("Expected 2 frames, got %d", buffer.Size())
	}
}

func TestBufferConcurrentAppend(t *testing.T) {
	buffer := NewBuffer(16000, 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = buffer.Append(le16(1, 2, 3, 4))
				_ = buffer.GetStats()
			}
		}()
	}
	wg.Wait()

	if stats := buffer.GetStats(); stats.Chunks != 400 || stats.DurationSec != 0.1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if buffer.Size() != 1600 {
		t.Errorf("Expected 1600 samples, got %d", buffer.Size())
	}
}
