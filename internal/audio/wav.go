package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVHeader represents the canonical 44-byte header written by EncodeWAV
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

const wavHeaderSize = 44

// EncodeWAV encodes mono PCM-16 samples into a WAV file image
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// IsWAV reports whether data starts with a RIFF/WAVE signature
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// decodeWAV demuxes any integer PCM WAV (extra chunks, any channel count and
// bit depth) into mono PCM at the file's native rate.
func decodeWAV(data []byte) (PCM, error) {
	if !IsWAV(data) {
		return PCM{}, fmt.Errorf("invalid WAV file: missing RIFF/WAVE header")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return PCM{}, fmt.Errorf("invalid WAV file: unreadable fmt chunk")
	}

	if dec.WavAudioFormat != 1 {
		return PCM{}, fmt.Errorf("unsupported WAV audio format: %d (only integer PCM is supported)", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("failed to read WAV samples: %w", err)
	}

	return intBufferToPCM(buf, int(dec.BitDepth))
}

// intBufferToPCM normalizes an interleaved integer buffer by the magnitude of
// its bit depth and downmixes it.
func intBufferToPCM(buf *goaudio.IntBuffer, bitDepth int) (PCM, error) {
	if buf == nil || buf.Format == nil {
		return PCM{}, fmt.Errorf("WAV buffer has no format")
	}
	if len(buf.Data) == 0 {
		return PCM{}, fmt.Errorf("no audio data found")
	}
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}

	var scale float64
	var offset float64
	switch bitDepth {
	case 8:
		// 8-bit WAV is unsigned
		scale, offset = 128, 128
	case 16, 24, 32:
		scale = float64(int64(1) << (bitDepth - 1))
	default:
		return PCM{}, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32((float64(v) - offset) / scale)
	}

	return PCM{
		Samples:    Downmix(samples, channels),
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// WAVInfo describes a WAV file image
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file image
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if !IsWAV(data) {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF/WAVE header")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: unreadable fmt chunk")
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to locate data chunk: %w", err)
	}

	bytesPerFrame := uint32(dec.BitDepth) / 8 * uint32(dec.NumChans)
	if bytesPerFrame == 0 || dec.SampleRate == 0 {
		return nil, fmt.Errorf("invalid WAV format: bit depth %d, channels %d, sample rate %d",
			dec.BitDepth, dec.NumChans, dec.SampleRate)
	}

	dataSize := uint32(dec.PCMLen())
	numSamples := dataSize / bytesPerFrame

	return &WAVInfo{
		SampleRate:    dec.SampleRate,
		Channels:      dec.NumChans,
		BitsPerSample: dec.BitDepth,
		Duration:      float64(numSamples) / float64(dec.SampleRate),
		DataSize:      dataSize,
		NumSamples:    numSamples,
	}, nil
}
