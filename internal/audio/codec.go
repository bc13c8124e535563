package audio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DecodeError reports input that could not be parsed as any recognized container or codec.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s audio: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ErrNoTranscoder is returned when a container needs an external transcoder and none is configured.
var ErrNoTranscoder = errors.New("no transcoder configured for compressed formats")

// Transcoder converts an arbitrary container into a mono WAV image at the given rate.
type Transcoder interface {
	ToWAV(ctx context.Context, data []byte, format string, sampleRate int) ([]byte, error)
}

// Codec normalizes audio into canonical PCM and encodes PCM for storage and playback.
type Codec struct {
	sampleRate int
	transcoder Transcoder
}

// NewCodec creates a codec producing PCM at sampleRate (CanonicalSampleRate when <= 0).
// A nil transcoder limits decoding to WAV and raw PCM input.
func NewCodec(sampleRate int, transcoder Transcoder) *Codec {
	if sampleRate <= 0 {
		sampleRate = CanonicalSampleRate
	}
	return &Codec{sampleRate: sampleRate, transcoder: transcoder}
}

// SampleRate returns the rate decoded buffers are resampled to.
func (c *Codec) SampleRate() int {
	return c.sampleRate
}

// DecodeString strips an optional data-URL prefix, base64-decodes the payload
// and decodes the resulting bytes.
func (c *Codec) DecodeString(ctx context.Context, payload, format string) (PCM, error) {
	format = normalizeFormat(format)
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		payload = payload[idx+1:]
	}
	payload = strings.TrimSpace(payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// browsers occasionally drop padding
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return PCM{}, &DecodeError{Format: format, Err: fmt.Errorf("invalid base64 payload: %w", err)}
		}
	}

	return c.Decode(ctx, data, format)
}

// Decode turns container bytes into mono PCM at the codec sample rate.
// format is a hint ("wav", "webm", "ogg", "mp3", "pcm", ...); WAV input is
// detected by signature regardless of the hint.
func (c *Codec) Decode(ctx context.Context, data []byte, format string) (PCM, error) {
	format = normalizeFormat(format)
	if len(data) == 0 {
		return PCM{}, &DecodeError{Format: format, Err: ErrEmptyBuffer}
	}

	var (
		pcm PCM
		err error
	)
	switch {
	case IsWAV(data):
		pcm, err = decodeWAV(data)
		if err != nil && c.transcoder != nil {
			pcm, err = c.transcode(ctx, data, "wav")
		}
	case format == "pcm" || format == "s16le" || format == "raw":
		if len(data)%2 != 0 {
			err = fmt.Errorf("raw PCM length must be even (got %d bytes)", len(data))
			break
		}
		pcm = FromLE16(data, 1, c.sampleRate)
	case format == "wav":
		err = fmt.Errorf("invalid WAV file: missing RIFF/WAVE header")
	default:
		pcm, err = c.transcode(ctx, data, format)
	}
	if err != nil {
		return PCM{}, &DecodeError{Format: format, Err: err}
	}

	pcm = Resample(pcm, c.sampleRate)
	if err := pcm.Validate(); err != nil {
		return PCM{}, &DecodeError{Format: format, Err: err}
	}

	return pcm, nil
}

// DecodeFile reads and decodes an audio file, taking the format from its extension.
func (c *Codec) DecodeFile(ctx context.Context, path string) (PCM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PCM{}, fmt.Errorf("failed to read audio file %s: %w", path, err)
	}
	return c.Decode(ctx, data, strings.TrimPrefix(filepath.Ext(path), "."))
}

func (c *Codec) transcode(ctx context.Context, data []byte, format string) (PCM, error) {
	if c.transcoder == nil {
		return PCM{}, ErrNoTranscoder
	}

	wavData, err := c.transcoder.ToWAV(ctx, data, format, c.sampleRate)
	if err != nil {
		return PCM{}, err
	}

	return decodeWAV(wavData)
}

// Encode writes the buffer as a 16-bit mono WAV image at its own sample rate.
func (c *Codec) Encode(pcm PCM) ([]byte, error) {
	if err := pcm.Validate(); err != nil {
		return nil, err
	}
	return EncodeWAV(pcm.Int16(), pcm.SampleRate)
}

// WriteFile encodes the buffer and writes it to path.
func (c *Codec) WriteFile(path string, pcm PCM) error {
	data, err := c.Encode(pcm)
	if err != nil {
		return fmt.Errorf("failed to encode audio: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write audio file %s: %w", path, err)
	}
	return nil
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	format = strings.TrimPrefix(format, "audio/")
	if idx := strings.IndexByte(format, ';'); idx >= 0 {
		format = format[:idx]
	}
	switch format {
	case "":
		return "wav"
	case "wave", "x-wav":
		return "wav"
	case "mpeg":
		return "mp3"
	}
	return format
}
