package device

import (
	"errors"
	"time"

	"github.com/carlosalbertobarbosajunior/voice-translator/internal/audio"
)

var (
	// ErrDeviceUnavailable is returned when no usable device exists or it cannot be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrDeviceBusy is returned when the process already holds a handle of the requested kind.
	ErrDeviceBusy = errors.New("audio device busy")
	// ErrHandleClosed is returned by handle operations after Close.
	ErrHandleClosed = errors.New("audio handle closed")
	// ErrStreamStopped is returned when the device stream stopped on its own.
	ErrStreamStopped = errors.New("audio stream stopped")
)

// Kind selects the direction of a device.
type Kind int

const (
	Capture Kind = iota
	Playback
)

func (k Kind) String() string {
	switch k {
	case Capture:
		return "capture"
	case Playback:
		return "playback"
	}
	return "unknown"
}

// Info describes an audio endpoint reported by a backend.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

const (
	DefaultChunkSize  = 1024
	DefaultQueueSize  = 64
	defaultChannels   = 1
	bytesPerSample    = 2
	defaultPeriodSize = 256
)

// CaptureConfig describes an input stream. Zero values take defaults.
type CaptureConfig struct {
	SampleRate int
	Channels   int
	// ChunkSize is the number of frames returned by each ReadChunk.
	ChunkSize int
	// PeriodSize is the number of frames the backend delivers per callback.
	PeriodSize int
	// QueueSize bounds the number of periods held between the device and ReadChunk.
	QueueSize int
	// DeviceID selects an input; empty means the system default.
	DeviceID string
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.CanonicalSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = defaultChannels
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.PeriodSize <= 0 {
		c.PeriodSize = defaultPeriodSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// PlaybackConfig describes an output stream. Zero values take defaults.
type PlaybackConfig struct {
	SampleRate int
	Channels   int
	PeriodSize int
	DeviceID   string
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.CanonicalSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = defaultChannels
	}
	if c.PeriodSize <= 0 {
		c.PeriodSize = defaultPeriodSize
	}
	return c
}

// Chunk is one fixed-size block of interleaved little-endian 16-bit frames.
type Chunk struct {
	Data       []byte
	Frames     int
	Channels   int
	SampleRate int
	Timestamp  time.Time
}

// PCM converts the chunk to mono normalized samples.
func (c Chunk) PCM() audio.PCM {
	return audio.FromLE16(c.Data, c.Channels, c.SampleRate)
}

// CaptureCallbacks are invoked by a backend from its audio thread.
type CaptureCallbacks struct {
	// Data receives interleaved s16le frames. The slice is only valid during the call.
	Data func(frames []byte)
	// Stopped is called when the stream stops, including after Stop.
	Stopped func()
}

// PlaybackCallbacks are invoked by a backend from its audio thread.
type PlaybackCallbacks struct {
	// Fill writes up to len(out) bytes of s16le frames and returns the count.
	// The backend zero-fills the remainder.
	Fill func(out []byte) int
	Stopped func()
}

// Stream is a backend device stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend abstracts the host audio API.
type Backend interface {
	Devices(kind Kind) ([]Info, error)
	OpenCapture(cfg CaptureConfig, cb CaptureCallbacks) (Stream, error)
	OpenPlayback(cfg PlaybackConfig, cb PlaybackCallbacks) (Stream, error)
	Close() error
}
