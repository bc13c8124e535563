package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg transcodes containers the codec cannot demux natively by piping
// them through the ffmpeg binary.
type FFmpeg struct {
	Path string
}

// NewFFmpeg returns a transcoder using the given binary, or "ffmpeg" from PATH.
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

// Available reports whether the binary can be resolved.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// ToWAV runs: ffmpeg -f <format> -i pipe:0 -ac 1 -ar <rate> -f wav pipe:1
func (f *FFmpeg) ToWAV(ctx context.Context, data []byte, format string, sampleRate int) ([]byte, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if demuxer := ffmpegDemuxer(format); demuxer != "" {
		args = append(args, "-f", demuxer)
	}
	args = append(args,
		"-i", "pipe:0",
		"-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, f.Path, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}

	return patchStreamedWAV(stdout.Bytes()), nil
}

// ffmpegDemuxer maps a format hint to an ffmpeg demuxer name. Unknown hints
// are left to ffmpeg's probing.
func ffmpegDemuxer(format string) string {
	switch format {
	case "webm", "ogg", "wav", "mp3", "flac", "aac":
		return format
	case "opus":
		return "ogg"
	case "m4a", "mp4":
		return "mov"
	}
	return ""
}

// patchStreamedWAV fixes the RIFF and data sizes ffmpeg leaves unset when it
// writes WAV to a non-seekable pipe.
func patchStreamedWAV(data []byte) []byte {
	if !IsWAV(data) {
		return data
	}
	putLE32(data[4:8], uint32(len(data)-8))

	// walk chunks after "WAVE"
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(uint32(data[pos+4]) | uint32(data[pos+5])<<8 | uint32(data[pos+6])<<16 | uint32(data[pos+7])<<24)
		if id == "data" {
			putLE32(data[pos+4:pos+8], uint32(len(data)-pos-8))
			break
		}
		if size < 0 || pos+8+size > len(data) {
			break
		}
		pos += 8 + size + size%2
	}
	return data
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
