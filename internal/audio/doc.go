// Package audio normalizes heterogeneous audio into canonical mono 16 kHz PCM.
// It decodes WAV and raw PCM-16 natively, hands other containers to an ffmpeg
// transcoder, resamples and downmixes, and encodes PCM back into WAV images.
// Buffer accumulates captured chunks in capture order.
package audio
