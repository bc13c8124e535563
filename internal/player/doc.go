// Package player renders PCM buffers or audio files on the playback device.
// Replaying supersedes the current playback; every playback that is not
// superseded reports completion exactly once.
package player
