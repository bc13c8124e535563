// Package artifact stores synthesized output audio as WAV files addressed by
// opaque ids. Artifacts live for the lifetime of the process.
package artifact
