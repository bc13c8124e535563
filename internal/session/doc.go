// Package session ties recording, translation, artifact storage and playback
// into the interactive flow used by the CLI and other front ends.
package session
