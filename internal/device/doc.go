// Package device owns the process-wide audio endpoints. Manager hands out at
// most one capture and one playback handle at a time; handles read fixed-size
// PCM-16 chunks from a bounded queue or render loaded PCM. MalgoBackend talks
// to the host through miniaudio, and any Backend can stand in for it.
package device
