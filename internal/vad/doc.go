// Package vad provides the amplitude-based silence gate used to end
// recordings automatically: a chunk is silent when its mean absolute
// amplitude falls below a threshold.
package vad
