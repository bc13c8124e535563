// Package translator owns the language configuration and drives the
// transcribe, translate and synthesize pipeline against a speech engine.
package translator
