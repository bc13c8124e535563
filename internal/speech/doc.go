// Package speech implements the external speech collaborators used by the
// translator: an HTTP model server client with retry and exponential
// backoff, an OpenAI-backed engine and a deterministic offline stub.
package speech
