// Package server implements the HTTP API of the voice translator: language
// listing, audio translation, artifact download, health and Prometheus
// metrics. Routing is done with chi, with CORS and per-client rate limiting
// on the translate endpoint.
package server
