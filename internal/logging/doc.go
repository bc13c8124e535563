// Package logging builds the process log/slog logger from configuration.
package logging
