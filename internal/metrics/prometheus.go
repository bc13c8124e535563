package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice translator.
// All Record methods are safe on a nil receiver.
type Metrics struct {
	// Device metrics
	CapturePeriodsDropped prometheus.Counter
	DeviceOpenFailures    *prometheus.CounterVec

	// Recording metrics
	ActiveRecordings   prometheus.Gauge
	RecordingsStarted  prometheus.Counter
	RecordingsFinished *prometheus.CounterVec
	RecordingDuration  prometheus.Histogram
	ChunksCaptured     prometheus.Counter
	SilentChunks       prometheus.Counter

	// Playback metrics
	ActivePlaybacks   prometheus.Gauge
	PlaybacksStarted  prometheus.Counter
	PlaybacksFinished *prometheus.CounterVec

	// Pipeline metrics
	PipelineRuns          *prometheus.CounterVec
	PipelineDuration      prometheus.Histogram
	StageDuration         *prometheus.HistogramVec
	StageFailures         *prometheus.CounterVec
	ConfigurationChanges  prometheus.Counter
	EngineInitializations prometheus.Counter
	EngineRetries         *prometheus.CounterVec

	// Codec and artifact metrics
	DecodeFailures  *prometheus.CounterVec
	ArtifactsStored prometheus.Counter
	ArtifactBytes   prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Device metrics
		CapturePeriodsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_capture_periods_dropped_total",
			Help: "Total number of device capture periods dropped because the queue was full",
		}),
		DeviceOpenFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_device_open_failures_total",
			Help: "Total number of failed device opens by kind and reason",
		}, []string{"kind", "reason"}),

		// Recording metrics
		ActiveRecordings: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vt_active_recordings",
			Help: "Current number of active recording sessions",
		}),
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_recordings_started_total",
			Help: "Total number of recording sessions started",
		}),
		RecordingsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_recordings_finished_total",
			Help: "Total number of recording sessions finished by reason",
		}, []string{"reason"}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vt_recording_duration_seconds",
			Help:    "Duration of captured audio in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2 minutes
		}),
		ChunksCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_chunks_captured_total",
			Help: "Total number of audio chunks captured",
		}),
		SilentChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_silent_chunks_total",
			Help: "Total number of captured chunks below the silence threshold",
		}),

		// Playback metrics
		ActivePlaybacks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vt_active_playbacks",
			Help: "Current number of active playbacks",
		}),
		PlaybacksStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_playbacks_started_total",
			Help: "Total number of playbacks started",
		}),
		PlaybacksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_playbacks_finished_total",
			Help: "Total number of playbacks finished by reason",
		}, []string{"reason"}),

		// Pipeline metrics
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_pipeline_runs_total",
			Help: "Total number of translation pipeline runs by status",
		}, []string{"status"}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vt_pipeline_duration_seconds",
			Help:    "End to end duration of successful pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vt_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_stage_failures_total",
			Help: "Total number of pipeline stage failures",
		}, []string{"stage"}),
		ConfigurationChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_configuration_changes_total",
			Help: "Total number of accepted language configuration changes",
		}),
		EngineInitializations: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_engine_initializations_total",
			Help: "Total number of speech engine (re)initializations",
		}),
		EngineRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_engine_retries_total",
			Help: "Total number of retried requests to external speech services",
		}, []string{"operation"}),

		// Codec and artifact metrics
		DecodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_decode_failures_total",
			Help: "Total number of audio payloads that could not be decoded",
		}, []string{"format"}),
		ArtifactsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "vt_artifacts_stored_total",
			Help: "Total number of synthesized audio artifacts stored",
		}),
		ArtifactBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vt_artifact_size_bytes",
			Help:    "Size of stored artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vt_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPeriodsDropped records capture periods discarded on queue overflow
func (m *Metrics) RecordPeriodsDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CapturePeriodsDropped.Add(float64(n))
}

// RecordDeviceOpenFailure records a failed capture or playback open
func (m *Metrics) RecordDeviceOpenFailure(kind, reason string) {
	if m == nil {
		return
	}
	m.DeviceOpenFailures.WithLabelValues(kind, reason).Inc()
}

// RecordRecordingStarted records a recording session start
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
	m.ActiveRecordings.Inc()
}

// RecordRecordingFinished records a finished recording and its captured duration
func (m *Metrics) RecordRecordingFinished(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActiveRecordings.Dec()
	m.RecordingsFinished.WithLabelValues(reason).Inc()
	m.RecordingDuration.Observe(durationSeconds)
}

// RecordChunk records one captured chunk
func (m *Metrics) RecordChunk(silent bool) {
	if m == nil {
		return
	}
	m.ChunksCaptured.Inc()
	if silent {
		m.SilentChunks.Inc()
	}
}

// RecordPlaybackStarted records a playback start
func (m *Metrics) RecordPlaybackStarted() {
	if m == nil {
		return
	}
	m.PlaybacksStarted.Inc()
	m.ActivePlaybacks.Inc()
}

// RecordPlaybackFinished records a playback end ("completed", "stopped", "superseded")
func (m *Metrics) RecordPlaybackFinished(reason string) {
	if m == nil {
		return
	}
	m.ActivePlaybacks.Dec()
	m.PlaybacksFinished.WithLabelValues(reason).Inc()
}

// RecordStage records the duration of one pipeline stage
func (m *Metrics) RecordStage(stage string, durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
	if failed {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordPipelineRun records a complete pipeline run
func (m *Metrics) RecordPipelineRun(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(status).Inc()
	if status == "success" {
		m.PipelineDuration.Observe(durationSeconds)
	}
}

// RecordConfigurationChange records an accepted configuration change
func (m *Metrics) RecordConfigurationChange() {
	if m == nil {
		return
	}
	m.ConfigurationChanges.Inc()
}

// RecordEngineInitialization records a lazy engine (re)creation
func (m *Metrics) RecordEngineInitialization() {
	if m == nil {
		return
	}
	m.EngineInitializations.Inc()
}

// RecordEngineRetry records a retried external request
func (m *Metrics) RecordEngineRetry(operation string) {
	if m == nil {
		return
	}
	m.EngineRetries.WithLabelValues(operation).Inc()
}

// RecordDecodeFailure records an undecodable payload
func (m *Metrics) RecordDecodeFailure(format string) {
	if m == nil {
		return
	}
	m.DecodeFailures.WithLabelValues(format).Inc()
}

// RecordArtifactStored records a stored artifact
func (m *Metrics) RecordArtifactStored(sizeBytes int) {
	if m == nil {
		return
	}
	m.ArtifactsStored.Inc()
	m.ArtifactBytes.Observe(float64(sizeBytes))
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
