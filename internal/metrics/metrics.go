package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// uploadsTotal tracks processed uploads by file kind.
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bom_uploads_total",
		Help: "Total number of processed uploads by file kind",
	}, []string{"kind"}) // kind: xlsx, csv, zip

	// remapsTotal tracks remap operations.
	remapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bom_remaps_total",
		Help: "Total number of column remap operations",
	})

	// extractionErrors tracks failed extractions by failure kind.
	extractionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bom_extraction_errors_total",
		Help: "Total number of failed extractions by kind",
	}, []string{"kind"}) // kind: sheet_not_found, empty_sheet, header_not_found, no_data_rows, decode

	// rowsExtracted tracks the distribution of extracted row counts.
	rowsExtracted = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bom_rows_extracted_count",
		Help:    "Number of rows extracted per operation",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 20000},
	})

	// extractionDuration tracks decode-plus-extract latency by operation.
	extractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bom_extraction_duration_seconds",
		Help:    "Time taken to decode and extract by operation",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"}) // operation: upload, remap

	// persistWarnings tracks sessions that could not be fully persisted.
	persistWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bom_session_persist_warnings_total",
		Help: "Total number of sessions persisted incompletely",
	})

	// sessionsSwept tracks sessions removed by the expiry sweeper.
	sessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bom_sessions_swept_total",
		Help: "Total number of expired sessions removed by the sweeper",
	})

	// activeExtractions tracks the number of extractions in progress.
	activeExtractions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bom_active_extractions",
		Help: "Number of extractions currently in progress",
	})
)

// Recorder provides methods to record extraction metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordUpload records a processed upload by file kind.
func (r *Recorder) RecordUpload(kind string) {
	uploadsTotal.WithLabelValues(kind).Inc()
}

// RecordRemap records a remap operation.
func (r *Recorder) RecordRemap() {
	remapsTotal.Inc()
}

// RecordExtractionError records a failed extraction by kind.
func (r *Recorder) RecordExtractionError(kind string) {
	extractionErrors.WithLabelValues(kind).Inc()
}

// RecordRowsExtracted records the number of rows an extraction produced.
func (r *Recorder) RecordRowsExtracted(count int) {
	rowsExtracted.Observe(float64(count))
}

// RecordExtractionDuration records decode-plus-extract latency.
func (r *Recorder) RecordExtractionDuration(operation string, duration time.Duration) {
	extractionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPersistWarning records an incompletely persisted session.
func (r *Recorder) RecordPersistWarning() {
	persistWarnings.Inc()
}

// RecordSessionsSwept records sessions removed by the sweeper.
func (r *Recorder) RecordSessionsSwept(count int) {
	sessionsSwept.Add(float64(count))
}

// IncrementActiveExtractions increments the in-progress extraction gauge.
func (r *Recorder) IncrementActiveExtractions() {
	activeExtractions.Inc()
}

// DecrementActiveExtractions decrements the in-progress extraction gauge.
func (r *Recorder) DecrementActiveExtractions() {
	activeExtractions.Dec()
}
