// Package results persists and serves the terminal outcome of jobs. A record
// exists in the store only once a worker reached a terminal outcome; absence
// means the job is still queued or in flight.
package results

import (
	"time"

	"github.com/carnetocr/carnetocr/constants"
	"github.com/carnetocr/carnetocr/internal/extract"
)

// Record is the stored outcome for one job, in the wire shape returned to
// clients. CardFields is embedded so the four fields serialize at the top
// level.
type Record struct {
	JobID   string                 `json:"job_id"`
	Status  constants.ResultStatus `json:"status"`
	RawText string                 `json:"raw_text,omitempty"`
	extract.CardFields
	Confidence  map[string]float64 `json:"confidence,omitempty"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Completed builds the terminal success record for a job.
func Completed(jobID string, ex extract.Extraction, at time.Time) Record {
	at = at.UTC()
	return Record{
		JobID:       jobID,
		Status:      constants.StatusCompleted,
		RawText:     ex.RawText,
		CardFields:  ex.Fields,
		Confidence:  extract.Score(ex.Fields),
		ProcessedAt: &at,
	}
}

// Failed builds the terminal error record for a job.
func Failed(jobID, message string, at time.Time) Record {
	at = at.UTC()
	return Record{
		JobID:       jobID,
		Status:      constants.StatusError,
		ProcessedAt: &at,
		Error:       message,
	}
}

// Pending is the synthetic record reported for jobs with no stored outcome.
func Pending(jobID string) Record {
	return Record{JobID: jobID, Status: constants.StatusProcessing}
}
