package types

import "time"

// ClusterStatus is the terminal outcome of one cluster's slice of a run.
type ClusterStatus string

const (
	StatusSuccess   ClusterStatus = "success"
	StatusSkipped   ClusterStatus = "skipped"
	StatusCancelled ClusterStatus = "cancelled"
	StatusError     ClusterStatus = "error"
)

// BulkError describes one document the storage engine rejected inside an
// otherwise accepted bulk request (schema mismatch, malformed field).
// Partial failure within a batch is expected and never aborts the batch.
type BulkError struct {
	TimestampMillis int64  `json:"dateutc"`
	Status          int    `json:"status"`
	Reason          string `json:"reason"`
}

// CommitResult is the outcome of one bulk commit to one (cluster,
// category) pair. Err is populated instead of returned so a commit
// failure never escapes the committer boundary.
type CommitResult struct {
	Cluster    string      `json:"cluster"`
	Category   Category    `json:"category"`
	Attempted  int         `json:"attempted"`
	Written    int         `json:"written"`
	TotalAfter int64       `json:"total_after"`
	Errored    []BulkError `json:"errored,omitempty"`
	Err        error       `json:"-"`
}

// ClusterResult is one cluster×category line of the aggregate run report.
type ClusterResult struct {
	Cluster  string        `json:"cluster"`
	Category Category      `json:"category"`
	Status   ClusterStatus `json:"status"`
	Written  int           `json:"written"`
	Reason   string        `json:"reason,omitempty"`
}

// RunReport aggregates every cluster outcome of one pipeline run. The run
// as a whole is successful as long as the pipeline reached the commit
// stage, regardless of individual cluster outcomes.
type RunReport struct {
	RunID      string          `json:"run_id"`
	Mode       string          `json:"mode"` // "live" or "backfill"
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Fetched    int             `json:"fetched"`
	Results    []ClusterResult `json:"results"`
}

// Add appends one cluster result to the report.
func (r *RunReport) Add(res ClusterResult) {
	r.Results = append(r.Results, res)
}

// Errored reports whether any cluster ended in StatusError.
func (r *RunReport) Errored() bool {
	for _, res := range r.Results {
		if res.Status == StatusError {
			return true
		}
	}
	return false
}
