package protocol

import "time"

// JobProgress is published on the bus after each chunk result is recorded.
type JobProgress struct {
	JobID        string    `json:"job_id"`
	Input        string    `json:"input"`
	Status       string    `json:"status"`
	Completed    int       `json:"completed"`
	Total        int       `json:"total"`
	Percent      float64   `json:"percent"`
	BytesWritten int64     `json:"bytes_written"`
	ElapsedMS    int64     `json:"elapsed_ms"`
	ETAMS        int64     `json:"eta_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// JobDone is published once a job reaches a terminal state.
type JobDone struct {
	JobID     string    `json:"job_id"`
	Input     string    `json:"input"`
	Output    string    `json:"output,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectJobProgress = "convert.job.progress"
	SubjectJobDone     = "convert.job.done"
)
