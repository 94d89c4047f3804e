package models

import "time"

// RunStatus is the overall outcome of a pipeline run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	// RunPartial means every stage ran but at least one file failed.
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// FileOutcome records what happened to one file in the upload or load stage.
type FileOutcome struct {
	Name     string `bson:"name" json:"name"`
	Attempts int    `bson:"attempts,omitempty" json:"attempts,omitempty"`
	Rows     int64  `bson:"rows,omitempty" json:"rows,omitempty"`
	Merged   int64  `bson:"merged,omitempty" json:"merged,omitempty"`
	Kind     string `bson:"kind,omitempty" json:"kind,omitempty"`
	Error    string `bson:"error,omitempty" json:"error,omitempty"`
}

// Failed reports whether the file did not make it through its stage.
func (f FileOutcome) Failed() bool { return f.Error != "" }

// RunReport summarises one pipeline invocation.
type RunReport struct {
	RunID      string        `bson:"_id" json:"run_id"`
	Trigger    string        `bson:"trigger" json:"trigger"`
	Status     RunStatus     `bson:"status" json:"status"`
	StartedAt  time.Time     `bson:"started_at" json:"started_at"`
	FinishedAt time.Time     `bson:"finished_at" json:"finished_at"`
	Pages      int           `bson:"pages" json:"pages"`
	Events     int           `bson:"events" json:"events"`
	Dropped    int           `bson:"dropped" json:"dropped"`
	StagedFile string        `bson:"staged_file,omitempty" json:"staged_file,omitempty"`
	Uploads    []FileOutcome `bson:"uploads" json:"uploads"`
	Loads      []FileOutcome `bson:"loads" json:"loads"`
	Error      string        `bson:"error,omitempty" json:"error,omitempty"`
}

// FailedFiles counts upload and load outcomes that failed.
func (r *RunReport) FailedFiles() int {
	n := 0
	for _, o := range r.Uploads {
		if o.Failed() {
			n++
		}
	}
	for _, o := range r.Loads {
		if o.Failed() {
			n++
		}
	}
	return n
}
