// Package models defines data structures for the kindred interest graph.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobStatus is the lifecycle state of an ingestion job.
// Transitions are monotonic: queued -> processing -> completed|failed.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IngestJob is one persisted ingestion run, pollable by clients.
type IngestJob struct {
	ID         surrealmodels.RecordID `json:"id"`
	JobID      string                 `json:"job_id"`
	SubjectKey string                 `json:"subject_key"`
	OwnerID    string                 `json:"owner_id"`
	Status     JobStatus              `json:"status"`
	Progress   map[string]any         `json:"progress,omitempty"`
	Result     map[string]any         `json:"result,omitempty"`
	Error      *string                `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}
