package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// TaskStatus is the lifecycle state of a long-running provider task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskKind distinguishes one-shot research tasks from recurring scout tasks.
type TaskKind string

const (
	TaskResearch TaskKind = "research"
	TaskScout    TaskKind = "scout"
)

// TaskRecord tracks one outstanding call to the research provider.
// The completion write is conditional on status != completed, which is what
// resolves the webhook-vs-poll race.
type TaskRecord struct {
	ID             surrealmodels.RecordID `json:"id"`
	ProviderTaskID string                 `json:"provider_task_id"`
	Kind           TaskKind               `json:"kind"`
	Topic          string                 `json:"topic"`
	SubjectKey     string                 `json:"subject_key"`
	OwnerID        string                 `json:"owner_id"`
	Status         TaskStatus             `json:"status"`
	Attempts       int                    `json:"attempts"`
	LastError      *string                `json:"last_error,omitempty"`
	ResultPayload  *string                `json:"result_payload,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}
