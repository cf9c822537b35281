// Package service contains the job manager, ingestion orchestrator, async
// task reconciler and matching engine.
package service

import (
	"context"
	"time"

	"github.com/kindredhq/kindred/internal/db"
	"github.com/kindredhq/kindred/internal/extract"
	"github.com/kindredhq/kindred/internal/models"
	"github.com/kindredhq/kindred/internal/research"
	"github.com/kindredhq/kindred/internal/scraper"
	"github.com/kindredhq/kindred/internal/stt"
)

// JobStore persists ingestion jobs.
type JobStore interface {
	CreateJob(ctx context.Context, jobID, subjectKey, ownerID string) error
	UpdateJob(ctx context.Context, jobID string, status models.JobStatus, progress, result map[string]any, errMsg *string) error
	GetJob(ctx context.Context, jobID string) (*models.IngestJob, error)
	SubjectOnCooldown(ctx context.Context, subjectKey string, window time.Duration) (bool, error)
}

// TaskStore persists task records for outstanding provider tasks.
type TaskStore interface {
	CreateTaskRecord(ctx context.Context, providerTaskID string, kind models.TaskKind, topic, subjectKey, ownerID string) error
	GetTaskRecord(ctx context.Context, providerTaskID string) (*models.TaskRecord, error)
	CompleteTaskRecord(ctx context.Context, providerTaskID, resultPayload string) (bool, error)
	RecordTaskError(ctx context.Context, providerTaskID, errMsg string) error
	FailTask(ctx context.Context, providerTaskID, errMsg string) error
	StaleTasks(ctx context.Context, olderThan time.Duration) ([]models.TaskRecord, error)
}

// GraphStore mutates and reads the interest graph.
type GraphStore interface {
	UpsertPerson(ctx context.Context, personID, handle string, fullName, bio, avatarURL *string) error
	GetPerson(ctx context.Context, personID string) (*models.Person, error)
	MergeInterest(ctx context.Context, personID, topic string, weight float64, source string, evidence *string) error
	MergeAffiliation(ctx context.Context, personID, name string, kind models.AffiliationKind, source string) error
	GetInterests(ctx context.Context, personID string) ([]models.Interest, error)
	GetAffiliations(ctx context.Context, personID string) ([]db.AffiliationRow, error)
	OverlappingInterests(ctx context.Context, personID string) ([]db.OverlapRow, error)
	AddEnrichment(ctx context.Context, topic string, item models.EnrichmentItem, source string) error
	EnrichmentsForTopics(ctx context.Context, topics []string) ([]db.EnrichmentRow, error)
}

// Scraper fetches a profile and its recent posts.
type Scraper interface {
	Scrape(ctx context.Context, handle string, maxPosts int, includeReels bool) (*scraper.Profile, error)
}

// ResearchVendor submits and polls long-running research/scout tasks.
type ResearchVendor interface {
	SubmitResearch(ctx context.Context, topic, webhookURL string) (string, error)
	SubmitScout(ctx context.Context, topic, webhookURL string) (string, error)
	TaskStatus(ctx context.Context, taskID string) (*research.TaskState, error)
}

// Transcriber converts an uploaded audio clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (*stt.Transcript, error)
}

// FactSource turns free text and images into normalized facts.
// The extraction coordinator satisfies this; both methods absorb vendor
// failures internally and never error.
type FactSource interface {
	Extract(ctx context.Context, text string) extract.Facts
	CaptionImages(ctx context.Context, items []extract.ImageItem) extract.CaptionResult
}

// IcebreakerGenerator produces a conversation starter from interest lists.
type IcebreakerGenerator interface {
	GenerateIcebreaker(ctx context.Context, userInterests, targetInterests, shared []string) (string, error)
}
