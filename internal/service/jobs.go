package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/kindredhq/kindred/internal/models"
)

// ErrCooldown is returned when the subject was ingested too recently.
var ErrCooldown = errors.New("subject is on ingestion cooldown")

// jobTimeout bounds a single background ingestion run.
const jobTimeout = 30 * time.Minute

// ProfileIngestRequest is an accepted profile ingestion.
type ProfileIngestRequest struct {
	Handle       string
	OwnerID      string
	MaxPosts     int
	IncludeReels bool
	Force        bool
}

// JobManager accepts ingestion requests, enforces the per-subject cooldown
// and runs accepted jobs on a bounded worker pool.
type JobManager struct {
	jobs     JobStore
	orch     *Orchestrator
	pool     *ants.Pool
	cooldown time.Duration
	logger   *slog.Logger
}

// NewJobManager creates a manager with the given number of workers.
func NewJobManager(jobs JobStore, orch *Orchestrator, workers int, cooldown time.Duration, logger *slog.Logger) (*JobManager, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create job pool: %w", err)
	}
	return &JobManager{
		jobs:     jobs,
		orch:     orch,
		pool:     pool,
		cooldown: cooldown,
		logger:   logger,
	}, nil
}

// Close releases the worker pool. In-flight jobs finish; queued submissions
// are dropped.
func (m *JobManager) Close() {
	m.pool.Release()
}

// SubjectKey canonicalizes a handle into the key jobs and graph nodes share.
func SubjectKey(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// StartProfileIngest validates the cooldown, persists a queued job and
// schedules the pipeline run. Returns the new job id, or ErrCooldown.
func (m *JobManager) StartProfileIngest(ctx context.Context, req ProfileIngestRequest) (string, error) {
	subjectKey := SubjectKey(req.Handle)
	if subjectKey == "" {
		return "", fmt.Errorf("empty handle")
	}

	if !req.Force && m.cooldown > 0 {
		onCooldown, err := m.jobs.SubjectOnCooldown(ctx, subjectKey, m.cooldown)
		if err != nil {
			return "", fmt.Errorf("cooldown check: %w", err)
		}
		if onCooldown {
			return "", ErrCooldown
		}
	}

	jobID := uuid.New().String()
	if err := m.jobs.CreateJob(ctx, jobID, subjectKey, req.OwnerID); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	m.submit(jobID, func(runCtx context.Context) {
		m.orch.RunProfileIngest(runCtx, jobID, req)
	})
	return jobID, nil
}

// StartVoiceIngest persists a queued voice job and schedules the voice
// pipeline. Voice notes are owner-scoped and carry no cooldown.
func (m *JobManager) StartVoiceIngest(ctx context.Context, ownerID, filename string, audio []byte) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("empty owner id")
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio upload")
	}

	jobID := uuid.New().String()
	if err := m.jobs.CreateJob(ctx, jobID, "voice:"+ownerID, ownerID); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	m.submit(jobID, func(runCtx context.Context) {
		m.orch.RunVoiceIngest(runCtx, jobID, ownerID, filename, audio)
	})
	return jobID, nil
}

// submit hands the job to the pool. Background runs are detached from the
// originating request context; the job itself carries a timeout.
func (m *JobManager) submit(jobID string, run func(ctx context.Context)) {
	err := m.pool.Submit(func() {
		runCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		run(runCtx)
	})
	if err != nil {
		m.logger.Error("failed to schedule job", "job_id", jobID, "error", err)
		msg := "scheduling failed: " + err.Error()
		failCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if uerr := m.jobs.UpdateJob(failCtx, jobID, models.JobFailed, nil, nil, &msg); uerr != nil {
			m.logger.Error("failed to mark unscheduled job as failed", "job_id", jobID, "error", uerr)
		}
	}
}
