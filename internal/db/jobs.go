package db

import (
	"context"
	"fmt"
	"time"

	"github.com/kindredhq/kindred/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateJob persists a new ingestion job in status queued.
// Returns ErrAlreadyExists if job_id collides (a bug given fresh UUIDs).
func (c *Client) CreateJob(ctx context.Context, jobID, subjectKey, ownerID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("ingest_job", $job_id) SET
			job_id = $job_id,
			subject_key = $subject_key,
			owner_id = $owner_id,
			status = 'queued',
			created_at = time::now(),
			updated_at = time::now()
	`, map[string]any{
		"job_id":      jobID,
		"subject_key": subjectKey,
		"owner_id":    ownerID,
	})
	if err != nil {
		return fmt.Errorf("create job: %w", wrapQueryError(err))
	}
	return nil
}

// UpdateJob full-replaces the mutable fields of a job.
// Returns ErrNotFound for an unknown job_id; callers log rather than retry,
// a missing job is an orchestration bug, not a recoverable condition.
func (c *Client) UpdateJob(
	ctx context.Context,
	jobID string,
	status models.JobStatus,
	progress map[string]any,
	result map[string]any,
	errMsg *string,
) error {
	results, err := surrealdb.Query[[]models.IngestJob](ctx, c.db, `
		UPDATE type::record("ingest_job", $job_id) SET
			status = $status,
			progress = $progress,
			result = $result,
			error = $error,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{
		"job_id":   jobID,
		"status":   string(status),
		"progress": progress,
		"result":   result,
		"error":    errMsg,
	})
	if err != nil {
		return fmt.Errorf("update job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("update job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// GetJob retrieves a job by its id. Returns ErrNotFound if unknown.
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.IngestJob, error) {
	results, err := surrealdb.Query[[]models.IngestJob](ctx, c.db, `
		SELECT * FROM type::record("ingest_job", $job_id)
	`, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get job %s: %w", jobID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// SubjectOnCooldown reports whether the subject has a non-failed ingestion
// newer than the cooldown window. Failed runs do not arm the cooldown.
func (c *Client) SubjectOnCooldown(ctx context.Context, subjectKey string, window time.Duration) (bool, error) {
	cutoff := time.Now().Add(-window)
	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, `
		SELECT count() AS count FROM ingest_job
		WHERE subject_key = $subject_key
		AND status IN ['queued', 'processing', 'completed']
		AND created_at > $cutoff
		GROUP ALL
	`, map[string]any{
		"subject_key": subjectKey,
		"cutoff":      cutoff,
	})
	if err != nil {
		return false, fmt.Errorf("check cooldown: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return false, nil
	}
	return (*results)[0].Result[0].Count > 0, nil
}

// FailAbandonedJobs marks jobs left in a non-terminal state by a previous
// process as failed. Run once at startup; terminal states are never touched,
// preserving status monotonicity. Returns the number of jobs swept.
func (c *Client) FailAbandonedJobs(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]models.IngestJob](ctx, c.db, `
		UPDATE ingest_job SET
			status = 'failed',
			error = 'abandoned at restart',
			updated_at = time::now()
		WHERE status IN ['queued', 'processing']
		RETURN AFTER
	`, nil)
	if err != nil {
		return 0, fmt.Errorf("fail abandoned jobs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
