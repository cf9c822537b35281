package db

import (
	"context"
	"fmt"
	"time"

	"github.com/kindredhq/kindred/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateTaskRecord persists a pending task record for a submitted provider task.
func (c *Client) CreateTaskRecord(
	ctx context.Context,
	providerTaskID string,
	kind models.TaskKind,
	topic, subjectKey, ownerID string,
) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("task_record", $ptid) SET
			provider_task_id = $ptid,
			kind = $kind,
			topic = $topic,
			subject_key = $subject_key,
			owner_id = $owner_id,
			status = 'pending',
			attempts = 0,
			created_at = time::now()
	`, map[string]any{
		"ptid":        providerTaskID,
		"kind":        string(kind),
		"topic":       topic,
		"subject_key": subjectKey,
		"owner_id":    ownerID,
	})
	if err != nil {
		return fmt.Errorf("create task record: %w", wrapQueryError(err))
	}
	return nil
}

// GetTaskRecord looks up a task record by the provider's task id.
// Returns ErrNotFound for an unknown id.
func (c *Client) GetTaskRecord(ctx context.Context, providerTaskID string) (*models.TaskRecord, error) {
	results, err := surrealdb.Query[[]models.TaskRecord](ctx, c.db, `
		SELECT * FROM type::record("task_record", $ptid)
	`, map[string]any{"ptid": providerTaskID})
	if err != nil {
		return nil, fmt.Errorf("get task record: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get task record %s: %w", providerTaskID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// CompleteTaskRecord attempts the conditional completion write. Returns true
// if this call transitioned the record into completed, false if the record
// was already completed (the race loser). The WHERE clause is the entire
// concurrency guard; no application locking is involved.
func (c *Client) CompleteTaskRecord(ctx context.Context, providerTaskID, resultPayload string) (bool, error) {
	results, err := surrealdb.Query[[]models.TaskRecord](ctx, c.db, `
		UPDATE type::record("task_record", $ptid) SET
			status = 'completed',
			result_payload = $payload,
			completed_at = time::now(),
			attempts += 1
		WHERE status != 'completed'
		RETURN AFTER
	`, map[string]any{
		"ptid":    providerTaskID,
		"payload": resultPayload,
	})
	if err != nil {
		return false, fmt.Errorf("complete task record: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return false, nil
	}
	return true, nil
}

// RecordTaskError notes a failed provider status check without terminating
// the record; the poll loop will revisit it.
func (c *Client) RecordTaskError(ctx context.Context, providerTaskID, errMsg string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("task_record", $ptid) SET
			last_error = $error,
			attempts += 1
		WHERE status IN ['pending', 'running']
	`, map[string]any{
		"ptid":  providerTaskID,
		"error": errMsg,
	})
	if err != nil {
		return fmt.Errorf("record task error: %w", err)
	}
	return nil
}

// FailTask marks a task as terminally failed, e.g. after the provider
// reports the task itself failed. A task that already completed is left alone.
func (c *Client) FailTask(ctx context.Context, providerTaskID, errMsg string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("task_record", $ptid) SET
			status = 'failed',
			last_error = $error,
			attempts += 1,
			completed_at = time::now()
		WHERE status != 'completed'
	`, map[string]any{
		"ptid":  providerTaskID,
		"error": errMsg,
	})
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// StaleTasks returns tasks still pending or running that were created before
// the staleness cutoff; these are candidates for provider status polling.
func (c *Client) StaleTasks(ctx context.Context, olderThan time.Duration) ([]models.TaskRecord, error) {
	cutoff := time.Now().Add(-olderThan)
	results, err := surrealdb.Query[[]models.TaskRecord](ctx, c.db, `
		SELECT * FROM task_record
		WHERE status IN ['pending', 'running']
		AND created_at < $cutoff
	`, map[string]any{"cutoff": cutoff})
	if err != nil {
		return nil, fmt.Errorf("stale tasks: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.TaskRecord{}, nil
	}
	return (*results)[0].Result, nil
}
