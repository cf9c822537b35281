package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindredhq/kindred/internal/extract"
	"github.com/kindredhq/kindred/internal/models"
	"github.com/kindredhq/kindred/internal/research"
)

func newTestReconciler(store *memStore, vendor ResearchVendor, facts FactSource) *Reconciler {
	return NewReconciler(store, store, vendor, facts, time.Minute, time.Minute, testLogger())
}

func TestHandleCompletionUnknownTask(t *testing.T) {
	store := newMemStore()
	rec := newTestReconciler(store, newFakeVendor(), &fakeFacts{})

	outcome, err := rec.HandleCompletion(context.Background(), "never-submitted", []byte(`{}`))

	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestHandleCompletionProcessedThenDuplicate(t *testing.T) {
	store := newMemStore()
	facts := &fakeFacts{facts: extract.Facts{extract.CategoryHobby: {"bouldering"}}}
	rec := newTestReconciler(store, newFakeVendor(), facts)

	ctx := context.Background()
	require.NoError(t, store.CreateTaskRecord(ctx, "task1", models.TaskResearch, "climbing", "alice", "owner1"))

	payload := []byte(`{"structured_result":[{"kind":"community","title":"Boulder club","summary":"Indoor bouldering community","url":"https://example.com/club"}]}`)

	outcome, err := rec.HandleCompletion(ctx, "task1", payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	// Facts extracted from the payload landed on the subject with the
	// research provenance
	interests, err := store.GetInterests(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, interests, 1)
	assert.Equal(t, "bouldering", interests[0].Topic)
	assert.Equal(t, "research", interests[0].Source)
	assert.InDelta(t, researchWeight, interests[0].Weight, 1e-9)

	// Enrichment hangs off the researched topic
	rows, err := store.EnrichmentsForTopics(ctx, []string{"climbing"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Boulder club", rows[0].Title)

	// Second delivery of the same completion is a duplicate and must not
	// trigger another extraction
	outcome, err = rec.HandleCompletion(ctx, "task1", payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 1, facts.extractCalls, "duplicate must not re-extract")

	interests, err = store.GetInterests(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, interests, 1, "graph reflects the result exactly once")
}

func TestHandleCompletionScoutIsEnrichmentOnly(t *testing.T) {
	store := newMemStore()
	facts := &fakeFacts{facts: extract.Facts{extract.CategoryHobby: {"should-not-appear"}}}
	rec := newTestReconciler(store, newFakeVendor(), facts)

	ctx := context.Background()
	require.NoError(t, store.CreateTaskRecord(ctx, "scout1", models.TaskScout, "climbing", "alice", "owner1"))

	payload := []byte(`{"structured_result":[{"kind":"meetup","title":"Crag day","url":"https://example.com/crag"}]}`)
	outcome, err := rec.HandleCompletion(ctx, "scout1", payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	rows, err := store.EnrichmentsForTopics(ctx, []string{"climbing"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	assert.Equal(t, 0, facts.extractCalls, "scout payloads do not feed interest extraction")
	interests, err := store.GetInterests(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, interests)
}

func TestHandleCompletionPlainStringResult(t *testing.T) {
	store := newMemStore()
	facts := &fakeFacts{facts: extract.Facts{extract.CategorySport: {"trail running"}}}
	rec := newTestReconciler(store, newFakeVendor(), facts)

	ctx := context.Background()
	require.NoError(t, store.CreateTaskRecord(ctx, "task1", models.TaskResearch, "running", "bob", "owner1"))

	outcome, err := rec.HandleCompletion(ctx, "task1", []byte(`{"result":"Bob's topic overlaps with trail running scenes"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Contains(t, facts.lastText, "trail running scenes")

	interests, err := store.GetInterests(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, interests, 1)
	assert.Equal(t, "trail running", interests[0].Topic)
}

func TestPollOnceAppliesSucceededTask(t *testing.T) {
	store := newMemStore()
	vendor := newFakeVendor()
	facts := &fakeFacts{facts: extract.Facts{extract.CategoryHobby: {"climbing shoes"}}}
	rec := newTestReconciler(store, vendor, facts)

	ctx := context.Background()
	require.NoError(t, store.CreateTaskRecord(ctx, "task1", models.TaskResearch, "climbing", "alice", "owner1"))
	vendor.states["task1"] = &research.TaskState{
		TaskID: "task1",
		Status: "succeeded",
		Result: json.RawMessage(`{"result":"deep dive into climbing"}`),
	}

	rec.PollOnce(ctx)

	record, err := store.GetTaskRecord(ctx, "task1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, record.Status)

	interests, err := store.GetInterests(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, interests, 1)

	// A later poll sees no stale tasks and leaves the graph untouched
	rec.PollOnce(ctx)
	interests, err = store.GetInterests(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, interests, 1)
	assert.Equal(t, 1, facts.extractCalls)
}

func TestPollOnceSkipsErroredTask(t *testing.T) {
	store := newMemStore()
	vendor := newFakeVendor()
	facts := &fakeFacts{facts: extract.Facts{extract.CategoryHobby: {"surfing"}}}
	rec := newTestReconciler(store, vendor, facts)

	ctx := context.Background()
	require.NoError(t, store.CreateTaskRecord(ctx, "task-bad", models.TaskResearch, "sailing", "alice", "owner1"))
	require.NoError(t, store.CreateTaskRecord(ctx, "task-good", models.TaskResearch, "surfing", "alice", "owner1"))
	vendor.statusErr["task-bad"] = errors.New("provider 503")
	vendor.states["task-good"] = &research.TaskState{
		TaskID: "task-good",
		Status: "completed",
		Result: json.RawMessage(`{"result":"surf spots"}`),
	}

	rec.PollOnce(ctx)

	// The failing task is recorded but did not halt the loop
	bad, err := store.GetTaskRecord(ctx, "task-bad")
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, bad.Status)
	require.NotNil(t, bad.LastError)
	assert.Contains(t, *bad.LastError, "503")

	good, err := store.GetTaskRecord(ctx, "task-good")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, good.Status)
}

func TestPollOnceFailsTerminallyFailedTask(t *testing.T) {
	store := newMemStore()
	vendor := newFakeVendor()
	rec := newTestReconciler(store, vendor, &fakeFacts{})

	ctx := context.Background()
	require.NoError(t, store.CreateTaskRecord(ctx, "task1", models.TaskScout, "pottery", "alice", "owner1"))
	vendor.states["task1"] = &research.TaskState{TaskID: "task1", Status: "failed", Error: "budget exceeded"}

	rec.PollOnce(ctx)

	record, err := store.GetTaskRecord(ctx, "task1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, record.Status)
	require.NotNil(t, record.LastError)
	assert.Equal(t, "budget exceeded", *record.LastError)
}

func TestWebhookPollRace(t *testing.T) {
	store := newMemStore()
	facts := &fakeFacts{facts: extract.Facts{extract.CategoryHobby: {"climbing"}}}
	rec := newTestReconciler(store, newFakeVendor(), facts)

	ctx := context.Background()
	require.NoError(t, store.CreateTaskRecord(ctx, "task1", models.TaskResearch, "climbing", "alice", "owner1"))

	payload := []byte(`{"result":"climbing research"}`)

	outcomes := make(chan Outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			outcome, err := rec.HandleCompletion(ctx, "task1", payload)
			assert.NoError(t, err)
			outcomes <- outcome
		}()
	}

	first, second := <-outcomes, <-outcomes
	assert.ElementsMatch(t, []Outcome{OutcomeProcessed, OutcomeDuplicate}, []Outcome{first, second})
	assert.Equal(t, 1, facts.extractCalls, "exactly one delivery applies the payload")
}
