package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindredhq/kindred/internal/extract"
	"github.com/kindredhq/kindred/internal/models"
	"github.com/kindredhq/kindred/internal/stt"
)

func testTranscript() *stt.Transcript {
	return &stt.Transcript{
		Text:       "weekend of pottery",
		Utterances: []stt.Utterance{{Text: "weekend of pottery", Emotion: "joy"}},
	}
}

func newTestManager(t *testing.T, store *memStore) *JobManager {
	t.Helper()
	orch := newTestOrchestrator(store, &fakeScraper{profile: testProfile()}, nil,
		&fakeFacts{facts: extract.Facts{extract.CategoryHobby: {"climbing"}}}, newFakeVendor())
	manager, err := NewJobManager(store, orch, 2, 5*time.Minute, testLogger())
	require.NoError(t, err)
	t.Cleanup(manager.Close)
	return manager
}

func waitForTerminal(t *testing.T, store *memStore, jobID string) *models.IngestJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		job, err := store.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s did not reach a terminal status, last: %s", jobID, job.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStartProfileIngestRunsToCompletion(t *testing.T) {
	store := newMemStore()
	manager := newTestManager(t, store)

	jobID, err := manager.StartProfileIngest(context.Background(), ProfileIngestRequest{
		Handle:   "Alice_Climbs",
		OwnerID:  "owner1",
		MaxPosts: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job := waitForTerminal(t, store, jobID)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "alice_climbs", job.SubjectKey)
}

func TestStartProfileIngestCooldown(t *testing.T) {
	store := newMemStore()
	store.onCooldown = true
	manager := newTestManager(t, store)

	_, err := manager.StartProfileIngest(context.Background(), ProfileIngestRequest{
		Handle: "alice", MaxPosts: 10,
	})
	assert.ErrorIs(t, err, ErrCooldown)
	assert.Empty(t, store.jobs, "rejected requests must not persist a job")
}

func TestStartProfileIngestForceBypassesCooldown(t *testing.T) {
	store := newMemStore()
	store.onCooldown = true
	manager := newTestManager(t, store)

	jobID, err := manager.StartProfileIngest(context.Background(), ProfileIngestRequest{
		Handle: "alice", MaxPosts: 10, Force: true,
	})
	require.NoError(t, err)

	job := waitForTerminal(t, store, jobID)
	assert.Equal(t, models.JobCompleted, job.Status)
}

func TestStartProfileIngestEmptyHandle(t *testing.T) {
	store := newMemStore()
	manager := newTestManager(t, store)

	_, err := manager.StartProfileIngest(context.Background(), ProfileIngestRequest{Handle: "   "})
	assert.Error(t, err)
}

func TestStartVoiceIngest(t *testing.T) {
	store := newMemStore()
	orch := newTestOrchestrator(store, nil, &fakeTranscriber{transcript: testTranscript()},
		&fakeFacts{facts: extract.Facts{extract.CategoryHobby: {"pottery"}}}, newFakeVendor())
	manager, err := NewJobManager(store, orch, 2, 0, testLogger())
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	jobID, err := manager.StartVoiceIngest(context.Background(), "owner1", "note.ogg", []byte("audio"))
	require.NoError(t, err)

	job := waitForTerminal(t, store, jobID)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "voice:owner1", job.SubjectKey)
}

func TestStartVoiceIngestValidation(t *testing.T) {
	store := newMemStore()
	manager := newTestManager(t, store)

	_, err := manager.StartVoiceIngest(context.Background(), "", "note.ogg", []byte("audio"))
	assert.Error(t, err)

	_, err = manager.StartVoiceIngest(context.Background(), "owner1", "note.ogg", nil)
	assert.Error(t, err)
}
