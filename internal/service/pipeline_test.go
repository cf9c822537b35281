package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindredhq/kindred/internal/extract"
	"github.com/kindredhq/kindred/internal/models"
	"github.com/kindredhq/kindred/internal/scraper"
	"github.com/kindredhq/kindred/internal/stt"
)

func newTestOrchestrator(store *memStore, sc Scraper, tr Transcriber, facts FactSource, vendor ResearchVendor) *Orchestrator {
	return NewOrchestrator(store, store, store, sc, tr, facts, vendor,
		OrchestratorConfig{TopInterests: 3, WebhookBaseURL: "http://localhost/api/webhooks/research"},
		testLogger())
}

func testProfile() *scraper.Profile {
	return &scraper.Profile{
		Handle:    "Alice_Climbs",
		FullName:  "Alice",
		Biography: "climber, coffee person",
		AvatarURL: "https://img/avatar",
		Posts: []scraper.Post{
			{Caption: "weekend at the crag", DisplayURL: "https://img/1"},
			{Caption: "gear haul", SlideURLs: []string{"https://img/2a", "https://img/2b"}},
		},
	}
}

func TestRunProfileIngestHappyPath(t *testing.T) {
	store := newMemStore()
	vendor := newFakeVendor()
	facts := &fakeFacts{
		facts: extract.Facts{
			extract.CategoryHobby:    {"climbing"},
			extract.CategoryFood:     {"coffee"},
			extract.CategoryBrand:    {"patagonia"},
			extract.CategoryLocation: {"vienna"},
		},
		captions: extract.CaptionResult{
			Captions: []string{"person climbing a rock face"},
			Failed:   []string{"caption:https://img/2b"},
		},
	}
	orch := newTestOrchestrator(store, &fakeScraper{profile: testProfile()}, nil, facts, vendor)

	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, "job1", "alice_climbs", "owner1"))
	orch.RunProfileIngest(ctx, "job1", ProfileIngestRequest{Handle: "Alice_Climbs", OwnerID: "owner1", MaxPosts: 10})

	job, err := store.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, StageCompleted, job.Progress["stage"])

	require.NotNil(t, job.Result)
	assert.Equal(t, 4, job.Result["entities_added"])
	assert.Equal(t, 2, job.Result["posts_analyzed"])
	assert.Equal(t, []string{"caption:https://img/2b"}, job.Result["failed_steps"])

	// Person node with profile fields
	person, err := store.GetPerson(ctx, "alice_climbs")
	require.NoError(t, err)
	assert.Equal(t, "Alice_Climbs", person.Handle)
	require.NotNil(t, person.Bio)
	assert.Equal(t, "climber, coffee person", *person.Bio)

	// Interests carry the extraction weight, affiliations are separate
	interests, err := store.GetInterests(ctx, "alice_climbs")
	require.NoError(t, err)
	require.Len(t, interests, 2)
	for _, interest := range interests {
		assert.InDelta(t, extractedWeight, interest.Weight, 1e-9)
		assert.Equal(t, "extracted", interest.Source)
	}
	affiliations, err := store.GetAffiliations(ctx, "alice_climbs")
	require.NoError(t, err)
	assert.Len(t, affiliations, 2)

	// The corpus fed to extraction includes bio, captions and image captions
	assert.Contains(t, facts.lastText, "climber, coffee person")
	assert.Contains(t, facts.lastText, "weekend at the crag")
	assert.Contains(t, facts.lastText, "person climbing a rock face")

	// Both interests seed a research and a scout task, with records
	assert.ElementsMatch(t, []string{
		"research:climbing", "scout:climbing",
		"research:coffee", "scout:coffee",
	}, vendor.submitted)
	assert.Len(t, store.tasks, 4)
	for _, record := range store.tasks {
		assert.Equal(t, models.TaskPending, record.Status)
		assert.Equal(t, "alice_climbs", record.SubjectKey)
	}
}

func TestRunProfileIngestScrapeFatal(t *testing.T) {
	store := newMemStore()
	orch := newTestOrchestrator(store, &fakeScraper{err: scraper.ErrUnauthorized}, nil, &fakeFacts{}, newFakeVendor())

	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, "job1", "alice", "owner1"))
	orch.RunProfileIngest(ctx, "job1", ProfileIngestRequest{Handle: "alice", MaxPosts: 10})

	job, err := store.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "scrape failed")
	assert.Nil(t, job.Result, "fatal failure carries no partial result")
}

func TestRunProfileIngestResearchSubmitFailure(t *testing.T) {
	store := newMemStore()
	vendor := newFakeVendor()
	vendor.submitErr = errors.New("vendor 500")
	facts := &fakeFacts{facts: extract.Facts{extract.CategoryHobby: {"climbing"}}}
	orch := newTestOrchestrator(store, &fakeScraper{profile: testProfile()}, nil, facts, vendor)

	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, "job1", "alice_climbs", "owner1"))
	orch.RunProfileIngest(ctx, "job1", ProfileIngestRequest{Handle: "alice_climbs", MaxPosts: 10})

	job, err := store.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status, "submission failures are non-fatal")
	failed, ok := job.Result["failed_steps"].([]string)
	require.True(t, ok)
	assert.Contains(t, failed, "research:climbing")
	assert.Contains(t, failed, "scout:climbing")
}

func TestImageItemsCapsCarousels(t *testing.T) {
	posts := []scraper.Post{
		{Caption: "c1", SlideURLs: []string{"a", "b", "c", "d"}},
		{Caption: "c2", DisplayURL: "e"},
		{Caption: "c3", DisplayURL: "f"},
	}

	items := imageItems(posts, 2)

	// Only the first two posts count, and slides are capped at maxPosts*3.
	require.Len(t, items, 5)
	assert.Equal(t, "a", items[0].URL)
	assert.Equal(t, "c1", items[0].Caption)
	assert.Equal(t, "e", items[4].URL)
}

func TestRunVoiceIngest(t *testing.T) {
	store := newMemStore()
	facts := &fakeFacts{facts: extract.Facts{extract.CategoryHobby: {"pottery"}}}
	transcriber := &fakeTranscriber{transcript: &stt.Transcript{
		Text: "I spent the weekend throwing pots",
		Utterances: []stt.Utterance{
			{Text: "I spent the weekend throwing pots", Emotion: "joy"},
			{Text: "it was calming", Emotion: "calm"},
		},
	}}
	orch := newTestOrchestrator(store, nil, transcriber, facts, newFakeVendor())

	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, "job1", "voice:owner1", "owner1"))
	orch.RunVoiceIngest(ctx, "job1", "owner1", "note.ogg", []byte("audio"))

	job, err := store.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, 1, job.Result["entities_added"])
	assert.Equal(t, len("I spent the weekend throwing pots"), job.Result["transcript_length"])
	assert.Equal(t, []string{"joy", "calm"}, job.Result["emotions"])

	interests, err := store.GetInterests(ctx, "owner1")
	require.NoError(t, err)
	require.Len(t, interests, 1)
	assert.Equal(t, "voice", interests[0].Source)
}

func TestRunVoiceIngestTranscriptionFatal(t *testing.T) {
	store := newMemStore()
	transcriber := &fakeTranscriber{err: errors.New("stt down")}
	orch := newTestOrchestrator(store, nil, transcriber, &fakeFacts{}, newFakeVendor())

	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, "job1", "voice:owner1", "owner1"))
	orch.RunVoiceIngest(ctx, "job1", "owner1", "note.ogg", []byte("audio"))

	job, err := store.GetJob(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "transcription failed")
}
