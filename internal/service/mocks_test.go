package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kindredhq/kindred/internal/db"
	"github.com/kindredhq/kindred/internal/extract"
	"github.com/kindredhq/kindred/internal/models"
	"github.com/kindredhq/kindred/internal/research"
	"github.com/kindredhq/kindred/internal/scraper"
	"github.com/kindredhq/kindred/internal/stt"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory implementation of JobStore, TaskStore and
// GraphStore with the same semantics as the SurrealDB layer.
type memStore struct {
	mu           sync.Mutex
	jobs         map[string]*models.IngestJob
	tasks        map[string]*models.TaskRecord
	people       map[string]*models.Person
	interests    map[string]map[string]models.Interest
	affiliations map[string]map[string]db.AffiliationRow
	enrichments  map[string][]models.EnrichmentItem
	onCooldown   bool
}

func newMemStore() *memStore {
	return &memStore{
		jobs:         make(map[string]*models.IngestJob),
		tasks:        make(map[string]*models.TaskRecord),
		people:       make(map[string]*models.Person),
		interests:    make(map[string]map[string]models.Interest),
		affiliations: make(map[string]map[string]db.AffiliationRow),
		enrichments:  make(map[string][]models.EnrichmentItem),
	}
}

func (s *memStore) CreateJob(ctx context.Context, jobID, subjectKey, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; ok {
		return db.ErrAlreadyExists
	}
	s.jobs[jobID] = &models.IngestJob{
		JobID:      jobID,
		SubjectKey: subjectKey,
		OwnerID:    ownerID,
		Status:     models.JobQueued,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	return nil
}

func (s *memStore) UpdateJob(ctx context.Context, jobID string, status models.JobStatus, progress, result map[string]any, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return db.ErrNotFound
	}
	job.Status = status
	job.Progress = progress
	job.Result = result
	job.Error = errMsg
	job.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) GetJob(ctx context.Context, jobID string) (*models.IngestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, db.ErrNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

func (s *memStore) SubjectOnCooldown(ctx context.Context, subjectKey string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onCooldown, nil
}

func (s *memStore) CreateTaskRecord(ctx context.Context, providerTaskID string, kind models.TaskKind, topic, subjectKey, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[providerTaskID]; ok {
		return db.ErrAlreadyExists
	}
	s.tasks[providerTaskID] = &models.TaskRecord{
		ProviderTaskID: providerTaskID,
		Kind:           kind,
		Topic:          topic,
		SubjectKey:     subjectKey,
		OwnerID:        ownerID,
		Status:         models.TaskPending,
		CreatedAt:      time.Now(),
	}
	return nil
}

func (s *memStore) GetTaskRecord(ctx context.Context, providerTaskID string) (*models.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tasks[providerTaskID]
	if !ok {
		return nil, db.ErrNotFound
	}
	snapshot := *record
	return &snapshot, nil
}

func (s *memStore) CompleteTaskRecord(ctx context.Context, providerTaskID, resultPayload string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tasks[providerTaskID]
	if !ok {
		return false, db.ErrNotFound
	}
	if record.Status == models.TaskCompleted {
		return false, nil
	}
	now := time.Now()
	record.Status = models.TaskCompleted
	record.ResultPayload = &resultPayload
	record.CompletedAt = &now
	record.Attempts++
	return true, nil
}

func (s *memStore) RecordTaskError(ctx context.Context, providerTaskID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.tasks[providerTaskID]; ok && record.Status != models.TaskCompleted && record.Status != models.TaskFailed {
		record.LastError = &errMsg
		record.Attempts++
	}
	return nil
}

func (s *memStore) FailTask(ctx context.Context, providerTaskID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.tasks[providerTaskID]; ok && record.Status != models.TaskCompleted {
		now := time.Now()
		record.Status = models.TaskFailed
		record.LastError = &errMsg
		record.CompletedAt = &now
		record.Attempts++
	}
	return nil
}

func (s *memStore) StaleTasks(ctx context.Context, olderThan time.Duration) ([]models.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TaskRecord
	for _, record := range s.tasks {
		if record.Status == models.TaskPending || record.Status == models.TaskRunning {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderTaskID < out[j].ProviderTaskID })
	return out, nil
}

func (s *memStore) UpsertPerson(ctx context.Context, personID, handle string, fullName, bio, avatarURL *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[personID] = &models.Person{
		PersonID:  personID,
		Handle:    handle,
		FullName:  fullName,
		Bio:       bio,
		AvatarURL: avatarURL,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (s *memStore) GetPerson(ctx context.Context, personID string) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	person, ok := s.people[personID]
	if !ok {
		return nil, fmt.Errorf("get person %s: %w", personID, db.ErrNotFound)
	}
	snapshot := *person
	return &snapshot, nil
}

func (s *memStore) MergeInterest(ctx context.Context, personID, topic string, weight float64, source string, evidence *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interests[personID] == nil {
		s.interests[personID] = make(map[string]models.Interest)
	}
	existing, ok := s.interests[personID][topic]
	if ok && existing.Weight > weight {
		weight = existing.Weight
	}
	s.interests[personID][topic] = models.Interest{
		Topic:     topic,
		Weight:    weight,
		Source:    source,
		Evidence:  evidence,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (s *memStore) MergeAffiliation(ctx context.Context, personID, name string, kind models.AffiliationKind, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.affiliations[personID] == nil {
		s.affiliations[personID] = make(map[string]db.AffiliationRow)
	}
	s.affiliations[personID][string(kind)+":"+name] = db.AffiliationRow{
		Name:   name,
		Kind:   string(kind),
		Source: source,
	}
	return nil
}

func (s *memStore) GetInterests(ctx context.Context, personID string) ([]models.Interest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Interest
	for _, interest := range s.interests[personID] {
		out = append(out, interest)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Topic < out[j].Topic
	})
	return out, nil
}

func (s *memStore) GetAffiliations(ctx context.Context, personID string) ([]db.AffiliationRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.AffiliationRow
	for _, row := range s.affiliations[personID] {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) OverlappingInterests(ctx context.Context, personID string) ([]db.OverlapRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mine := s.interests[personID]
	var out []db.OverlapRow
	for otherID, topics := range s.interests {
		for topic, interest := range topics {
			if _, shared := mine[topic]; !shared {
				continue
			}
			row := db.OverlapRow{
				PersonID: otherID,
				Topic:    topic,
				Weight:   interest.Weight,
			}
			if person, ok := s.people[otherID]; ok {
				row.Handle = person.Handle
				row.FullName = person.FullName
				row.AvatarURL = person.AvatarURL
			}
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PersonID != out[j].PersonID {
			return out[i].PersonID < out[j].PersonID
		}
		return out[i].Topic < out[j].Topic
	})
	return out, nil
}

func (s *memStore) AddEnrichment(ctx context.Context, topic string, item models.EnrichmentItem, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.enrichments[topic] {
		if existing.URL != "" && existing.URL == item.URL {
			return nil
		}
	}
	s.enrichments[topic] = append(s.enrichments[topic], item)
	return nil
}

func (s *memStore) EnrichmentsForTopics(ctx context.Context, topics []string) ([]db.EnrichmentRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.EnrichmentRow
	for _, topic := range topics {
		for _, item := range s.enrichments[topic] {
			summary := item.Summary
			url := item.URL
			id := item.URL
			if id == "" {
				id = item.Title
			}
			out = append(out, db.EnrichmentRow{
				Topic:   topic,
				ID:      surrealmodels.RecordID{Table: "enrichment", ID: id},
				Kind:    item.Kind,
				Title:   item.Title,
				Summary: &summary,
				URL:     &url,
			})
		}
	}
	return out, nil
}

// fakeScraper returns a canned profile or error.
type fakeScraper struct {
	profile *scraper.Profile
	err     error
}

func (f *fakeScraper) Scrape(ctx context.Context, handle string, maxPosts int, includeReels bool) (*scraper.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

// fakeTranscriber returns a canned transcript or error.
type fakeTranscriber struct {
	transcript *stt.Transcript
	err        error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, filename string, audio []byte) (*stt.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

// fakeFacts is a deterministic FactSource.
type fakeFacts struct {
	mu           sync.Mutex
	facts        extract.Facts
	captions     extract.CaptionResult
	extractCalls int
	captionItems []extract.ImageItem
	lastText     string
}

func (f *fakeFacts) Extract(ctx context.Context, text string) extract.Facts {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extractCalls++
	f.lastText = text
	return f.facts
}

func (f *fakeFacts) CaptionImages(ctx context.Context, items []extract.ImageItem) extract.CaptionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captionItems = items
	return f.captions
}

// fakeVendor records submissions and serves canned statuses.
type fakeVendor struct {
	mu          sync.Mutex
	nextID      int
	submitted   []string // "kind:topic"
	submitErr   error
	states      map[string]*research.TaskState
	statusErr   map[string]error
	statusCalls int
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{
		states:    make(map[string]*research.TaskState),
		statusErr: make(map[string]error),
	}
}

func (f *fakeVendor) submit(kind, topic string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextID++
	id := fmt.Sprintf("%s-%d", kind, f.nextID)
	f.submitted = append(f.submitted, kind+":"+topic)
	return id, nil
}

func (f *fakeVendor) SubmitResearch(ctx context.Context, topic, webhookURL string) (string, error) {
	return f.submit("research", topic)
}

func (f *fakeVendor) SubmitScout(ctx context.Context, topic, webhookURL string) (string, error) {
	return f.submit("scout", topic)
}

func (f *fakeVendor) TaskStatus(ctx context.Context, taskID string) (*research.TaskState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if err := f.statusErr[taskID]; err != nil {
		return nil, err
	}
	if state, ok := f.states[taskID]; ok {
		return state, nil
	}
	return nil, errors.New("unknown task")
}

// fakeIcebreaker returns a canned line.
type fakeIcebreaker struct {
	out string
	err error
}

func (f *fakeIcebreaker) GenerateIcebreaker(ctx context.Context, userInterests, targetInterests, shared []string) (string, error) {
	return f.out, f.err
}
