package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kindredhq/kindred/internal/extract"
	"github.com/kindredhq/kindred/internal/metrics"
	"github.com/kindredhq/kindred/internal/models"
	"github.com/kindredhq/kindred/internal/scraper"
)

// extractedWeight is the confidence assigned to facts extracted directly
// from a subject's own content.
const extractedWeight = 0.6

// Pipeline stage names, surfaced verbatim in job progress.
const (
	StageScraping           = "scraping"
	StageTranscribing       = "transcribing"
	StageAnalyzingMedia     = "analyzing_media"
	StageExtractingEntities = "extracting_entities"
	StageSubmittingResearch = "submitting_research"
	StageCompleted          = "completed"
)

// OrchestratorConfig carries the pipeline tunables.
type OrchestratorConfig struct {
	// TopInterests caps how many interests seed async research tasks.
	TopInterests int
	// WebhookBaseURL, when set, is where the research vendor posts results.
	WebhookBaseURL string
	// Metrics collects per-operation timings. A collector is created when nil.
	Metrics *metrics.Collector
}

// Orchestrator runs the multi-stage ingestion pipelines. Stage failures are
// accumulated into failed_steps; only an unreachable content source fails
// the whole job.
type Orchestrator struct {
	jobs    JobStore
	tasks   TaskStore
	graph   GraphStore
	scraper Scraper
	stt     Transcriber
	facts   FactSource
	vendor  ResearchVendor
	cfg     OrchestratorConfig
	logger  *slog.Logger
}

// NewOrchestrator wires the pipeline dependencies.
func NewOrchestrator(
	jobs JobStore,
	tasks TaskStore,
	graph GraphStore,
	sc Scraper,
	tr Transcriber,
	facts FactSource,
	vendor ResearchVendor,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.TopInterests <= 0 {
		cfg.TopInterests = 3
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}
	return &Orchestrator{
		jobs:    jobs,
		tasks:   tasks,
		graph:   graph,
		scraper: sc,
		stt:     tr,
		facts:   facts,
		vendor:  vendor,
		cfg:     cfg,
		logger:  logger,
	}
}

// RunProfileIngest executes the profile pipeline:
// scraping -> analyzing_media -> extracting_entities -> submitting_research.
func (o *Orchestrator) RunProfileIngest(ctx context.Context, jobID string, req ProfileIngestRequest) {
	log := o.logger.With("job_id", jobID, "handle", req.Handle)
	subjectKey := SubjectKey(req.Handle)
	var failedSteps []string

	o.setStage(ctx, jobID, StageScraping, nil)
	start := time.Now()
	profile, err := o.scraper.Scrape(ctx, req.Handle, req.MaxPosts, req.IncludeReels)
	o.cfg.Metrics.Observe(metrics.OpScrape, start, err)
	if err != nil {
		log.Error("scrape failed", "error", err)
		o.failJob(ctx, jobID, fmt.Sprintf("scrape failed: %v", err))
		return
	}
	log.Info("scraped profile", "posts", len(profile.Posts))

	handle := profile.Handle
	if handle == "" {
		handle = subjectKey
	}
	err = o.graph.UpsertPerson(ctx, subjectKey, handle,
		optString(profile.FullName), optString(profile.Biography), optString(profile.AvatarURL))
	if err != nil {
		log.Error("person upsert failed", "error", err)
		o.failJob(ctx, jobID, fmt.Sprintf("graph write failed: %v", err))
		return
	}

	o.setStage(ctx, jobID, StageAnalyzingMedia, map[string]any{"posts": len(profile.Posts)})
	items := imageItems(profile.Posts, req.MaxPosts)
	start = time.Now()
	captioned := o.facts.CaptionImages(ctx, items)
	o.cfg.Metrics.Observe(metrics.OpCaption, start, nil)
	failedSteps = append(failedSteps, captioned.Failed...)

	o.setStage(ctx, jobID, StageExtractingEntities, map[string]any{
		"images_captioned": len(captioned.Captions),
	})
	corpus := buildCorpus(profile, req.MaxPosts, captioned.Captions)
	start = time.Now()
	facts := o.facts.Extract(ctx, corpus)
	o.cfg.Metrics.Observe(metrics.OpExtract, start, nil)
	added := o.mergeFacts(ctx, subjectKey, facts, "extracted", extractedWeight, &failedSteps, log)

	o.setStage(ctx, jobID, StageSubmittingResearch, map[string]any{"entities_added": added})
	o.submitResearchTasks(ctx, subjectKey, req.OwnerID, &failedSteps, log)

	o.completeJob(ctx, jobID, map[string]any{
		"entities_added": added,
		"posts_analyzed": postsAnalyzed(profile, req.MaxPosts),
		"failed_steps":   emptyIfNil(failedSteps),
	})
	log.Info("profile ingest completed", "entities_added", added, "failed_steps", len(failedSteps))
}

// RunVoiceIngest executes the voice pipeline:
// transcribing -> extracting_entities.
func (o *Orchestrator) RunVoiceIngest(ctx context.Context, jobID, ownerID, filename string, audio []byte) {
	log := o.logger.With("job_id", jobID, "owner_id", ownerID)
	var failedSteps []string

	o.setStage(ctx, jobID, StageTranscribing, map[string]any{"bytes": len(audio)})
	start := time.Now()
	transcript, err := o.stt.Transcribe(ctx, filename, audio)
	o.cfg.Metrics.Observe(metrics.OpTranscribe, start, err)
	if err != nil {
		log.Error("transcription failed", "error", err)
		o.failJob(ctx, jobID, fmt.Sprintf("transcription failed: %v", err))
		return
	}

	o.setStage(ctx, jobID, StageExtractingEntities, map[string]any{
		"transcript_length": len(transcript.Text),
	})
	start = time.Now()
	facts := o.facts.Extract(ctx, transcript.Text)
	o.cfg.Metrics.Observe(metrics.OpExtract, start, nil)
	added := o.mergeFacts(ctx, ownerID, facts, "voice", extractedWeight, &failedSteps, log)

	o.completeJob(ctx, jobID, map[string]any{
		"entities_added":    added,
		"transcript_length": len(transcript.Text),
		"emotions":          transcript.Emotions(),
		"failed_steps":      emptyIfNil(failedSteps),
	})
	log.Info("voice ingest completed", "entities_added", added)
}

// mergeFacts writes normalized facts into the graph. Interest categories
// become weighted interest edges; location and brand become affiliations.
// Individual merge failures are recorded and skipped.
func (o *Orchestrator) mergeFacts(
	ctx context.Context,
	personID string,
	facts extract.Facts,
	source string,
	weight float64,
	failedSteps *[]string,
	log *slog.Logger,
) int {
	added := 0
	for category, values := range facts {
		for _, value := range values {
			var err error
			switch {
			case category.Interest():
				evidence := "Extracted as " + string(category)
				err = o.graph.MergeInterest(ctx, personID, value, weight, source, &evidence)
			case category == extract.CategoryLocation:
				err = o.graph.MergeAffiliation(ctx, personID, value, models.AffiliationLocation, source)
			case category == extract.CategoryBrand:
				err = o.graph.MergeAffiliation(ctx, personID, value, models.AffiliationBrand, source)
			}
			if err != nil {
				log.Warn("fact merge failed", "category", category, "value", value, "error", err)
				*failedSteps = append(*failedSteps, "merge:"+value)
				continue
			}
			added++
		}
	}
	return added
}

// submitResearchTasks seeds research and scout tasks for the subject's
// strongest interests. Submission failures are non-fatal.
func (o *Orchestrator) submitResearchTasks(
	ctx context.Context,
	subjectKey, ownerID string,
	failedSteps *[]string,
	log *slog.Logger,
) {
	interests, err := o.graph.GetInterests(ctx, subjectKey)
	if err != nil {
		log.Error("interest lookup for research failed", "error", err)
		*failedSteps = append(*failedSteps, "research:interest_lookup")
		return
	}
	if len(interests) > o.cfg.TopInterests {
		interests = interests[:o.cfg.TopInterests]
	}

	for _, interest := range interests {
		o.submitOne(ctx, models.TaskResearch, interest.Topic, subjectKey, ownerID, failedSteps, log)
		o.submitOne(ctx, models.TaskScout, interest.Topic, subjectKey, ownerID, failedSteps, log)
	}
}

func (o *Orchestrator) submitOne(
	ctx context.Context,
	kind models.TaskKind,
	topic, subjectKey, ownerID string,
	failedSteps *[]string,
	log *slog.Logger,
) {
	var taskID string
	var err error
	start := time.Now()
	switch kind {
	case models.TaskScout:
		taskID, err = o.vendor.SubmitScout(ctx, topic, o.cfg.WebhookBaseURL)
	default:
		taskID, err = o.vendor.SubmitResearch(ctx, topic, o.cfg.WebhookBaseURL)
	}
	o.cfg.Metrics.Observe(metrics.OpResearchSubmit, start, err)
	if err != nil {
		log.Warn("task submission failed", "kind", kind, "topic", topic, "error", err)
		*failedSteps = append(*failedSteps, string(kind)+":"+topic)
		return
	}

	if err := o.tasks.CreateTaskRecord(ctx, taskID, kind, topic, subjectKey, ownerID); err != nil {
		// Without a record neither webhook nor poll can apply the result.
		log.Error("task record creation failed", "kind", kind, "topic", topic, "task_id", taskID, "error", err)
		*failedSteps = append(*failedSteps, string(kind)+":"+topic)
	}
}

func (o *Orchestrator) setStage(ctx context.Context, jobID, stage string, extra map[string]any) {
	progress := map[string]any{"stage": stage}
	for k, v := range extra {
		progress[k] = v
	}
	if err := o.jobs.UpdateJob(ctx, jobID, models.JobProcessing, progress, nil, nil); err != nil {
		o.logger.Error("job progress update failed", "job_id", jobID, "stage", stage, "error", err)
	}
}

func (o *Orchestrator) completeJob(ctx context.Context, jobID string, result map[string]any) {
	progress := map[string]any{"stage": StageCompleted}
	if err := o.jobs.UpdateJob(ctx, jobID, models.JobCompleted, progress, result, nil); err != nil {
		o.logger.Error("job completion update failed", "job_id", jobID, "error", err)
	}
}

func (o *Orchestrator) failJob(ctx context.Context, jobID, msg string) {
	if err := o.jobs.UpdateJob(ctx, jobID, models.JobFailed, nil, nil, &msg); err != nil {
		o.logger.Error("job failure update failed", "job_id", jobID, "error", err)
	}
}

// imageItems collects the image URLs to caption, every carousel slide
// included, capped at maxPosts*3 across the run.
func imageItems(posts []scraper.Post, maxPosts int) []extract.ImageItem {
	if len(posts) > maxPosts {
		posts = posts[:maxPosts]
	}
	limit := maxPosts * 3

	var items []extract.ImageItem
	for _, post := range posts {
		for _, url := range post.ImageURLs() {
			if len(items) >= limit {
				return items
			}
			items = append(items, extract.ImageItem{URL: url, Caption: post.Caption})
		}
	}
	return items
}

// buildCorpus concatenates bio, post captions and image captions into the
// extraction input.
func buildCorpus(profile *scraper.Profile, maxPosts int, imageCaptions []string) string {
	var parts []string
	if profile.Biography != "" {
		parts = append(parts, profile.Biography)
	}
	posts := profile.Posts
	if len(posts) > maxPosts {
		posts = posts[:maxPosts]
	}
	for _, post := range posts {
		if post.Caption != "" {
			parts = append(parts, post.Caption)
		}
	}
	for _, caption := range imageCaptions {
		if caption != "" && !strings.EqualFold(strings.TrimSpace(caption), "unclear") {
			parts = append(parts, caption)
		}
	}
	return strings.Join(parts, "\n")
}

func postsAnalyzed(profile *scraper.Profile, maxPosts int) int {
	if len(profile.Posts) > maxPosts {
		return maxPosts
	}
	return len(profile.Posts)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
