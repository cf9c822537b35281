package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kindredhq/kindred/internal/db"
	"github.com/kindredhq/kindred/internal/metrics"
	"github.com/kindredhq/kindred/internal/models"
)

// researchWeight is the confidence assigned to facts derived from async
// research payloads, lower than directly observed content.
const researchWeight = 0.5

// Outcome classifies a completion attempt for the webhook response.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Reconciler applies results of long-running provider tasks to the graph
// exactly once, whether the result arrives by webhook or by polling.
type Reconciler struct {
	tasks          TaskStore
	graph          GraphStore
	vendor         ResearchVendor
	facts          FactSource
	pollInterval   time.Duration
	staleThreshold time.Duration
	metrics        *metrics.Collector
	logger         *slog.Logger
}

// NewReconciler wires the reconciler.
func NewReconciler(
	tasks TaskStore,
	graph GraphStore,
	vendor ResearchVendor,
	facts FactSource,
	pollInterval, staleThreshold time.Duration,
	logger *slog.Logger,
) *Reconciler {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	if staleThreshold <= 0 {
		staleThreshold = 10 * time.Minute
	}
	return &Reconciler{
		tasks:          tasks,
		graph:          graph,
		vendor:         vendor,
		facts:          facts,
		pollInterval:   pollInterval,
		staleThreshold: staleThreshold,
		metrics:        metrics.NewCollector(),
		logger:         logger,
	}
}

// WithMetrics swaps in a shared collector, so completion timings land in the
// same snapshot as the pipeline's.
func (r *Reconciler) WithMetrics(m *metrics.Collector) *Reconciler {
	if m != nil {
		r.metrics = m
	}
	return r
}

// HandleCompletion is the single completion path, shared by the webhook
// handler and the poll loop. The conditional status write resolves the race:
// exactly one caller observes the transition and applies the payload.
func (r *Reconciler) HandleCompletion(ctx context.Context, providerTaskID string, payload []byte) (outcome Outcome, err error) {
	start := time.Now()
	defer func() { r.metrics.Observe(metrics.OpCompletion, start, err) }()

	record, err := r.tasks.GetTaskRecord(ctx, providerTaskID)
	if errors.Is(err, db.ErrNotFound) {
		r.logger.Warn("completion for unknown task dropped", "task_id", providerTaskID)
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup task %s: %w", providerTaskID, err)
	}

	wasNew, err := r.tasks.CompleteTaskRecord(ctx, providerTaskID, string(payload))
	if err != nil {
		return "", fmt.Errorf("complete task %s: %w", providerTaskID, err)
	}
	if !wasNew {
		return OutcomeDuplicate, nil
	}

	r.applyResult(ctx, record, payload)
	return OutcomeProcessed, nil
}

// taskPayload is the vendor result shape. Result may be a plain string or
// arbitrary JSON; StructuredResult, when present, is preferred.
type taskPayload struct {
	Result           json.RawMessage `json:"result,omitempty"`
	StructuredResult []resultItem    `json:"structured_result,omitempty"`
}

type resultItem struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

// applyResult merges the payload into the graph. The task record is already
// completed at this point; merge failures are logged, not retried.
func (r *Reconciler) applyResult(ctx context.Context, record *models.TaskRecord, payload []byte) {
	log := r.logger.With("task_id", record.ProviderTaskID, "kind", record.Kind, "topic", record.Topic)

	var parsed taskPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		log.Warn("unparseable task payload", "error", err)
		return
	}

	for _, item := range parsed.StructuredResult {
		if item.Title == "" {
			continue
		}
		kind := item.Kind
		if kind == "" {
			kind = "content"
		}
		err := r.graph.AddEnrichment(ctx, record.Topic, models.EnrichmentItem{
			Kind:    kind,
			Title:   item.Title,
			Summary: item.Summary,
			URL:     item.URL,
		}, string(record.Kind))
		if err != nil {
			log.Warn("enrichment merge failed", "title", item.Title, "error", err)
		}
	}

	// Scout results are pure enrichment; only research payloads feed the
	// subject's interest edges.
	if record.Kind != models.TaskResearch {
		return
	}

	text := resultText(parsed)
	if text == "" {
		log.Info("research payload carried no extractable text")
		return
	}

	facts := r.facts.Extract(ctx, text)
	added := 0
	for category, values := range facts {
		if !category.Interest() {
			continue
		}
		for _, value := range values {
			evidence := "Research on " + record.Topic
			if err := r.graph.MergeInterest(ctx, record.SubjectKey, value, researchWeight, "research", &evidence); err != nil {
				log.Warn("research interest merge failed", "value", value, "error", err)
				continue
			}
			added++
		}
	}
	log.Info("research result applied", "entities_added", added)
}

// resultText flattens the payload into extraction input.
func resultText(parsed taskPayload) string {
	var parts []string
	for _, item := range parsed.StructuredResult {
		if item.Title != "" {
			parts = append(parts, item.Title)
		}
		if item.Summary != "" {
			parts = append(parts, item.Summary)
		}
	}
	if len(parts) == 0 && len(parsed.Result) > 0 {
		var s string
		if err := json.Unmarshal(parsed.Result, &s); err == nil {
			parts = append(parts, s)
		} else {
			parts = append(parts, string(parsed.Result))
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Run drives the poll loop until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info("task poll loop started",
		"interval", r.pollInterval, "stale_threshold", r.staleThreshold)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("task poll loop stopped")
			return
		case <-ticker.C:
			r.PollOnce(ctx)
		}
	}
}

// PollOnce checks every stale task against the provider. Per-task errors are
// logged and skipped so one bad task cannot starve the rest.
func (r *Reconciler) PollOnce(ctx context.Context) {
	stale, err := r.tasks.StaleTasks(ctx, r.staleThreshold)
	if err != nil {
		r.logger.Error("stale task query failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	r.logger.Debug("polling stale tasks", "count", len(stale))

	for _, record := range stale {
		state, err := r.vendor.TaskStatus(ctx, record.ProviderTaskID)
		if err != nil {
			r.logger.Warn("provider status check failed",
				"task_id", record.ProviderTaskID, "error", err)
			if rerr := r.tasks.RecordTaskError(ctx, record.ProviderTaskID, err.Error()); rerr != nil {
				r.logger.Error("task error update failed",
					"task_id", record.ProviderTaskID, "error", rerr)
			}
			continue
		}

		switch {
		case state.Succeeded():
			outcome, err := r.HandleCompletion(ctx, record.ProviderTaskID, state.Result)
			if err != nil {
				r.logger.Error("poll completion failed",
					"task_id", record.ProviderTaskID, "error", err)
				continue
			}
			r.logger.Info("poll observed completed task",
				"task_id", record.ProviderTaskID, "outcome", outcome)
		case state.Done():
			msg := state.Error
			if msg == "" {
				msg = "provider reported status " + state.Status
			}
			if err := r.tasks.FailTask(ctx, record.ProviderTaskID, msg); err != nil {
				r.logger.Error("task failure update failed",
					"task_id", record.ProviderTaskID, "error", err)
			}
		}
	}
}
