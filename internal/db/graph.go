package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kindredhq/kindred/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// UpsertPerson creates or updates a person node.
func (c *Client) UpsertPerson(
	ctx context.Context,
	personID, handle string,
	fullName, bio, avatarURL *string,
) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("person", $pid) SET
			person_id = $pid,
			handle = $handle,
			full_name = $full_name,
			bio = $bio,
			avatar_url = $avatar_url,
			updated_at = time::now()
	`, map[string]any{
		"pid":        personID,
		"handle":     handle,
		"full_name":  fullName,
		"bio":        bio,
		"avatar_url": avatarURL,
	})
	if err != nil {
		return fmt.Errorf("upsert person: %w", wrapQueryError(err))
	}
	return nil
}

// GetPerson retrieves a person node by id. Returns ErrNotFound if unknown.
func (c *Client) GetPerson(ctx context.Context, personID string) (*models.Person, error) {
	results, err := surrealdb.Query[[]models.Person](ctx, c.db, `
		SELECT * FROM type::record("person", $pid)
	`, map[string]any{"pid": personID})
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get person %s: %w", personID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// MergeInterest links a person to a topic. The weight merge is monotonic:
// a repeat observation can only raise the stored weight, never lower it.
func (c *Client) MergeInterest(
	ctx context.Context,
	personID, topic string,
	weight float64,
	source string,
	evidence *string,
) error {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return fmt.Errorf("merge interest: empty topic")
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		LET $p = type::record("person", $pid);
		LET $t = type::record("topic", $topic);
		UPSERT $t SET name = $topic;
		LET $existing = (SELECT * FROM interested_in WHERE in = $p AND out = $t);
		IF array::len($existing) > 0 {
			UPDATE interested_in SET
				weight = math::max([weight, $weight]),
				source = $source,
				evidence = $evidence ?? evidence,
				updated_at = time::now()
			WHERE in = $p AND out = $t;
		} ELSE {
			RELATE $p->interested_in->$t SET
				weight = $weight,
				source = $source,
				evidence = $evidence,
				updated_at = time::now();
		};
	`, map[string]any{
		"pid":      personID,
		"topic":    topic,
		"weight":   weight,
		"source":   source,
		"evidence": evidence,
	})
	if err != nil {
		return fmt.Errorf("merge interest: %w", wrapQueryError(err))
	}
	return nil
}

// MergeAffiliation links a person to a location or brand.
// Unlike interests, source and updated_at are simply last-write-wins.
func (c *Client) MergeAffiliation(
	ctx context.Context,
	personID, name string,
	kind models.AffiliationKind,
	source string,
) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("merge affiliation: empty name")
	}
	affID := string(kind) + ":" + name

	_, err := surrealdb.Query[any](ctx, c.db, `
		LET $p = type::record("person", $pid);
		LET $a = type::record("affiliation", $aid);
		UPSERT $a SET name = $name, kind = $kind;
		LET $existing = (SELECT * FROM affiliated_with WHERE in = $p AND out = $a);
		IF array::len($existing) > 0 {
			UPDATE affiliated_with SET
				source = $source,
				updated_at = time::now()
			WHERE in = $p AND out = $a;
		} ELSE {
			RELATE $p->affiliated_with->$a SET
				kind = $kind,
				source = $source,
				updated_at = time::now();
		};
	`, map[string]any{
		"pid":    personID,
		"aid":    affID,
		"name":   name,
		"kind":   string(kind),
		"source": source,
	})
	if err != nil {
		return fmt.Errorf("merge affiliation: %w", wrapQueryError(err))
	}
	return nil
}

// GetInterests returns all interests of a person, sorted by weight descending.
func (c *Client) GetInterests(ctx context.Context, personID string) ([]models.Interest, error) {
	results, err := surrealdb.Query[[]models.Interest](ctx, c.db, `
		SELECT out.name AS topic, weight, source, evidence, updated_at
		FROM interested_in
		WHERE in = type::record("person", $pid)
		ORDER BY weight DESC
	`, map[string]any{"pid": personID})
	if err != nil {
		return nil, fmt.Errorf("get interests: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Interest{}, nil
	}
	return (*results)[0].Result, nil
}

// AffiliationRow is one person->affiliation edge with the target's fields.
type AffiliationRow struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

// GetAffiliations returns all affiliations of a person.
func (c *Client) GetAffiliations(ctx context.Context, personID string) ([]AffiliationRow, error) {
	results, err := surrealdb.Query[[]AffiliationRow](ctx, c.db, `
		SELECT out.name AS name, out.kind AS kind, source
		FROM affiliated_with
		WHERE in = type::record("person", $pid)
	`, map[string]any{"pid": personID})
	if err != nil {
		return nil, fmt.Errorf("get affiliations: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []AffiliationRow{}, nil
	}
	return (*results)[0].Result, nil
}

// OverlapRow is one other person's weight on one of the querying person's
// topics. The matching engine aggregates these into affinities.
type OverlapRow struct {
	PersonID  string  `json:"person_id"`
	Handle    string  `json:"handle"`
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Topic     string  `json:"topic"`
	Weight    float64 `json:"weight"`
}

// OverlappingInterests returns, for every topic the given person holds, the
// interest edges of every other person on that topic.
func (c *Client) OverlappingInterests(ctx context.Context, personID string) ([]OverlapRow, error) {
	results, err := surrealdb.Query[[]OverlapRow](ctx, c.db, `
		LET $me = type::record("person", $pid);
		LET $topics = (SELECT VALUE out FROM interested_in WHERE in = $me);
		SELECT
			in.person_id AS person_id,
			in.handle AS handle,
			in.full_name AS full_name,
			in.avatar_url AS avatar_url,
			out.name AS topic,
			weight
		FROM interested_in
		WHERE out IN $topics AND in != $me;
	`, map[string]any{"pid": personID})
	if err != nil {
		return nil, fmt.Errorf("overlapping interests: %w", err)
	}
	// Two statements: LET produces no result rows, the SELECT is last.
	if results == nil || len(*results) == 0 {
		return []OverlapRow{}, nil
	}
	last := (*results)[len(*results)-1]
	return last.Result, nil
}

// AddEnrichment attaches an append-only enrichment item to a topic.
// Items with a URL are deduplicated by it; the relation's unique index
// makes re-attachment a no-op.
func (c *Client) AddEnrichment(ctx context.Context, topic string, item models.EnrichmentItem, source string) error {
	topic = strings.ToLower(strings.TrimSpace(topic))
	enrichmentID := item.URL
	if enrichmentID == "" {
		enrichmentID = uuid.New().String()
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		LET $t = type::record("topic", $topic);
		UPSERT $t SET name = $topic;
		LET $e = type::record("enrichment", $eid);
		UPSERT $e SET
			kind = $kind,
			title = $title,
			summary = $summary,
			url = $url,
			source = $source,
			created_at = time::now();
		LET $existing = (SELECT * FROM has_enrichment WHERE in = $t AND out = $e);
		IF array::len($existing) == 0 {
			RELATE $t->has_enrichment->$e SET created_at = time::now();
		};
	`, map[string]any{
		"topic":   topic,
		"eid":     enrichmentID,
		"kind":    item.Kind,
		"title":   item.Title,
		"summary": nilIfEmpty(item.Summary),
		"url":     nilIfEmpty(item.URL),
		"source":  source,
	})
	if err != nil {
		return fmt.Errorf("add enrichment: %w", wrapQueryError(err))
	}
	return nil
}

// EnrichmentRow is one topic->enrichment edge with the item's fields.
type EnrichmentRow struct {
	Topic   string                 `json:"topic"`
	ID      surrealmodels.RecordID `json:"id"`
	Kind    string                 `json:"kind"`
	Title   string                 `json:"title"`
	Summary *string                `json:"summary,omitempty"`
	URL     *string                `json:"url,omitempty"`
}

// EnrichmentsForTopics returns enrichment items hanging off the given topics.
func (c *Client) EnrichmentsForTopics(ctx context.Context, topics []string) ([]EnrichmentRow, error) {
	if len(topics) == 0 {
		return []EnrichmentRow{}, nil
	}
	lowered := make([]string, len(topics))
	for i, t := range topics {
		lowered[i] = strings.ToLower(strings.TrimSpace(t))
	}

	results, err := surrealdb.Query[[]EnrichmentRow](ctx, c.db, `
		SELECT
			in.name AS topic,
			out.id AS id,
			out.kind AS kind,
			out.title AS title,
			out.summary AS summary,
			out.url AS url
		FROM has_enrichment
		WHERE in.name IN $topics
	`, map[string]any{"topics": lowered})
	if err != nil {
		return nil, fmt.Errorf("enrichments for topics: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []EnrichmentRow{}, nil
	}
	return (*results)[0].Result, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
