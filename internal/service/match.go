package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kindredhq/kindred/internal/db"
	"github.com/kindredhq/kindred/internal/models"
)

// ErrNoSharedInterests is returned when two people have no overlapping topics
// to build an icebreaker from.
var ErrNoSharedInterests = errors.New("no shared interests")

// Matcher computes affinity-ranked matches and graph projections from the
// accumulated interest graph. It is read-only and independent of ingestion.
type Matcher struct {
	graph      GraphStore
	icebreaker IcebreakerGenerator
	logger     *slog.Logger
}

// NewMatcher wires the matching engine.
func NewMatcher(graph GraphStore, icebreaker IcebreakerGenerator, logger *slog.Logger) *Matcher {
	return &Matcher{graph: graph, icebreaker: icebreaker, logger: logger}
}

// FindMatches ranks other people by shared-interest affinity: the sum over
// commonly-held topics of weight_a * weight_b. The querying person is never
// included. Ties are broken by ascending person id so ordering is stable.
func (m *Matcher) FindMatches(ctx context.Context, personID string, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = 10
	}

	mine, err := m.graph.GetInterests(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("find matches: %w", err)
	}
	if len(mine) == 0 {
		return []models.Match{}, nil
	}
	myWeights := make(map[string]float64, len(mine))
	for _, interest := range mine {
		myWeights[interest.Topic] = interest.Weight
	}

	overlaps, err := m.graph.OverlappingInterests(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("find matches: %w", err)
	}

	byPerson := make(map[string]*models.Match)
	for _, row := range overlaps {
		if row.PersonID == personID {
			continue
		}
		myWeight, ok := myWeights[row.Topic]
		if !ok {
			continue
		}
		match, ok := byPerson[row.PersonID]
		if !ok {
			match = &models.Match{
				PersonID:  row.PersonID,
				Handle:    row.Handle,
				FullName:  row.FullName,
				AvatarURL: row.AvatarURL,
			}
			byPerson[row.PersonID] = match
		}
		match.Affinity += myWeight * row.Weight
		match.SharedTopics = append(match.SharedTopics, row.Topic)
	}

	matches := make([]models.Match, 0, len(byPerson))
	for _, match := range byPerson {
		sort.Strings(match.SharedTopics)
		matches = append(matches, *match)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Affinity != matches[j].Affinity {
			return matches[i].Affinity > matches[j].Affinity
		}
		return matches[i].PersonID < matches[j].PersonID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Interests returns a person's interest edges, strongest first.
func (m *Matcher) Interests(ctx context.Context, personID string) ([]models.Interest, error) {
	return m.graph.GetInterests(ctx, personID)
}

// GraphSnapshot builds the bounded two-hop projection around the center
// people: their topic and affiliation edges, other people on shared topics,
// and enrichment hanging off those topics.
func (m *Matcher) GraphSnapshot(ctx context.Context, centerIDs []string) (*models.GraphData, error) {
	data := &models.GraphData{Nodes: []models.GraphNode{}, Edges: []models.GraphEdge{}}
	seenNodes := make(map[string]bool)
	seenEdges := make(map[string]bool)
	centers := make(map[string]bool, len(centerIDs))
	for _, id := range centerIDs {
		centers[id] = true
	}

	addNode := func(node models.GraphNode) {
		if seenNodes[node.ID] {
			return
		}
		seenNodes[node.ID] = true
		data.Nodes = append(data.Nodes, node)
	}
	addEdge := func(edge models.GraphEdge) {
		key := edge.Source + "|" + edge.Type + "|" + edge.Target
		if seenEdges[key] {
			return
		}
		seenEdges[key] = true
		data.Edges = append(data.Edges, edge)
	}

	var sharedTopics []string
	for _, centerID := range centerIDs {
		person, err := m.graph.GetPerson(ctx, centerID)
		if err != nil {
			return nil, fmt.Errorf("graph snapshot: %w", err)
		}
		addNode(models.GraphNode{
			ID:    "person:" + person.PersonID,
			Label: person.Handle,
			Type:  "self",
			Pic:   person.AvatarURL,
		})

		interests, err := m.graph.GetInterests(ctx, centerID)
		if err != nil {
			return nil, fmt.Errorf("graph snapshot: %w", err)
		}
		for _, interest := range interests {
			weight := interest.Weight
			addNode(models.GraphNode{
				ID:     "topic:" + interest.Topic,
				Label:  interest.Topic,
				Type:   "topic",
				Weight: &weight,
			})
			addEdge(models.GraphEdge{
				Source: "person:" + centerID,
				Target: "topic:" + interest.Topic,
				Type:   "interested_in",
				Weight: interest.Weight,
			})
			sharedTopics = append(sharedTopics, interest.Topic)
		}

		affiliations, err := m.graph.GetAffiliations(ctx, centerID)
		if err != nil {
			return nil, fmt.Errorf("graph snapshot: %w", err)
		}
		for _, aff := range affiliations {
			nodeID := "affiliation:" + aff.Kind + ":" + aff.Name
			addNode(models.GraphNode{ID: nodeID, Label: aff.Name, Type: "affiliation"})
			addEdge(models.GraphEdge{
				Source: "person:" + centerID,
				Target: nodeID,
				Type:   "affiliated_with",
				Weight: 1,
			})
		}

		// One hop out: other people on the center's topics.
		overlaps, err := m.graph.OverlappingInterests(ctx, centerID)
		if err != nil {
			return nil, fmt.Errorf("graph snapshot: %w", err)
		}
		for _, row := range overlaps {
			if centers[row.PersonID] {
				continue
			}
			addNode(models.GraphNode{
				ID:    "person:" + row.PersonID,
				Label: row.Handle,
				Type:  "person",
				Pic:   row.AvatarURL,
			})
			addEdge(models.GraphEdge{
				Source: "person:" + row.PersonID,
				Target: "topic:" + row.Topic,
				Type:   "interested_in",
				Weight: row.Weight,
			})
		}
	}

	enrichments, err := m.graph.EnrichmentsForTopics(ctx, sharedTopics)
	if err != nil {
		return nil, fmt.Errorf("graph snapshot: %w", err)
	}
	for _, row := range enrichments {
		nodeID, err := enrichmentNodeID(row)
		if err != nil {
			m.logger.Warn("skipping enrichment with bad id", "title", row.Title, "error", err)
			continue
		}
		addNode(models.GraphNode{ID: nodeID, Label: row.Title, Type: "enrichment", Pic: row.URL})
		addEdge(models.GraphEdge{
			Source: "topic:" + row.Topic,
			Target: nodeID,
			Type:   "has_enrichment",
			Weight: 1,
		})
	}

	return data, nil
}

func enrichmentNodeID(row db.EnrichmentRow) (string, error) {
	id, err := models.RecordIDString(row.ID)
	if err != nil {
		return "", err
	}
	return "enrichment:" + id, nil
}

// Icebreaker generates a conversation starter between two people based on
// their shared interests.
func (m *Matcher) Icebreaker(ctx context.Context, personID, targetID string) (string, error) {
	mine, err := m.graph.GetInterests(ctx, personID)
	if err != nil {
		return "", fmt.Errorf("icebreaker: %w", err)
	}
	theirs, err := m.graph.GetInterests(ctx, targetID)
	if err != nil {
		return "", fmt.Errorf("icebreaker: %w", err)
	}

	mineTopics := topics(mine)
	theirTopics := topics(theirs)
	theirSet := make(map[string]bool, len(theirTopics))
	for _, t := range theirTopics {
		theirSet[t] = true
	}
	var shared []string
	for _, t := range mineTopics {
		if theirSet[t] {
			shared = append(shared, t)
		}
	}
	if len(shared) == 0 {
		return "", fmt.Errorf("icebreaker between %s and %s: %w", personID, targetID, ErrNoSharedInterests)
	}

	return m.icebreaker.GenerateIcebreaker(ctx, mineTopics, theirTopics, shared)
}

func topics(interests []models.Interest) []string {
	out := make([]string, len(interests))
	for i, interest := range interests {
		out[i] = interest.Topic
	}
	return out
}
