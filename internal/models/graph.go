package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Person is an identity node in the graph.
type Person struct {
	ID        surrealmodels.RecordID `json:"id"`
	PersonID  string                 `json:"person_id"`
	Handle    string                 `json:"handle"`
	FullName  *string                `json:"full_name,omitempty"`
	Bio       *string                `json:"bio,omitempty"`
	AvatarURL *string                `json:"avatar_url,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Interest is one person->topic edge with provenance.
// Weight only ever increases on re-observation.
type Interest struct {
	Topic     string    `json:"topic"`
	Weight    float64   `json:"weight"`
	Source    string    `json:"source"`
	Evidence  *string   `json:"evidence,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AffiliationKind labels the simpler last-write-wins edges.
type AffiliationKind string

const (
	AffiliationLocation AffiliationKind = "location"
	AffiliationBrand    AffiliationKind = "brand"
)

// Match is one ranked result from the matching engine.
type Match struct {
	PersonID     string   `json:"person_id"`
	Handle       string   `json:"handle"`
	FullName     *string  `json:"full_name,omitempty"`
	AvatarURL    *string  `json:"avatar_url,omitempty"`
	Affinity     float64  `json:"affinity"`
	SharedTopics []string `json:"shared_topics"`
}

// EnrichmentItem is one append-only fact attached to a topic by the
// research reconciliation path.
type EnrichmentItem struct {
	Kind    string `json:"kind"` // community|event|meetup|trend|content
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	URL     string `json:"url,omitempty"`
}

// GraphNode is one node in the visualization projection.
type GraphNode struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Type   string   `json:"type"` // self|person|topic|affiliation|enrichment
	Weight *float64 `json:"weight,omitempty"`
	Pic    *string  `json:"pic,omitempty"`
}

// GraphEdge is one edge in the visualization projection.
type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// GraphData is the bounded two-hop projection around a set of people.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}
