// Package document holds the canvas document model of a roadmap: its elements,
// their placement rules and the invariants checked before a mutation is accepted.
package document

import "time"

type Priority string
type Status string
type Severity string
type LineStyle string
type ElementType string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	LineSolid  LineStyle = "solid"
	LineDashed LineStyle = "dashed"
)

const (
	ElementMilestone ElementType = "milestone"
	ElementNote      ElementType = "note"
)

// Caller identifies the user on whose behalf an operation runs.
type Caller struct {
	UserID   string
	Username string
}

type Collaborator struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Roadmap struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	OwnerID       string         `json:"ownerId"`
	OwnerName     string         `json:"ownerName"`
	IsPublic      bool           `json:"isPublic"`
	Collaborators []Collaborator `json:"collaborators"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// CollaboratorIDs returns the user ids of every collaborator.
func (r Roadmap) CollaboratorIDs() []string {
	ids := make([]string, 0, len(r.Collaborators))
	for _, c := range r.Collaborators {
		ids = append(ids, c.ID)
	}
	return ids
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Milestone struct {
	ID          string    `json:"id"`
	RoadmapID   string    `json:"roadmapId"`
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Note struct {
	ID        string    `json:"id"`
	RoadmapID string    `json:"roadmapId"`
	Content   string    `json:"content"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Endpoint is one end of a connection.
type Endpoint struct {
	Type ElementType `json:"type"`
	ID   string      `json:"id"`
}

type Connection struct {
	ID        string    `json:"id"`
	RoadmapID string    `json:"roadmapId"`
	From      Endpoint  `json:"from"`
	To        Endpoint  `json:"to"`
	Style     LineStyle `json:"style"`
	CreatedAt time.Time `json:"createdAt"`
}

type RiskMarker struct {
	ID          string    `json:"id"`
	RoadmapID   string    `json:"roadmapId"`
	MilestoneID *string   `json:"milestoneId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Document is the snapshot handed to renderers: the roadmap scalars plus four
// ordered collections that are never nil.
type Document struct {
	Roadmap
	Milestones  []Milestone  `json:"milestones"`
	Notes       []Note       `json:"notes"`
	Connections []Connection `json:"connections"`
	Risks       []RiskMarker `json:"risks"`
}

// Normalize replaces nil collections with empty ones.
func (d *Document) Normalize() {
	if d.Collaborators == nil {
		d.Collaborators = []Collaborator{}
	}
	if d.Milestones == nil {
		d.Milestones = []Milestone{}
	}
	if d.Notes == nil {
		d.Notes = []Note{}
	}
	if d.Connections == nil {
		d.Connections = []Connection{}
	}
	if d.Risks == nil {
		d.Risks = []RiskMarker{}
	}
}

func (d Document) Milestone(id string) (Milestone, bool) {
	for _, m := range d.Milestones {
		if m.ID == id {
			return m, true
		}
	}
	return Milestone{}, false
}

func (d Document) Note(id string) (Note, bool) {
	for _, n := range d.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}

// RoadmapSummary is a list row for the "my roadmaps" and "browse" views.
type RoadmapSummary struct {
	Roadmap
	Milestones []Milestone `json:"milestones,omitempty"`
}

// Event describes a committed mutation for activity, webhook and search consumers.
type Event struct {
	RoadmapID  string         `json:"roadmapId"`
	ActorID    string         `json:"actorId"`
	ActorName  string         `json:"actorName"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Payload    map[string]any `json:"payload,omitempty"`
	At         time.Time      `json:"at"`
}
