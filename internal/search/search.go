package search

import (
	"context"
	"strings"

	"roadmapper/api/internal/document"
)

// Result is a single public roadmap matching a query.
type Result struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	OwnerName string `json:"ownerName"`
}

type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over public roadmaps.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// RoadmapRecord is what gets indexed for one roadmap. Milestone text is
// folded into the roadmap so a roadmap is the only unit of result.
type RoadmapRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	OwnerName   string   `json:"ownerName"`
	IsPublic    bool     `json:"isPublic"`
	Milestones  []string `json:"milestones"`
}

// RecordFromDocument flattens a loaded document into a search record.
func RecordFromDocument(doc document.Document) RoadmapRecord {
	milestones := make([]string, 0, len(doc.Milestones))
	for _, m := range doc.Milestones {
		text := strings.TrimSpace(m.Title + " " + m.Description)
		if text != "" {
			milestones = append(milestones, text)
		}
	}
	return RoadmapRecord{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		OwnerName:   doc.OwnerName,
		IsPublic:    doc.IsPublic,
		Milestones:  milestones,
	}
}

func normalizeQuery(q Query) Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
