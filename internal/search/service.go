package search

import (
	"context"
	"log"
)

// Service tries the primary searcher first and falls back to PG FTS.
type Service struct {
	meili  *Meili
	pgfts  Searcher
	loader recordLoader
}

type recordLoader interface {
	LoadPublicRecords(ctx context.Context) ([]RoadmapRecord, error)
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{meili: meili}
	if pgfts != nil {
		s.pgfts = pgfts
		s.loader = pgfts
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	q = normalizeQuery(q)
	if q.Text == "" {
		return Response{Results: []Result{}, Query: q.Text}
	}
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Indexing reports whether a search index is attached. Without one, index
// updates are dropped and queries go straight to Postgres.
func (s *Service) Indexing() bool {
	return s != nil && s.meili != nil
}

// IndexRoadmap upserts a public roadmap or removes a private one
// (fire-and-forget to Meilisearch).
func (s *Service) IndexRoadmap(rec RoadmapRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		var err error
		if rec.IsPublic {
			err = s.meili.IndexRoadmaps([]RoadmapRecord{rec})
		} else {
			err = s.meili.DeleteRoadmap(rec.ID)
		}
		if err != nil {
			log.Printf("search: index roadmap %s: %v", rec.ID, err)
		}
	}()
}

func (s *Service) DeleteRoadmap(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteRoadmap(id); err != nil {
			log.Printf("search: delete roadmap %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG pushes every public roadmap from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.loader == nil {
		return
	}
	records, err := s.loader.LoadPublicRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexRoadmaps(records); err != nil {
		log.Printf("search: reindex roadmaps: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
