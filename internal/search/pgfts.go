package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres the whole service is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// matchSQL selects public roadmaps whose own text or any milestone's text
// matches $1.
const matchSQL = `
	FROM roadmaps r
	JOIN users u ON u.id = r.owner_id
	WHERE r.is_public
	  AND (
		to_tsvector('simple', r.title || ' ' || r.description) @@ plainto_tsquery('simple', $1)
		OR EXISTS (
			SELECT 1 FROM milestones m
			WHERE m.roadmap_id = r.id
			  AND to_tsvector('simple', m.title || ' ' || m.description) @@ plainto_tsquery('simple', $1)
		)
	  )`

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	q = normalizeQuery(q)
	if q.Text == "" {
		return nil, 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) `+matchSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT r.id, r.title,
			ts_headline('simple', coalesce(r.description, ''), plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			u.username
		`+matchSQL+`
		ORDER BY ts_rank(to_tsvector('simple', r.title || ' ' || r.description), plainto_tsquery('simple', $1)) DESC, r.updated_at DESC
		LIMIT $2 OFFSET $3
	`, q.Text, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.OwnerName); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadPublicRecords returns every public roadmap for a full reindex.
func (p *PgFTS) LoadPublicRecords(ctx context.Context) ([]RoadmapRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.description, u.username,
			COALESCE(
				(SELECT json_agg(m.title || ' ' || m.description ORDER BY m.date) FROM milestones m WHERE m.roadmap_id = r.id),
				'[]'::json
			)::text
		FROM roadmaps r
		JOIN users u ON u.id = r.owner_id
		WHERE r.is_public
	`)
	if err != nil {
		return nil, fmt.Errorf("load roadmaps: %w", err)
	}
	defer rows.Close()

	records := make([]RoadmapRecord, 0)
	for rows.Next() {
		var rec RoadmapRecord
		var milestonesRaw []byte
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.OwnerName, &milestonesRaw); err != nil {
			return nil, fmt.Errorf("scan roadmap record: %w", err)
		}
		if err := json.Unmarshal(milestonesRaw, &rec.Milestones); err != nil {
			return nil, fmt.Errorf("decode milestones for %s: %w", rec.ID, err)
		}
		rec.IsPublic = true
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roadmap records: %w", err)
	}
	return records, nil
}
