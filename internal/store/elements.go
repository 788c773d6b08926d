package store

import (
	"context"
	"database/sql"
	"fmt"

	"roadmapper/api/internal/document"
)

const milestoneColumns = `id, roadmap_id, title, date::text, description, x, y, priority, status, created_at, updated_at`

func scanMilestone(row rowScanner) (document.Milestone, error) {
	var item document.Milestone
	err := row.Scan(
		&item.ID,
		&item.RoadmapID,
		&item.Title,
		&item.Date,
		&item.Description,
		&item.X,
		&item.Y,
		&item.Priority,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListMilestones(ctx context.Context, roadmapID string) ([]document.Milestone, error) {
	if err := checkID("roadmap", roadmapID); err != nil {
		return []document.Milestone{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE roadmap_id=$1
		ORDER BY date ASC, created_at ASC
	`, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	items := make([]document.Milestone, 0)
	for rows.Next() {
		item, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountMilestones(ctx context.Context, roadmapID string) (int, error) {
	return s.count(ctx, "count milestones", `SELECT COUNT(*) FROM milestones WHERE roadmap_id=$1`, roadmapID)
}

func (s *PostgresStore) GetMilestone(ctx context.Context, id string) (document.Milestone, error) {
	if err := checkID("milestone", id); err != nil {
		return document.Milestone{}, err
	}
	item, err := scanMilestone(s.db.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id=$1`, id))
	if err != nil {
		return document.Milestone{}, notFound("get milestone", "milestone", id, err)
	}
	return item, nil
}

func (s *PostgresStore) InsertMilestone(ctx context.Context, m document.Milestone) (document.Milestone, error) {
	item, err := scanMilestone(s.db.QueryRowContext(ctx, `
		INSERT INTO milestones (id, roadmap_id, title, date, description, x, y, priority, status)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)
		RETURNING `+milestoneColumns,
		newID(), m.RoadmapID, m.Title, m.Date, m.Description, m.X, m.Y, m.Priority, m.Status,
	))
	if err != nil {
		return document.Milestone{}, fmt.Errorf("insert milestone: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateMilestone(ctx context.Context, m document.Milestone) (document.Milestone, error) {
	if err := checkID("milestone", m.ID); err != nil {
		return document.Milestone{}, err
	}
	item, err := scanMilestone(s.db.QueryRowContext(ctx, `
		UPDATE milestones
		SET title=$2, date=$3::date, description=$4, x=$5, y=$6, priority=$7, status=$8, updated_at=NOW()
		WHERE id=$1
		RETURNING `+milestoneColumns,
		m.ID, m.Title, m.Date, m.Description, m.X, m.Y, m.Priority, m.Status,
	))
	if err != nil {
		return document.Milestone{}, notFound("update milestone", "milestone", m.ID, err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteMilestone(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "milestones", "milestone", id)
}

const noteColumns = `id, roadmap_id, content, x, y, width, height, color, created_at, updated_at`

func scanNote(row rowScanner) (document.Note, error) {
	var item document.Note
	err := row.Scan(
		&item.ID,
		&item.RoadmapID,
		&item.Content,
		&item.X,
		&item.Y,
		&item.Width,
		&item.Height,
		&item.Color,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListNotes(ctx context.Context, roadmapID string) ([]document.Note, error) {
	if err := checkID("roadmap", roadmapID); err != nil {
		return []document.Note{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE roadmap_id=$1
		ORDER BY created_at ASC
	`, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]document.Note, 0)
	for rows.Next() {
		item, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountNotes(ctx context.Context, roadmapID string) (int, error) {
	return s.count(ctx, "count notes", `SELECT COUNT(*) FROM notes WHERE roadmap_id=$1`, roadmapID)
}

func (s *PostgresStore) GetNote(ctx context.Context, id string) (document.Note, error) {
	if err := checkID("note", id); err != nil {
		return document.Note{}, err
	}
	item, err := scanNote(s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1`, id))
	if err != nil {
		return document.Note{}, notFound("get note", "note", id, err)
	}
	return item, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, n document.Note) (document.Note, error) {
	item, err := scanNote(s.db.QueryRowContext(ctx, `
		INSERT INTO notes (id, roadmap_id, content, x, y, width, height, color)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+noteColumns,
		newID(), n.RoadmapID, n.Content, n.X, n.Y, n.Width, n.Height, n.Color,
	))
	if err != nil {
		return document.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, n document.Note) (document.Note, error) {
	if err := checkID("note", n.ID); err != nil {
		return document.Note{}, err
	}
	item, err := scanNote(s.db.QueryRowContext(ctx, `
		UPDATE notes
		SET content=$2, x=$3, y=$4, width=$5, height=$6, color=$7, updated_at=NOW()
		WHERE id=$1
		RETURNING `+noteColumns,
		n.ID, n.Content, n.X, n.Y, n.Width, n.Height, n.Color,
	))
	if err != nil {
		return document.Note{}, notFound("update note", "note", n.ID, err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "notes", "note", id)
}

const connectionColumns = `id, roadmap_id, from_type, from_id, to_type, to_id, style, created_at`

func scanConnection(row rowScanner) (document.Connection, error) {
	var item document.Connection
	err := row.Scan(
		&item.ID,
		&item.RoadmapID,
		&item.From.Type,
		&item.From.ID,
		&item.To.Type,
		&item.To.ID,
		&item.Style,
		&item.CreatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListConnections(ctx context.Context, roadmapID string) ([]document.Connection, error) {
	if err := checkID("roadmap", roadmapID); err != nil {
		return []document.Connection{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE roadmap_id=$1
		ORDER BY created_at ASC
	`, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	items := make([]document.Connection, 0)
	for rows.Next() {
		item, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetConnection(ctx context.Context, id string) (document.Connection, error) {
	if err := checkID("connection", id); err != nil {
		return document.Connection{}, err
	}
	item, err := scanConnection(s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id=$1`, id))
	if err != nil {
		return document.Connection{}, notFound("get connection", "connection", id, err)
	}
	return item, nil
}

func (s *PostgresStore) InsertConnection(ctx context.Context, c document.Connection) (document.Connection, error) {
	item, err := scanConnection(s.db.QueryRowContext(ctx, `
		INSERT INTO connections (id, roadmap_id, from_type, from_id, to_type, to_id, style)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+connectionColumns,
		newID(), c.RoadmapID, c.From.Type, c.From.ID, c.To.Type, c.To.ID, c.Style,
	))
	if err != nil {
		return document.Connection{}, fmt.Errorf("insert connection: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteConnection(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "connections", "connection", id)
}

const riskColumns = `id, roadmap_id, milestone_id, title, description, severity, created_at`

func scanRisk(row rowScanner) (document.RiskMarker, error) {
	var item document.RiskMarker
	var milestoneID sql.NullString
	err := row.Scan(
		&item.ID,
		&item.RoadmapID,
		&milestoneID,
		&item.Title,
		&item.Description,
		&item.Severity,
		&item.CreatedAt,
	)
	if milestoneID.Valid {
		item.MilestoneID = &milestoneID.String
	}
	return item, err
}

func (s *PostgresStore) ListRiskMarkers(ctx context.Context, roadmapID string) ([]document.RiskMarker, error) {
	if err := checkID("roadmap", roadmapID); err != nil {
		return []document.RiskMarker{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+riskColumns+`
		FROM risk_markers
		WHERE roadmap_id=$1
		ORDER BY created_at ASC
	`, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("list risks: %w", err)
	}
	defer rows.Close()

	items := make([]document.RiskMarker, 0)
	for rows.Next() {
		item, err := scanRisk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan risk: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetRiskMarker(ctx context.Context, id string) (document.RiskMarker, error) {
	if err := checkID("risk", id); err != nil {
		return document.RiskMarker{}, err
	}
	item, err := scanRisk(s.db.QueryRowContext(ctx, `SELECT `+riskColumns+` FROM risk_markers WHERE id=$1`, id))
	if err != nil {
		return document.RiskMarker{}, notFound("get risk", "risk", id, err)
	}
	return item, nil
}

func (s *PostgresStore) InsertRiskMarker(ctx context.Context, r document.RiskMarker) (document.RiskMarker, error) {
	var milestoneID sql.NullString
	if r.MilestoneID != nil {
		milestoneID = sql.NullString{String: *r.MilestoneID, Valid: true}
	}
	item, err := scanRisk(s.db.QueryRowContext(ctx, `
		INSERT INTO risk_markers (id, roadmap_id, milestone_id, title, description, severity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+riskColumns,
		newID(), r.RoadmapID, milestoneID, r.Title, r.Description, r.Severity,
	))
	if err != nil {
		return document.RiskMarker{}, fmt.Errorf("insert risk: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteRiskMarker(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "risk_markers", "risk", id)
}

// DeleteElementCascade drops a milestone or note with the connections
// touching it and, for milestones, its risk markers, in one transaction.
func (s *PostgresStore) DeleteElementCascade(ctx context.Context, roadmapID string, element document.Endpoint) (document.Purged, error) {
	var table string
	switch element.Type {
	case document.ElementMilestone:
		table = "milestones"
	case document.ElementNote:
		table = "notes"
	default:
		return document.Purged{}, fmt.Errorf("%w: unknown element type %q", document.ErrValidation, element.Type)
	}
	kind := string(element.Type)
	if err := checkID(kind, element.ID); err != nil {
		return document.Purged{}, err
	}

	var purged document.Purged
	err := inTx(ctx, s.db, "delete "+kind, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM connections
			WHERE roadmap_id=$1
			  AND ((from_type=$2 AND from_id=$3) OR (to_type=$2 AND to_id=$3))
		`, roadmapID, element.Type, element.ID)
		if err != nil {
			return fmt.Errorf("delete connections touching %s: %w", element.ID, err)
		}
		if purged.Connections, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("delete connections rows: %w", err)
		}

		if element.Type == document.ElementMilestone {
			result, err := tx.ExecContext(ctx, `DELETE FROM risk_markers WHERE milestone_id=$1`, element.ID)
			if err != nil {
				return fmt.Errorf("delete risks for milestone %s: %w", element.ID, err)
			}
			if purged.Risks, err = result.RowsAffected(); err != nil {
				return fmt.Errorf("delete risks rows: %w", err)
			}
		}

		result, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=$1`, element.ID)
		if err != nil {
			return fmt.Errorf("delete %s: %w", kind, err)
		}
		return expectAffected(result, "delete "+kind, kind, element.ID)
	})
	if err != nil {
		return document.Purged{}, err
	}
	return purged, nil
}

// deleteByID removes one row. table is always a constant from this package.
func (s *PostgresStore) deleteByID(ctx context.Context, table, kind, id string) error {
	if err := checkID(kind, id); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	return expectAffected(result, "delete "+kind, kind, id)
}

func (s *PostgresStore) count(ctx context.Context, op, query string, args ...any) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
