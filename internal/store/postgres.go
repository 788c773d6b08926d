package store

import (
	"context"
	"database/sql"
	"fmt"

	"roadmapper/api/internal/document"
)

// PostgresStore implements document.Repository plus the user, session,
// comment, activity, webhook and search queries the API needs.
type PostgresStore struct {
	db *sql.DB
}

var _ document.Repository = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const roadmapColumns = `r.id, r.title, r.description, r.owner_id, u.username, r.is_public, r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoadmap(row rowScanner) (document.Roadmap, error) {
	var item document.Roadmap
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.OwnerID,
		&item.OwnerName,
		&item.IsPublic,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) GetRoadmap(ctx context.Context, id string) (document.Roadmap, error) {
	if err := checkID("roadmap", id); err != nil {
		return document.Roadmap{}, err
	}
	item, err := scanRoadmap(s.db.QueryRowContext(ctx, `
		SELECT `+roadmapColumns+`
		FROM roadmaps r
		JOIN users u ON u.id = r.owner_id
		WHERE r.id=$1
	`, id))
	if err != nil {
		return document.Roadmap{}, notFound("get roadmap", "roadmap", id, err)
	}
	collaborators, err := s.listCollaborators(ctx, []string{id})
	if err != nil {
		return document.Roadmap{}, err
	}
	item.Collaborators = collaborators[id]
	if item.Collaborators == nil {
		item.Collaborators = []document.Collaborator{}
	}
	return item, nil
}

func (s *PostgresStore) InsertRoadmap(ctx context.Context, roadmap document.Roadmap) (document.Roadmap, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roadmaps (id, title, description, owner_id, is_public)
		VALUES ($1, $2, $3, $4, $5)
	`, id, roadmap.Title, roadmap.Description, roadmap.OwnerID, roadmap.IsPublic)
	if err != nil {
		return document.Roadmap{}, fmt.Errorf("insert roadmap: %w", err)
	}
	return s.GetRoadmap(ctx, id)
}

func (s *PostgresStore) UpdateRoadmap(ctx context.Context, roadmap document.Roadmap, collaboratorIDs []string) (document.Roadmap, error) {
	if err := checkID("roadmap", roadmap.ID); err != nil {
		return document.Roadmap{}, err
	}
	err := inTx(ctx, s.db, "update roadmap", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE roadmaps
			SET title=$2, description=$3, is_public=$4, owner_id=$5, updated_at=NOW()
			WHERE id=$1
		`, roadmap.ID, roadmap.Title, roadmap.Description, roadmap.IsPublic, roadmap.OwnerID)
		if err != nil {
			return fmt.Errorf("update roadmap: %w", err)
		}
		if err := expectAffected(result, "update roadmap", "roadmap", roadmap.ID); err != nil {
			return err
		}
		if collaboratorIDs == nil {
			return nil
		}
		return replaceCollaborators(ctx, tx, roadmap.ID, collaboratorIDs)
	})
	if err != nil {
		return document.Roadmap{}, err
	}
	return s.GetRoadmap(ctx, roadmap.ID)
}

func (s *PostgresStore) DeleteRoadmap(ctx context.Context, id string) error {
	if err := checkID("roadmap", id); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM roadmaps WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete roadmap: %w", err)
	}
	return expectAffected(result, "delete roadmap", "roadmap", id)
}

func (s *PostgresStore) TouchRoadmap(ctx context.Context, id string) error {
	if err := checkID("roadmap", id); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `UPDATE roadmaps SET updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("touch roadmap: %w", err)
	}
	return expectAffected(result, "touch roadmap", "roadmap", id)
}

// replaceCollaborators deletes the whole set and re-inserts userIDs.
func replaceCollaborators(ctx context.Context, tx *sql.Tx, roadmapID string, userIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM roadmap_collaborators WHERE roadmap_id=$1`, roadmapID); err != nil {
		return fmt.Errorf("clear collaborators: %w", err)
	}
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO roadmap_collaborators (roadmap_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, roadmapID, userID); err != nil {
			return fmt.Errorf("insert collaborator: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ResolveUsernames(ctx context.Context, usernames []string) (map[string]string, error) {
	out := make(map[string]string, len(usernames))
	if len(usernames) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, username FROM users WHERE username = ANY($1::text[])`, usernames)
	if err != nil {
		return nil, fmt.Errorf("resolve usernames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		out[username] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListRoadmapsForUser(ctx context.Context, userID string) ([]document.Roadmap, error) {
	if err := checkID("user", userID); err != nil {
		return []document.Roadmap{}, nil
	}
	return s.listRoadmaps(ctx, `
		SELECT `+roadmapColumns+`
		FROM roadmaps r
		JOIN users u ON u.id = r.owner_id
		WHERE r.owner_id=$1
		   OR EXISTS (SELECT 1 FROM roadmap_collaborators rc WHERE rc.roadmap_id = r.id AND rc.user_id = $1)
		ORDER BY r.updated_at DESC
	`, userID)
}

func (s *PostgresStore) ListPublicRoadmaps(ctx context.Context) ([]document.Roadmap, error) {
	return s.listRoadmaps(ctx, `
		SELECT `+roadmapColumns+`
		FROM roadmaps r
		JOIN users u ON u.id = r.owner_id
		WHERE r.is_public
		ORDER BY r.updated_at DESC
	`)
}

func (s *PostgresStore) listRoadmaps(ctx context.Context, query string, args ...any) ([]document.Roadmap, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list roadmaps: %w", err)
	}
	defer rows.Close()

	items := make([]document.Roadmap, 0)
	ids := make([]string, 0)
	for rows.Next() {
		item, err := scanRoadmap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan roadmap: %w", err)
		}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roadmaps: %w", err)
	}
	if len(ids) == 0 {
		return items, nil
	}

	collaborators, err := s.listCollaborators(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Collaborators = collaborators[items[i].ID]
		if items[i].Collaborators == nil {
			items[i].Collaborators = []document.Collaborator{}
		}
	}
	return items, nil
}

func (s *PostgresStore) listCollaborators(ctx context.Context, roadmapIDs []string) (map[string][]document.Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rc.roadmap_id, u.id, u.username
		FROM roadmap_collaborators rc
		JOIN users u ON u.id = rc.user_id
		WHERE rc.roadmap_id = ANY($1::uuid[])
		ORDER BY u.username ASC
	`, roadmapIDs)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]document.Collaborator, len(roadmapIDs))
	for rows.Next() {
		var roadmapID string
		var item document.Collaborator
		if err := rows.Scan(&roadmapID, &item.ID, &item.Username); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		out[roadmapID] = append(out[roadmapID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return out, nil
}
