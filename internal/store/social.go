package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) InsertComment(ctx context.Context, roadmapID, userID, body string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO comments (id, roadmap_id, user_id, body)
			VALUES ($1, $2, $3, $4)
			RETURNING id, roadmap_id, user_id, body, created_at
		)
		SELECT i.id, i.roadmap_id, i.user_id, u.username, i.body, i.created_at
		FROM inserted i
		JOIN users u ON u.id = i.user_id
	`, newID(), roadmapID, userID, body).Scan(&item.ID, &item.RoadmapID, &item.UserID, &item.Username, &item.Body, &item.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, id string) (Comment, error) {
	if err := checkID("comment", id); err != nil {
		return Comment{}, err
	}
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.roadmap_id, c.user_id, u.username, c.body, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.id=$1
	`, id).Scan(&item.ID, &item.RoadmapID, &item.UserID, &item.Username, &item.Body, &item.CreatedAt)
	if err != nil {
		return Comment{}, notFound("get comment", "comment", id, err)
	}
	return item, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, roadmapID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.roadmap_id, c.user_id, u.username, c.body, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.roadmap_id=$1
		ORDER BY c.created_at ASC
	`, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.RoadmapID, &item.UserID, &item.Username, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "comments", "comment", id)
}

func (s *PostgresStore) InsertActivity(ctx context.Context, entry ActivityEntry) error {
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	var actorID sql.NullString
	if entry.ActorID != "" {
		actorID = sql.NullString{String: entry.ActorID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (roadmap_id, actor_id, actor_name, action, entity_type, entity_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, entry.RoadmapID, actorID, entry.ActorName, entry.Action, entry.EntityType, entry.EntityID, string(payload))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest entries first.
func (s *PostgresStore) ListActivity(ctx context.Context, roadmapID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, roadmap_id, COALESCE(actor_id::text, ''), actor_name, action, entity_type, entity_id, payload, created_at
		FROM activity_log
		WHERE roadmap_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, roadmapID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityEntry, 0)
	for rows.Next() {
		var item ActivityEntry
		var payloadRaw []byte
		if err := rows.Scan(
			&item.ID,
			&item.RoadmapID,
			&item.ActorID,
			&item.ActorName,
			&item.Action,
			&item.EntityType,
			&item.EntityID,
			&payloadRaw,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		item.Payload = json.RawMessage(payloadRaw)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertWebhook(ctx context.Context, hook Webhook) (Webhook, error) {
	var createdBy sql.NullString
	if hook.CreatedBy != "" {
		createdBy = sql.NullString{String: hook.CreatedBy, Valid: true}
	}
	var item Webhook
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO webhooks (id, roadmap_id, url, secret, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, roadmap_id, url, secret, COALESCE(created_by::text, ''), created_at
	`, newID(), hook.RoadmapID, hook.URL, hook.Secret, createdBy).Scan(
		&item.ID, &item.RoadmapID, &item.URL, &item.Secret, &item.CreatedBy, &item.CreatedAt,
	)
	if err != nil {
		return Webhook{}, fmt.Errorf("insert webhook: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetWebhook(ctx context.Context, id string) (Webhook, error) {
	if err := checkID("webhook", id); err != nil {
		return Webhook{}, err
	}
	var item Webhook
	err := s.db.QueryRowContext(ctx, `
		SELECT id, roadmap_id, url, secret, COALESCE(created_by::text, ''), created_at
		FROM webhooks
		WHERE id=$1
	`, id).Scan(&item.ID, &item.RoadmapID, &item.URL, &item.Secret, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return Webhook{}, notFound("get webhook", "webhook", id, err)
	}
	return item, nil
}

func (s *PostgresStore) ListWebhooks(ctx context.Context, roadmapID string) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, roadmap_id, url, secret, COALESCE(created_by::text, ''), created_at
		FROM webhooks
		WHERE roadmap_id=$1
		ORDER BY created_at ASC
	`, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	items := make([]Webhook, 0)
	for rows.Next() {
		var item Webhook
		if err := rows.Scan(&item.ID, &item.RoadmapID, &item.URL, &item.Secret, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteWebhook(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "webhooks", "webhook", id)
}
