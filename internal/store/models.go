package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Comment struct {
	ID        string    `json:"id"`
	RoadmapID string    `json:"roadmapId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type ActivityEntry struct {
	ID         int64           `json:"id"`
	RoadmapID  string          `json:"roadmapId"`
	ActorID    string          `json:"actorId,omitempty"`
	ActorName  string          `json:"actorName"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Webhook struct {
	ID        string    `json:"id"`
	RoadmapID string    `json:"roadmapId"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
