package document

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memRepo is an in-memory Repository for model tests.
type memRepo struct {
	mu            sync.Mutex
	seq           int
	clock         time.Time
	users         map[string]string // username -> id
	roadmaps      map[string]Roadmap
	collaborators map[string][]string
	milestones    map[string]Milestone
	notes         map[string]Note
	connections   map[string]Connection
	risks         map[string]RiskMarker
	failTouch     error
	failUpdate    error
	failCascade   error
}

func newMemRepo() *memRepo {
	return &memRepo{
		clock:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		users:         map[string]string{},
		roadmaps:      map[string]Roadmap{},
		collaborators: map[string][]string{},
		milestones:    map[string]Milestone{},
		notes:         map[string]Note{},
		connections:   map[string]Connection{},
		risks:         map[string]RiskMarker{},
	}
}

func (r *memRepo) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func (r *memRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memRepo) addUser(username string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID("user")
	r.users[username] = id
	return id
}

func (r *memRepo) usernameOf(id string) string {
	for name, uid := range r.users {
		if uid == id {
			return name
		}
	}
	return ""
}

func (r *memRepo) hydrate(rm Roadmap) Roadmap {
	rm.OwnerName = r.usernameOf(rm.OwnerID)
	rm.Collaborators = []Collaborator{}
	for _, id := range r.collaborators[rm.ID] {
		rm.Collaborators = append(rm.Collaborators, Collaborator{ID: id, Username: r.usernameOf(id)})
	}
	return rm
}

func (r *memRepo) GetRoadmap(_ context.Context, id string) (Roadmap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.roadmaps[id]
	if !ok {
		return Roadmap{}, fmt.Errorf("roadmap %s: %w", id, ErrNotFound)
	}
	return r.hydrate(rm), nil
}

func (r *memRepo) InsertRoadmap(_ context.Context, rm Roadmap) (Roadmap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm.ID = r.nextID("roadmap")
	now := r.tick()
	rm.CreatedAt, rm.UpdatedAt = now, now
	r.roadmaps[rm.ID] = rm
	return r.hydrate(rm), nil
}

func (r *memRepo) UpdateRoadmap(_ context.Context, rm Roadmap, collaboratorIDs []string) (Roadmap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return Roadmap{}, r.failUpdate
	}
	current, ok := r.roadmaps[rm.ID]
	if !ok {
		return Roadmap{}, ErrNotFound
	}
	current.Title = rm.Title
	current.Description = rm.Description
	current.IsPublic = rm.IsPublic
	current.OwnerID = rm.OwnerID
	current.UpdatedAt = r.tick()
	r.roadmaps[rm.ID] = current
	if collaboratorIDs != nil {
		r.collaborators[rm.ID] = append([]string(nil), collaboratorIDs...)
	}
	return r.hydrate(current), nil
}

func (r *memRepo) DeleteRoadmap(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roadmaps[id]; !ok {
		return ErrNotFound
	}
	delete(r.roadmaps, id)
	delete(r.collaborators, id)
	return nil
}

func (r *memRepo) TouchRoadmap(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTouch != nil {
		return r.failTouch
	}
	rm, ok := r.roadmaps[id]
	if !ok {
		return ErrNotFound
	}
	rm.UpdatedAt = r.tick()
	r.roadmaps[id] = rm
	return nil
}

func (r *memRepo) ResolveUsernames(_ context.Context, usernames []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]string{}
	for _, name := range usernames {
		if id, ok := r.users[name]; ok {
			out[name] = id
		}
	}
	return out, nil
}

func (r *memRepo) sortedRoadmaps(keep func(Roadmap) bool) []Roadmap {
	out := []Roadmap{}
	for _, rm := range r.roadmaps {
		if keep(rm) {
			out = append(out, r.hydrate(rm))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (r *memRepo) ListRoadmapsForUser(_ context.Context, userID string) ([]Roadmap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedRoadmaps(func(rm Roadmap) bool {
		if rm.OwnerID == userID {
			return true
		}
		for _, id := range r.collaborators[rm.ID] {
			if id == userID {
				return true
			}
		}
		return false
	}), nil
}

func (r *memRepo) ListPublicRoadmaps(_ context.Context) ([]Roadmap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedRoadmaps(func(rm Roadmap) bool { return rm.IsPublic }), nil
}

func (r *memRepo) ListMilestones(_ context.Context, roadmapID string) ([]Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Milestone{}
	for _, m := range r.milestones {
		if m.RoadmapID == roadmapID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (r *memRepo) CountMilestones(ctx context.Context, roadmapID string) (int, error) {
	items, err := r.ListMilestones(ctx, roadmapID)
	return len(items), err
}

func (r *memRepo) GetMilestone(_ context.Context, id string) (Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.milestones[id]
	if !ok {
		return Milestone{}, fmt.Errorf("milestone %s: %w", id, ErrNotFound)
	}
	return m, nil
}

func (r *memRepo) InsertMilestone(_ context.Context, m Milestone) (Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.nextID("milestone")
	m.CreatedAt = r.tick()
	m.UpdatedAt = m.CreatedAt
	r.milestones[m.ID] = m
	return m, nil
}

func (r *memRepo) UpdateMilestone(_ context.Context, m Milestone) (Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.milestones[m.ID]; !ok {
		return Milestone{}, ErrNotFound
	}
	m.UpdatedAt = r.tick()
	r.milestones[m.ID] = m
	return m, nil
}

func (r *memRepo) DeleteMilestone(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.milestones, id)
	return nil
}

func (r *memRepo) ListNotes(_ context.Context, roadmapID string) ([]Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Note{}
	for _, n := range r.notes {
		if n.RoadmapID == roadmapID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) CountNotes(ctx context.Context, roadmapID string) (int, error) {
	items, err := r.ListNotes(ctx, roadmapID)
	return len(items), err
}

func (r *memRepo) GetNote(_ context.Context, id string) (Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return Note{}, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	return n, nil
}

func (r *memRepo) InsertNote(_ context.Context, n Note) (Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = r.nextID("note")
	n.CreatedAt = r.tick()
	n.UpdatedAt = n.CreatedAt
	r.notes[n.ID] = n
	return n, nil
}

func (r *memRepo) UpdateNote(_ context.Context, n Note) (Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.UpdatedAt = r.tick()
	r.notes[n.ID] = n
	return n, nil
}

func (r *memRepo) DeleteNote(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notes, id)
	return nil
}

func (r *memRepo) ListConnections(_ context.Context, roadmapID string) ([]Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Connection{}
	for _, c := range r.connections {
		if c.RoadmapID == roadmapID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) GetConnection(_ context.Context, id string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[id]
	if !ok {
		return Connection{}, ErrNotFound
	}
	return c, nil
}

func (r *memRepo) InsertConnection(_ context.Context, c Connection) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID("connection")
	c.CreatedAt = r.tick()
	r.connections[c.ID] = c
	return c, nil
}

func (r *memRepo) DeleteConnection(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, id)
	return nil
}

func (r *memRepo) ListRiskMarkers(_ context.Context, roadmapID string) ([]RiskMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []RiskMarker{}
	for _, rk := range r.risks {
		if rk.RoadmapID == roadmapID {
			out = append(out, rk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) GetRiskMarker(_ context.Context, id string) (RiskMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rk, ok := r.risks[id]
	if !ok {
		return RiskMarker{}, ErrNotFound
	}
	return rk, nil
}

func (r *memRepo) InsertRiskMarker(_ context.Context, rk RiskMarker) (RiskMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rk.ID = r.nextID("risk")
	rk.CreatedAt = r.tick()
	r.risks[rk.ID] = rk
	return rk, nil
}

func (r *memRepo) DeleteRiskMarker(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.risks, id)
	return nil
}

func (r *memRepo) DeleteElementCascade(_ context.Context, roadmapID string, el Endpoint) (Purged, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCascade != nil {
		return Purged{}, r.failCascade
	}
	switch el.Type {
	case ElementMilestone:
		if _, ok := r.milestones[el.ID]; !ok {
			return Purged{}, ErrNotFound
		}
	case ElementNote:
		if _, ok := r.notes[el.ID]; !ok {
			return Purged{}, ErrNotFound
		}
	default:
		return Purged{}, ErrValidation
	}

	var purged Purged
	for id, c := range r.connections {
		if c.RoadmapID == roadmapID && (c.From == el || c.To == el) {
			delete(r.connections, id)
			purged.Connections++
		}
	}
	if el.Type == ElementMilestone {
		for id, rk := range r.risks {
			if rk.MilestoneID != nil && *rk.MilestoneID == el.ID {
				delete(r.risks, id)
				purged.Risks++
			}
		}
		delete(r.milestones, el.ID)
	} else {
		delete(r.notes, el.ID)
	}
	return purged, nil
}

func (r *memRepo) updatedAt(id string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roadmaps[id].UpdatedAt
}
