package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"roadmapper/api/internal/rbac"
)

// Repository is the persistence contract the model runs against. Getters
// return an error wrapping ErrNotFound when the row does not exist.
type Repository interface {
	GetRoadmap(ctx context.Context, id string) (Roadmap, error)
	InsertRoadmap(ctx context.Context, roadmap Roadmap) (Roadmap, error)
	// UpdateRoadmap writes the roadmap row and, when collaboratorIDs is
	// non-nil, replaces the collaborator set in the same transaction.
	UpdateRoadmap(ctx context.Context, roadmap Roadmap, collaboratorIDs []string) (Roadmap, error)
	DeleteRoadmap(ctx context.Context, id string) error
	TouchRoadmap(ctx context.Context, id string) error
	ResolveUsernames(ctx context.Context, usernames []string) (map[string]string, error)
	ListRoadmapsForUser(ctx context.Context, userID string) ([]Roadmap, error)
	ListPublicRoadmaps(ctx context.Context) ([]Roadmap, error)

	ListMilestones(ctx context.Context, roadmapID string) ([]Milestone, error)
	CountMilestones(ctx context.Context, roadmapID string) (int, error)
	GetMilestone(ctx context.Context, id string) (Milestone, error)
	InsertMilestone(ctx context.Context, milestone Milestone) (Milestone, error)
	UpdateMilestone(ctx context.Context, milestone Milestone) (Milestone, error)
	DeleteMilestone(ctx context.Context, id string) error

	ListNotes(ctx context.Context, roadmapID string) ([]Note, error)
	CountNotes(ctx context.Context, roadmapID string) (int, error)
	GetNote(ctx context.Context, id string) (Note, error)
	InsertNote(ctx context.Context, note Note) (Note, error)
	UpdateNote(ctx context.Context, note Note) (Note, error)
	DeleteNote(ctx context.Context, id string) error

	ListConnections(ctx context.Context, roadmapID string) ([]Connection, error)
	GetConnection(ctx context.Context, id string) (Connection, error)
	InsertConnection(ctx context.Context, connection Connection) (Connection, error)
	DeleteConnection(ctx context.Context, id string) error

	ListRiskMarkers(ctx context.Context, roadmapID string) ([]RiskMarker, error)
	GetRiskMarker(ctx context.Context, id string) (RiskMarker, error)
	InsertRiskMarker(ctx context.Context, risk RiskMarker) (RiskMarker, error)
	DeleteRiskMarker(ctx context.Context, id string) error

	// DeleteElementCascade removes a milestone or note together with the
	// connections touching it and, for milestones, its risk markers. Nothing
	// is removed unless every delete succeeds.
	DeleteElementCascade(ctx context.Context, roadmapID string, element Endpoint) (Purged, error)
}

// Purged counts the rows a cascading delete removed alongside the element.
type Purged struct {
	Connections int64
	Risks       int64
}

// EventSink receives an event after each committed mutation. Publish must not
// block the caller for long and has no way to fail the mutation.
type EventSink interface {
	Publish(ctx context.Context, event Event)
}

type EventSinkFunc func(ctx context.Context, event Event)

func (f EventSinkFunc) Publish(ctx context.Context, event Event) { f(ctx, event) }

type noopSink struct{}

func (noopSink) Publish(context.Context, Event) {}

type Option func(*Model)

func WithEventSink(sink EventSink) Option {
	return func(m *Model) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithCascadeDeletes makes element deletes also purge connections and risk
// markers that reference the deleted element.
func WithCascadeDeletes(enabled bool) Option {
	return func(m *Model) { m.cascade = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// Model applies validated mutations to roadmap documents.
type Model struct {
	repo    Repository
	sink    EventSink
	cascade bool
	now     func() time.Time
}

func New(repo Repository, opts ...Option) *Model {
	m := &Model{repo: repo, sink: noopSink{}, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authorize loads the roadmap and checks that caller may perform action on it.
func (m *Model) Authorize(ctx context.Context, caller Caller, roadmapID string, action rbac.Action) (Roadmap, rbac.Relationship, error) {
	roadmap, err := m.repo.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return Roadmap{}, rbac.RelNone, classify("get roadmap", err)
	}
	rel := rbac.Resolve(roadmap.OwnerID, roadmap.CollaboratorIDs(), roadmap.IsPublic, caller.UserID)
	if !rbac.Can(rel, action) {
		return Roadmap{}, rel, fmt.Errorf("%w: %s access to roadmap %s", ErrForbidden, action, roadmapID)
	}
	return roadmap, rel, nil
}

// LoadDocument returns the full canvas snapshot with every collection non-nil.
func (m *Model) LoadDocument(ctx context.Context, caller Caller, roadmapID string) (Document, error) {
	roadmap, _, err := m.Authorize(ctx, caller, roadmapID, rbac.ActionRead)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Roadmap: roadmap}
	if doc.Milestones, err = m.repo.ListMilestones(ctx, roadmapID); err != nil {
		return Document{}, classify("list milestones", err)
	}
	if doc.Notes, err = m.repo.ListNotes(ctx, roadmapID); err != nil {
		return Document{}, classify("list notes", err)
	}
	if doc.Connections, err = m.repo.ListConnections(ctx, roadmapID); err != nil {
		return Document{}, classify("list connections", err)
	}
	if doc.Risks, err = m.repo.ListRiskMarkers(ctx, roadmapID); err != nil {
		return Document{}, classify("list risks", err)
	}
	doc.Normalize()
	return doc, nil
}

type MilestoneInput struct {
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Status      Status   `json:"status"`
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
}

// MilestonePatch carries a partial update; nil fields are left unchanged.
type MilestonePatch struct {
	Title       *string   `json:"title"`
	Date        *string   `json:"date"`
	Description *string   `json:"description"`
	Priority    *Priority `json:"priority"`
	Status      *Status   `json:"status"`
	X           *float64  `json:"x"`
	Y           *float64  `json:"y"`
}

func (m *Model) AddMilestone(ctx context.Context, caller Caller, roadmapID string, input MilestoneInput) (Milestone, error) {
	if _, _, err := m.Authorize(ctx, caller, roadmapID, rbac.ActionEdit); err != nil {
		return Milestone{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Milestone{}, validationf("title is required")
	}
	date, err := normalizeDate(input.Date)
	if err != nil {
		return Milestone{}, err
	}
	priority, ok := normalizePriority(input.Priority)
	if !ok {
		return Milestone{}, validationf("unknown priority %q", input.Priority)
	}
	status, ok := normalizeStatus(input.Status)
	if !ok {
		return Milestone{}, validationf("unknown status %q", input.Status)
	}

	var pos Position
	if input.X != nil && input.Y != nil {
		pos = Position{X: *input.X, Y: *input.Y}
	} else {
		count, err := m.repo.CountMilestones(ctx, roadmapID)
		if err != nil {
			return Milestone{}, classify("count milestones", err)
		}
		pos = DefaultMilestonePosition(count)
	}

	created, err := m.repo.InsertMilestone(ctx, Milestone{
		RoadmapID:   roadmapID,
		Title:       title,
		Date:        date,
		Description: strings.TrimSpace(input.Description),
		X:           pos.X,
		Y:           pos.Y,
		Priority:    priority,
		Status:      status,
	})
	if err != nil {
		return Milestone{}, classify("insert milestone", err)
	}
	if err := m.touch(ctx, roadmapID); err != nil {
		return Milestone{}, err
	}
	m.publish(ctx, caller, roadmapID, "milestone.created", string(ElementMilestone), created.ID, map[string]any{"title": created.Title})
	return created, nil
}

func (m *Model) UpdateMilestone(ctx context.Context, caller Caller, id string, patch MilestonePatch) (Milestone, error) {
	current, err := m.repo.GetMilestone(ctx, id)
	if err != nil {
		return Milestone{}, classify("get milestone", err)
	}
	if _, _, err := m.Authorize(ctx, caller, current.RoadmapID, rbac.ActionEdit); err != nil {
		return Milestone{}, err
	}

	next := current
	if patch.Title != nil {
		next.Title = strings.TrimSpace(*patch.Title)
		if next.Title == "" {
			return Milestone{}, validationf("title is required")
		}
	}
	if patch.Date != nil {
		if next.Date, err = normalizeDate(*patch.Date); err != nil {
			return Milestone{}, err
		}
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		priority, ok := normalizePriority(*patch.Priority)
		if !ok {
			return Milestone{}, validationf("unknown priority %q", *patch.Priority)
		}
		next.Priority = priority
	}
	if patch.Status != nil {
		status, ok := normalizeStatus(*patch.Status)
		if !ok {
			return Milestone{}, validationf("unknown status %q", *patch.Status)
		}
		next.Status = status
	}
	if patch.X != nil {
		next.X = *patch.X
	}
	if patch.Y != nil {
		next.Y = *patch.Y
	}

	updated, err := m.repo.UpdateMilestone(ctx, next)
	if err != nil {
		return Milestone{}, classify("update milestone", err)
	}
	if err := m.touch(ctx, current.RoadmapID); err != nil {
		return Milestone{}, err
	}
	m.publish(ctx, caller, current.RoadmapID, "milestone.updated", string(ElementMilestone), updated.ID, patchPayload(patch))
	return updated, nil
}

// MoveMilestone is the drag-commit path: only the position changes.
func (m *Model) MoveMilestone(ctx context.Context, caller Caller, id string, pos Position) (Milestone, error) {
	return m.UpdateMilestone(ctx, caller, id, MilestonePatch{X: &pos.X, Y: &pos.Y})
}

func (m *Model) DeleteMilestone(ctx context.Context, caller Caller, id string) error {
	current, err := m.repo.GetMilestone(ctx, id)
	if err != nil {
		return classify("get milestone", err)
	}
	if _, _, err := m.Authorize(ctx, caller, current.RoadmapID, rbac.ActionEdit); err != nil {
		return err
	}
	payload := map[string]any{"title": current.Title}
	if m.cascade {
		purged, err := m.repo.DeleteElementCascade(ctx, current.RoadmapID, Endpoint{Type: ElementMilestone, ID: id})
		if err != nil {
			return classify("delete milestone", err)
		}
		payload["purgedConnections"] = purged.Connections
		payload["purgedRisks"] = purged.Risks
	} else if err := m.repo.DeleteMilestone(ctx, id); err != nil {
		return classify("delete milestone", err)
	}
	if err := m.touch(ctx, current.RoadmapID); err != nil {
		return err
	}
	m.publish(ctx, caller, current.RoadmapID, "milestone.deleted", string(ElementMilestone), id, payload)
	return nil
}

type NoteInput struct {
	Content string   `json:"content"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Width   *float64 `json:"width"`
	Height  *float64 `json:"height"`
	Color   string   `json:"color"`
}

type NotePatch struct {
	Content *string  `json:"content"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Width   *float64 `json:"width"`
	Height  *float64 `json:"height"`
	Color   *string  `json:"color"`
}

func (m *Model) AddNote(ctx context.Context, caller Caller, roadmapID string, input NoteInput) (Note, error) {
	if _, _, err := m.Authorize(ctx, caller, roadmapID, rbac.ActionEdit); err != nil {
		return Note{}, err
	}
	color, ok := normalizeColor(input.Color)
	if !ok {
		return Note{}, validationf("unknown note color %q", input.Color)
	}
	note := Note{
		RoadmapID: roadmapID,
		Content:   input.Content,
		Width:     DefaultNoteWidth,
		Height:    DefaultNoteHeight,
		Color:     color,
	}
	if input.Width != nil {
		note.Width = *input.Width
	}
	if input.Height != nil {
		note.Height = *input.Height
	}
	if note.Width <= 0 || note.Height <= 0 {
		return Note{}, validationf("note size must be positive")
	}
	if input.X != nil && input.Y != nil {
		note.X, note.Y = *input.X, *input.Y
	} else {
		count, err := m.repo.CountNotes(ctx, roadmapID)
		if err != nil {
			return Note{}, classify("count notes", err)
		}
		pos := DefaultNotePosition(count)
		note.X, note.Y = pos.X, pos.Y
	}

	created, err := m.repo.InsertNote(ctx, note)
	if err != nil {
		return Note{}, classify("insert note", err)
	}
	if err := m.touch(ctx, roadmapID); err != nil {
		return Note{}, err
	}
	m.publish(ctx, caller, roadmapID, "note.created", string(ElementNote), created.ID, nil)
	return created, nil
}

func (m *Model) UpdateNote(ctx context.Context, caller Caller, id string, patch NotePatch) (Note, error) {
	current, err := m.repo.GetNote(ctx, id)
	if err != nil {
		return Note{}, classify("get note", err)
	}
	if _, _, err := m.Authorize(ctx, caller, current.RoadmapID, rbac.ActionEdit); err != nil {
		return Note{}, err
	}

	next := current
	if patch.Content != nil {
		next.Content = *patch.Content
	}
	if patch.X != nil {
		next.X = *patch.X
	}
	if patch.Y != nil {
		next.Y = *patch.Y
	}
	if patch.Width != nil {
		next.Width = *patch.Width
	}
	if patch.Height != nil {
		next.Height = *patch.Height
	}
	if next.Width <= 0 || next.Height <= 0 {
		return Note{}, validationf("note size must be positive")
	}
	if patch.Color != nil {
		color, ok := normalizeColor(*patch.Color)
		if !ok {
			return Note{}, validationf("unknown note color %q", *patch.Color)
		}
		next.Color = color
	}

	updated, err := m.repo.UpdateNote(ctx, next)
	if err != nil {
		return Note{}, classify("update note", err)
	}
	if err := m.touch(ctx, current.RoadmapID); err != nil {
		return Note{}, err
	}
	m.publish(ctx, caller, current.RoadmapID, "note.updated", string(ElementNote), updated.ID, nil)
	return updated, nil
}

func (m *Model) MoveNote(ctx context.Context, caller Caller, id string, pos Position) (Note, error) {
	return m.UpdateNote(ctx, caller, id, NotePatch{X: &pos.X, Y: &pos.Y})
}

func (m *Model) UpdateNoteContent(ctx context.Context, caller Caller, id, content string) (Note, error) {
	return m.UpdateNote(ctx, caller, id, NotePatch{Content: &content})
}

func (m *Model) DeleteNote(ctx context.Context, caller Caller, id string) error {
	current, err := m.repo.GetNote(ctx, id)
	if err != nil {
		return classify("get note", err)
	}
	if _, _, err := m.Authorize(ctx, caller, current.RoadmapID, rbac.ActionEdit); err != nil {
		return err
	}
	var payload map[string]any
	if m.cascade {
		purged, err := m.repo.DeleteElementCascade(ctx, current.RoadmapID, Endpoint{Type: ElementNote, ID: id})
		if err != nil {
			return classify("delete note", err)
		}
		payload = map[string]any{"purgedConnections": purged.Connections}
	} else if err := m.repo.DeleteNote(ctx, id); err != nil {
		return classify("delete note", err)
	}
	if err := m.touch(ctx, current.RoadmapID); err != nil {
		return err
	}
	m.publish(ctx, caller, current.RoadmapID, "note.deleted", string(ElementNote), id, payload)
	return nil
}

type ConnectionInput struct {
	From  Endpoint  `json:"from"`
	To    Endpoint  `json:"to"`
	Style LineStyle `json:"style"`
}

// AddConnection links two elements of the same roadmap. Both ends must exist
// when the connection is created; later deletes may leave it dangling.
func (m *Model) AddConnection(ctx context.Context, caller Caller, roadmapID string, input ConnectionInput) (Connection, error) {
	if _, _, err := m.Authorize(ctx, caller, roadmapID, rbac.ActionEdit); err != nil {
		return Connection{}, err
	}
	style, ok := normalizeLineStyle(input.Style)
	if !ok {
		return Connection{}, validationf("unknown line style %q", input.Style)
	}
	for _, ep := range []Endpoint{input.From, input.To} {
		if err := m.checkEndpoint(ctx, roadmapID, ep); err != nil {
			return Connection{}, err
		}
	}

	created, err := m.repo.InsertConnection(ctx, Connection{
		RoadmapID: roadmapID,
		From:      input.From,
		To:        input.To,
		Style:     style,
	})
	if err != nil {
		return Connection{}, classify("insert connection", err)
	}
	if err := m.touch(ctx, roadmapID); err != nil {
		return Connection{}, err
	}
	m.publish(ctx, caller, roadmapID, "connection.created", "connection", created.ID, map[string]any{
		"from": created.From,
		"to":   created.To,
	})
	return created, nil
}

func (m *Model) DeleteConnection(ctx context.Context, caller Caller, id string) error {
	current, err := m.repo.GetConnection(ctx, id)
	if err != nil {
		return classify("get connection", err)
	}
	if _, _, err := m.Authorize(ctx, caller, current.RoadmapID, rbac.ActionEdit); err != nil {
		return err
	}
	if err := m.repo.DeleteConnection(ctx, id); err != nil {
		return classify("delete connection", err)
	}
	if err := m.touch(ctx, current.RoadmapID); err != nil {
		return err
	}
	m.publish(ctx, caller, current.RoadmapID, "connection.deleted", "connection", id, nil)
	return nil
}

type RiskInput struct {
	MilestoneID *string  `json:"milestoneId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

func (m *Model) AddRiskMarker(ctx context.Context, caller Caller, roadmapID string, input RiskInput) (RiskMarker, error) {
	if _, _, err := m.Authorize(ctx, caller, roadmapID, rbac.ActionEdit); err != nil {
		return RiskMarker{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return RiskMarker{}, validationf("title is required")
	}
	severity, ok := normalizeSeverity(input.Severity)
	if !ok {
		return RiskMarker{}, validationf("unknown severity %q", input.Severity)
	}
	var milestoneID *string
	if input.MilestoneID != nil && strings.TrimSpace(*input.MilestoneID) != "" {
		id := strings.TrimSpace(*input.MilestoneID)
		if err := m.checkEndpoint(ctx, roadmapID, Endpoint{Type: ElementMilestone, ID: id}); err != nil {
			return RiskMarker{}, err
		}
		milestoneID = &id
	}

	created, err := m.repo.InsertRiskMarker(ctx, RiskMarker{
		RoadmapID:   roadmapID,
		MilestoneID: milestoneID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Severity:    severity,
	})
	if err != nil {
		return RiskMarker{}, classify("insert risk", err)
	}
	if err := m.touch(ctx, roadmapID); err != nil {
		return RiskMarker{}, err
	}
	m.publish(ctx, caller, roadmapID, "risk.created", "risk", created.ID, map[string]any{
		"title":    created.Title,
		"severity": created.Severity,
	})
	return created, nil
}

func (m *Model) DeleteRiskMarker(ctx context.Context, caller Caller, id string) error {
	current, err := m.repo.GetRiskMarker(ctx, id)
	if err != nil {
		return classify("get risk", err)
	}
	if _, _, err := m.Authorize(ctx, caller, current.RoadmapID, rbac.ActionEdit); err != nil {
		return err
	}
	if err := m.repo.DeleteRiskMarker(ctx, id); err != nil {
		return classify("delete risk", err)
	}
	if err := m.touch(ctx, current.RoadmapID); err != nil {
		return err
	}
	m.publish(ctx, caller, current.RoadmapID, "risk.deleted", "risk", id, nil)
	return nil
}

func (m *Model) checkEndpoint(ctx context.Context, roadmapID string, ep Endpoint) error {
	if !validElementType(ep.Type) {
		return validationf("unknown element type %q", ep.Type)
	}
	if strings.TrimSpace(ep.ID) == "" {
		return validationf("%s id is required", ep.Type)
	}
	var owner string
	switch ep.Type {
	case ElementMilestone:
		found, err := m.repo.GetMilestone(ctx, ep.ID)
		if err != nil {
			return endpointError(ep, err)
		}
		owner = found.RoadmapID
	case ElementNote:
		found, err := m.repo.GetNote(ctx, ep.ID)
		if err != nil {
			return endpointError(ep, err)
		}
		owner = found.RoadmapID
	}
	if owner != roadmapID {
		return validationf("%s %s belongs to another roadmap", ep.Type, ep.ID)
	}
	return nil
}

func endpointError(ep Endpoint, err error) error {
	if isNotFound(err) {
		return validationf("%s %s does not exist", ep.Type, ep.ID)
	}
	return classify("resolve endpoint", err)
}

func (m *Model) touch(ctx context.Context, roadmapID string) error {
	if err := m.repo.TouchRoadmap(ctx, roadmapID); err != nil {
		return classify("touch roadmap", err)
	}
	return nil
}

func (m *Model) publish(ctx context.Context, caller Caller, roadmapID, action, entityType, entityID string, payload map[string]any) {
	m.sink.Publish(ctx, Event{
		RoadmapID:  roadmapID,
		ActorID:    caller.UserID,
		ActorName:  caller.Username,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		At:         m.now().UTC(),
	})
}

func normalizeDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", validationf("date is required")
	}
	parsed, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return "", validationf("date must be YYYY-MM-DD")
	}
	return parsed.Format(time.DateOnly), nil
}

func patchPayload(patch MilestonePatch) map[string]any {
	fields := make([]string, 0, 7)
	if patch.Title != nil {
		fields = append(fields, "title")
	}
	if patch.Date != nil {
		fields = append(fields, "date")
	}
	if patch.Description != nil {
		fields = append(fields, "description")
	}
	if patch.Priority != nil {
		fields = append(fields, "priority")
	}
	if patch.Status != nil {
		fields = append(fields, "status")
	}
	if patch.X != nil || patch.Y != nil {
		fields = append(fields, "position")
	}
	return map[string]any{"fields": fields}
}
