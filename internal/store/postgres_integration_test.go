package store

import (
	"errors"
	"testing"

	"roadmapper/api/internal/document"
)

func TestPostgresStoreDocumentRoundTrip(t *testing.T) {
	db, ctx := openTestDB(t)
	if err := ApplyMigrations(ctx, db, testMigrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)

	alice, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := s.CreateUser(ctx, "bob", "hash")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if _, err := s.CreateUser(ctx, "alice", "hash"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	roadmap, err := s.InsertRoadmap(ctx, document.Roadmap{Title: "Launch", OwnerID: alice.ID, IsPublic: true})
	if err != nil {
		t.Fatalf("insert roadmap: %v", err)
	}
	if roadmap.OwnerName != "alice" || len(roadmap.Collaborators) != 0 {
		t.Fatalf("unexpected roadmap: %+v", roadmap)
	}

	renamed := roadmap
	renamed.Title = "Launch v2"
	if _, err := s.UpdateRoadmap(ctx, renamed, []string{bob.ID}); err != nil {
		t.Fatalf("update roadmap with collaborators: %v", err)
	}
	kept, err := s.UpdateRoadmap(ctx, renamed, nil)
	if err != nil {
		t.Fatalf("update roadmap keeping collaborators: %v", err)
	}
	if kept.Title != "Launch v2" || len(kept.Collaborators) != 1 {
		t.Fatalf("nil collaborator set should leave the set alone: %+v", kept)
	}
	ghost := renamed
	ghost.ID = "00000000-0000-0000-0000-000000000000"
	if _, err := s.UpdateRoadmap(ctx, ghost, []string{}); !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing roadmap, got %v", err)
	}
	listed, err := s.ListRoadmapsForUser(ctx, bob.ID)
	if err != nil {
		t.Fatalf("list for bob: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Collaborators) != 1 || listed[0].Collaborators[0].Username != "bob" {
		t.Fatalf("unexpected roadmaps for bob: %+v", listed)
	}

	ids, err := s.ResolveUsernames(ctx, []string{"bob", "ghost"})
	if err != nil {
		t.Fatalf("resolve usernames: %v", err)
	}
	if ids["bob"] != bob.ID || len(ids) != 1 {
		t.Fatalf("unexpected resolution: %#v", ids)
	}

	milestone, err := s.InsertMilestone(ctx, document.Milestone{
		RoadmapID: roadmap.ID,
		Title:     "Beta",
		Date:      "2025-03-01",
		X:         50,
		Y:         50,
		Priority:  document.PriorityHigh,
		Status:    document.StatusNotStarted,
	})
	if err != nil {
		t.Fatalf("insert milestone: %v", err)
	}
	if milestone.Date != "2025-03-01" {
		t.Fatalf("expected date to round-trip, got %q", milestone.Date)
	}

	milestoneID := milestone.ID
	if _, err := s.InsertRiskMarker(ctx, document.RiskMarker{
		RoadmapID:   roadmap.ID,
		MilestoneID: &milestoneID,
		Title:       "Vendor slip",
		Severity:    document.SeverityMedium,
	}); err != nil {
		t.Fatalf("insert risk: %v", err)
	}
	if _, err := s.InsertConnection(ctx, document.Connection{
		RoadmapID: roadmap.ID,
		From:      document.Endpoint{Type: document.ElementMilestone, ID: milestone.ID},
		To:        document.Endpoint{Type: document.ElementMilestone, ID: milestone.ID},
		Style:     document.LineSolid,
	}); err != nil {
		t.Fatalf("insert connection: %v", err)
	}

	if err := s.DeleteMilestone(ctx, milestone.ID); err != nil {
		t.Fatalf("delete milestone: %v", err)
	}
	connections, err := s.ListConnections(ctx, roadmap.ID)
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	if len(connections) != 1 {
		t.Fatalf("expected dangling connection to survive, got %d", len(connections))
	}
	if _, err := s.DeleteElementCascade(ctx, roadmap.ID, connections[0].From); !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("cascade on a deleted milestone should roll back with ErrNotFound, got %v", err)
	}
	if connections, err = s.ListConnections(ctx, roadmap.ID); err != nil || len(connections) != 1 {
		t.Fatalf("rolled back cascade removed connections: %d %v", len(connections), err)
	}

	note, err := s.InsertNote(ctx, document.Note{RoadmapID: roadmap.ID, Content: "hi", Width: 200, Height: 150, Color: "yellow"})
	if err != nil {
		t.Fatalf("insert note: %v", err)
	}
	noteEnd := document.Endpoint{Type: document.ElementNote, ID: note.ID}
	if _, err := s.InsertConnection(ctx, document.Connection{RoadmapID: roadmap.ID, From: noteEnd, To: noteEnd, Style: document.LineDashed}); err != nil {
		t.Fatalf("insert note connection: %v", err)
	}
	purged, err := s.DeleteElementCascade(ctx, roadmap.ID, noteEnd)
	if err != nil || purged.Connections != 1 || purged.Risks != 0 {
		t.Fatalf("cascade note: %+v %v", purged, err)
	}
	if _, err := s.GetNote(ctx, note.ID); !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("expected cascaded note to be gone, got %v", err)
	}

	if _, err := s.GetMilestone(ctx, milestone.ID); !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted milestone, got %v", err)
	}
	if _, err := s.GetRoadmap(ctx, "not-a-uuid"); !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
	if err := s.DeleteRoadmap(ctx, roadmap.ID); err != nil {
		t.Fatalf("delete roadmap: %v", err)
	}
	if err := s.TouchRoadmap(ctx, roadmap.ID); !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("expected ErrNotFound touching deleted roadmap, got %v", err)
	}
}
