package canvas

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadmapper/api/internal/document"
)

type fakeBackend struct {
	doc         document.Document
	loads       int
	moves       []document.Position
	contents    []string
	connections []document.ConnectionInput
	moveErr     error
}

func (f *fakeBackend) LoadDocument(_ context.Context, roadmapID string) (document.Document, error) {
	f.loads++
	doc := f.doc
	doc.ID = roadmapID
	doc.Milestones = append([]document.Milestone(nil), f.doc.Milestones...)
	doc.Notes = append([]document.Note(nil), f.doc.Notes...)
	doc.Connections = append([]document.Connection(nil), f.doc.Connections...)
	return doc, nil
}

func (f *fakeBackend) MoveMilestone(_ context.Context, id string, pos document.Position) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moves = append(f.moves, pos)
	for i := range f.doc.Milestones {
		if f.doc.Milestones[i].ID == id {
			f.doc.Milestones[i].X, f.doc.Milestones[i].Y = pos.X, pos.Y
		}
	}
	return nil
}

func (f *fakeBackend) MoveNote(_ context.Context, id string, pos document.Position) error {
	f.moves = append(f.moves, pos)
	for i := range f.doc.Notes {
		if f.doc.Notes[i].ID == id {
			f.doc.Notes[i].X, f.doc.Notes[i].Y = pos.X, pos.Y
		}
	}
	return nil
}

func (f *fakeBackend) UpdateNoteContent(_ context.Context, id, content string) error {
	f.contents = append(f.contents, content)
	for i := range f.doc.Notes {
		if f.doc.Notes[i].ID == id {
			f.doc.Notes[i].Content = content
		}
	}
	return nil
}

func (f *fakeBackend) AddConnection(_ context.Context, roadmapID string, input document.ConnectionInput) (document.Connection, error) {
	f.connections = append(f.connections, input)
	c := document.Connection{ID: "c-new", RoadmapID: roadmapID, From: input.From, To: input.To, Style: input.Style}
	f.doc.Connections = append(f.doc.Connections, c)
	return c, nil
}

func newEngine(t *testing.T) (*Engine, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{doc: document.Document{
		Milestones: []document.Milestone{
			{ID: "m1", Title: "Alpha", X: 50, Y: 50},
			{ID: "m2", Title: "Beta", X: 50, Y: 200},
		},
		Notes: []document.Note{
			{ID: "n1", Content: "hello", X: 300, Y: 50, Width: 200, Height: 150},
		},
	}}
	engine := NewEngine(backend)
	require.NoError(t, engine.Init(context.Background(), "r1"))
	return engine, backend
}

var (
	milestone1 = Target{Type: document.ElementMilestone, ID: "m1"}
	milestone2 = Target{Type: document.ElementMilestone, ID: "m2"}
	note1      = Target{Type: document.ElementNote, ID: "n1"}
)

func TestInitNormalizesDocument(t *testing.T) {
	engine, _ := newEngine(t)
	doc, ok := engine.Document()
	require.True(t, ok)
	assert.NotNil(t, doc.Connections)
	assert.NotNil(t, doc.Risks)
}

func TestOperationsBeforeInit(t *testing.T) {
	engine := NewEngine(&fakeBackend{})
	assert.ErrorIs(t, engine.PointerDown(context.Background(), PointerEvent{}), ErrNotInitialized)
	assert.ErrorIs(t, engine.Reload(context.Background()), ErrNotInitialized)
	assert.Nil(t, engine.ConnectionLines())
}

func TestDragCommitsOnceOnPointerUp(t *testing.T) {
	engine, backend := newEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Pos: Point{X: 60, Y: 70}, Target: milestone1}))
	assert.True(t, engine.Dragging())
	for i := 1; i <= 5; i++ {
		engine.PointerMove(PointerEvent{Pos: Point{X: 60 + float64(i*10), Y: 70 + float64(i*10)}})
	}
	assert.Empty(t, backend.moves, "no writes during drag")

	loads := backend.loads
	require.NoError(t, engine.PointerUp(ctx, PointerEvent{Pos: Point{X: 110, Y: 120}}))
	require.Len(t, backend.moves, 1)
	assert.Equal(t, document.Position{X: 100, Y: 100}, backend.moves[0])
	assert.Equal(t, loads+1, backend.loads, "reload after commit")
	assert.False(t, engine.Dragging())
}

func TestDragClampsNegativeCoordinates(t *testing.T) {
	engine, backend := newEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Pos: Point{X: 60, Y: 60}, Target: milestone1}))
	engine.PointerMove(PointerEvent{Pos: Point{X: -500, Y: 10}})
	require.NoError(t, engine.PointerUp(ctx, PointerEvent{Pos: Point{X: -500, Y: 10}}))

	require.Len(t, backend.moves, 1)
	assert.Equal(t, document.Position{X: 0, Y: 0}, backend.moves[0])
}

func TestDragRespectsZoomAndPan(t *testing.T) {
	engine, backend := newEngine(t)
	ctx := context.Background()
	engine.ZoomIn()
	engine.view.Offset = Point{X: 10, Y: 10}

	start := engine.View().ToScreen(Point{X: 50, Y: 50})
	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Pos: start, Target: milestone1}))
	end := start.Add(Point{X: 120, Y: 0})
	require.NoError(t, engine.PointerUp(ctx, PointerEvent{Pos: end}))

	require.Len(t, backend.moves, 1)
	assert.InDelta(t, 150, backend.moves[0].X, 1e-9)
	assert.InDelta(t, 50, backend.moves[0].Y, 1e-9)
}

func TestClickWithoutMoveDoesNotCommit(t *testing.T) {
	engine, backend := newEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Pos: Point{X: 60, Y: 60}, Target: milestone1}))
	require.NoError(t, engine.PointerUp(ctx, PointerEvent{Pos: Point{X: 60, Y: 60}}))
	assert.Empty(t, backend.moves)
}

func TestDragCommitFailureReturnsError(t *testing.T) {
	engine, backend := newEngine(t)
	backend.moveErr = errors.New("offline")
	ctx := context.Background()

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Pos: Point{X: 60, Y: 60}, Target: milestone1}))
	err := engine.PointerUp(ctx, PointerEvent{Pos: Point{X: 90, Y: 90}})
	require.Error(t, err)
	assert.False(t, engine.Dragging())
}

func TestFocusedNoteIsNotDraggable(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.FocusNote(ctx, "n1"))
	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Pos: Point{X: 310, Y: 60}, Target: note1}))
	assert.False(t, engine.Dragging())
}

func TestPanIsViewOnly(t *testing.T) {
	engine, backend := newEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Pos: Point{X: 0, Y: 0}, Button: ButtonMiddle}))
	assert.True(t, engine.Panning())
	engine.PointerMove(PointerEvent{Pos: Point{X: 40, Y: -20}})
	require.NoError(t, engine.PointerUp(ctx, PointerEvent{Pos: Point{X: 40, Y: -20}}))

	assert.Equal(t, Point{X: 40, Y: -20}, engine.View().Offset)
	assert.Empty(t, backend.moves)
	doc, _ := engine.Document()
	assert.Equal(t, float64(50), doc.Milestones[0].X)

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Pos: Point{X: 0, Y: 0}, Shift: true}))
	assert.True(t, engine.Panning())
	require.NoError(t, engine.PointerUp(ctx, PointerEvent{}))

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Pos: Point{X: 0, Y: 0}}))
	assert.False(t, engine.Panning(), "plain left click on background does not pan")
}

func TestZoomStaysInRange(t *testing.T) {
	engine, _ := newEngine(t)
	for i := 0; i < 50; i++ {
		engine.ZoomIn()
		engine.Wheel(-3)
	}
	assert.Equal(t, MaxZoom, engine.View().Zoom)
	for i := 0; i < 100; i++ {
		engine.ZoomOut()
		engine.Wheel(120)
	}
	assert.Equal(t, MinZoom, engine.View().Zoom)

	engine.ResetView()
	engine.Wheel(0)
	assert.Equal(t, 1.0, engine.View().Zoom)
	engine.ZoomIn()
	assert.InDelta(t, 1.2, engine.View().Zoom, 1e-9)
}

func TestConnectModeIsSingleShot(t *testing.T) {
	engine, backend := newEngine(t)
	ctx := context.Background()

	engine.ToggleConnectMode()
	assert.Equal(t, ConnectArmed, engine.ConnectState())

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Target: Target{}}))
	assert.Equal(t, ConnectArmed, engine.ConnectState(), "background click ignored")

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Target: milestone1}))
	from, ok := engine.Highlighted()
	require.True(t, ok)
	assert.Equal(t, milestone1, from)
	assert.False(t, engine.Dragging())

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Target: note1}))
	assert.Equal(t, ConnectInactive, engine.ConnectState())
	require.Len(t, backend.connections, 1)
	assert.Equal(t, document.Endpoint{Type: document.ElementMilestone, ID: "m1"}, backend.connections[0].From)
	assert.Equal(t, document.Endpoint{Type: document.ElementNote, ID: "n1"}, backend.connections[0].To)

	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Target: milestone2}))
	require.NoError(t, engine.PointerUp(ctx, PointerEvent{}))
	assert.Len(t, backend.connections, 1, "third click with mode inactive creates nothing")

	lines := engine.ConnectionLines()
	require.Len(t, lines, 1)
	assert.Equal(t, Point{X: 150, Y: 100}, lines[0].From)
	assert.Equal(t, Point{X: 400, Y: 100}, lines[0].To)
}

func TestToggleConnectModeCancels(t *testing.T) {
	engine, backend := newEngine(t)
	ctx := context.Background()

	engine.ToggleConnectMode()
	require.NoError(t, engine.PointerDown(ctx, PointerEvent{Target: milestone1}))
	engine.ToggleConnectMode()
	_, ok := engine.Highlighted()
	assert.False(t, ok)
	assert.Empty(t, backend.connections)
}

func TestNoteContentCommitsOnBlur(t *testing.T) {
	engine, backend := newEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.FocusNote(ctx, "n1"))
	engine.EditNote("hello w")
	engine.EditNote("hello world")
	assert.Empty(t, backend.contents)

	require.NoError(t, engine.BlurNote(ctx))
	assert.Equal(t, []string{"hello world"}, backend.contents)
	assert.Empty(t, engine.EditingNote())

	require.NoError(t, engine.FocusNote(ctx, "n1"))
	require.NoError(t, engine.BlurNote(ctx))
	assert.Len(t, backend.contents, 1, "unchanged content is not written")

	assert.ErrorIs(t, engine.FocusNote(ctx, "missing"), document.ErrNotFound)
}

func TestDanglingConnectionsAreSkipped(t *testing.T) {
	engine, backend := newEngine(t)
	backend.doc.Connections = []document.Connection{
		{ID: "c1", From: document.Endpoint{Type: document.ElementMilestone, ID: "m1"}, To: document.Endpoint{Type: document.ElementMilestone, ID: "m2"}},
		{ID: "c2", From: document.Endpoint{Type: document.ElementMilestone, ID: "m1"}, To: document.Endpoint{Type: document.ElementMilestone, ID: "gone"}},
	}
	require.NoError(t, engine.Reload(context.Background()))

	lines := engine.ConnectionLines()
	require.Len(t, lines, 1)
	assert.Equal(t, "c1", lines[0].ConnectionID)

	doc, _ := engine.Document()
	assert.Len(t, doc.Connections, 2, "dangling connection stays stored")
}

func TestTeardownResetsState(t *testing.T) {
	engine, _ := newEngine(t)
	engine.ZoomIn()
	engine.ToggleConnectMode()
	engine.Teardown()

	_, ok := engine.Document()
	assert.False(t, ok)
	assert.Equal(t, DefaultView(), engine.View())
	assert.Equal(t, ConnectInactive, engine.ConnectState())
}
