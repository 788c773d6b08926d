// Package canvas turns pointer input on a roadmap canvas into document
// mutations. It is headless: callers feed it events and read back geometry.
package canvas

import (
	"context"
	"errors"
	"fmt"

	"roadmapper/api/internal/document"
)

var ErrNotInitialized = errors.New("canvas: engine not initialized")

type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

// Target is the element under the pointer. The zero value is the background.
type Target struct {
	Type document.ElementType
	ID   string
}

func (t Target) IsBackground() bool { return t.ID == "" }

type PointerEvent struct {
	Pos    Point
	Button Button
	Shift  bool
	Target Target
}

type ConnectState int

const (
	ConnectInactive ConnectState = iota
	ConnectArmed
	ConnectAwaitingSecond
)

type dragState struct {
	active bool
	target Target
	grab   Point
	start  Point
	pos    Point
}

type panState struct {
	active bool
	last   Point
}

// Engine holds one canvas session. It is not safe for concurrent use.
type Engine struct {
	backend   Backend
	roadmapID string
	doc       *document.Document
	view      View

	drag    dragState
	pan     panState
	connect ConnectState
	from    Target

	editing     string
	editContent string
	editDirty   bool
}

func NewEngine(backend Backend) *Engine {
	return &Engine{backend: backend, view: DefaultView()}
}

// Init loads roadmapID and resets every gesture and the view.
func (e *Engine) Init(ctx context.Context, roadmapID string) error {
	e.Teardown()
	doc, err := e.backend.LoadDocument(ctx, roadmapID)
	if err != nil {
		return fmt.Errorf("load roadmap %s: %w", roadmapID, err)
	}
	doc.Normalize()
	e.roadmapID = roadmapID
	e.doc = &doc
	return nil
}

// Teardown drops the document and all local state.
func (e *Engine) Teardown() {
	e.roadmapID = ""
	e.doc = nil
	e.view = DefaultView()
	e.drag = dragState{}
	e.pan = panState{}
	e.connect = ConnectInactive
	e.from = Target{}
	e.editing = ""
	e.editContent = ""
	e.editDirty = false
}

// Reload replaces local document state with the backend's copy.
func (e *Engine) Reload(ctx context.Context) error {
	if e.doc == nil {
		return ErrNotInitialized
	}
	doc, err := e.backend.LoadDocument(ctx, e.roadmapID)
	if err != nil {
		return fmt.Errorf("reload roadmap %s: %w", e.roadmapID, err)
	}
	doc.Normalize()
	e.doc = &doc
	return nil
}

func (e *Engine) Document() (document.Document, bool) {
	if e.doc == nil {
		return document.Document{}, false
	}
	return *e.doc, true
}

func (e *Engine) View() View                 { return e.view }
func (e *Engine) Dragging() bool             { return e.drag.active }
func (e *Engine) Panning() bool              { return e.pan.active }
func (e *Engine) ConnectState() ConnectState { return e.connect }
func (e *Engine) EditingNote() string        { return e.editing }

// Highlighted is the first endpoint picked in connect mode, if any.
func (e *Engine) Highlighted() (Target, bool) {
	if e.connect != ConnectAwaitingSecond {
		return Target{}, false
	}
	return e.from, true
}

func (e *Engine) PointerDown(ctx context.Context, ev PointerEvent) error {
	if e.doc == nil {
		return ErrNotInitialized
	}
	if ev.Target.IsBackground() {
		if ev.Button == ButtonMiddle || (ev.Button == ButtonLeft && ev.Shift) {
			e.pan = panState{active: true, last: ev.Pos}
		}
		return nil
	}
	if ev.Button != ButtonLeft {
		return nil
	}
	if e.connect != ConnectInactive {
		return e.connectClick(ctx, ev.Target)
	}
	if ev.Target.Type == document.ElementNote && ev.Target.ID == e.editing {
		return nil
	}
	origin, ok := e.elementPosition(ev.Target)
	if !ok {
		return nil
	}
	pointer := e.view.ToDocument(ev.Pos)
	e.drag = dragState{
		active: true,
		target: ev.Target,
		grab:   pointer.Sub(origin),
		start:  origin,
		pos:    origin,
	}
	return nil
}

func (e *Engine) PointerMove(ev PointerEvent) {
	if e.doc == nil {
		return
	}
	switch {
	case e.drag.active:
		pos := clampPosition(e.view.ToDocument(ev.Pos).Sub(e.drag.grab))
		e.drag.pos = pos
		e.setElementPosition(e.drag.target, pos)
	case e.pan.active:
		e.view.Offset = e.view.Offset.Add(ev.Pos.Sub(e.pan.last))
		e.pan.last = ev.Pos
	}
}

// PointerUp ends the active gesture. A drag that moved the element commits
// its final position once and reloads the document.
func (e *Engine) PointerUp(ctx context.Context, ev PointerEvent) error {
	if e.doc == nil {
		return ErrNotInitialized
	}
	if e.pan.active {
		e.pan = panState{}
		return nil
	}
	if !e.drag.active {
		return nil
	}
	e.PointerMove(ev)
	drag := e.drag
	e.drag = dragState{}
	if drag.pos == drag.start {
		return nil
	}

	pos := document.Position{X: drag.pos.X, Y: drag.pos.Y}
	var err error
	switch drag.target.Type {
	case document.ElementMilestone:
		err = e.backend.MoveMilestone(ctx, drag.target.ID, pos)
	case document.ElementNote:
		err = e.backend.MoveNote(ctx, drag.target.ID, pos)
	}
	if err != nil {
		return fmt.Errorf("commit %s position: %w", drag.target.Type, err)
	}
	return e.Reload(ctx)
}

func (e *Engine) ZoomIn()  { e.view.zoomBy(ZoomStep) }
func (e *Engine) ZoomOut() { e.view.zoomBy(1 / ZoomStep) }

// Wheel zooms in for negative deltas and out for positive ones.
func (e *Engine) Wheel(deltaY float64) {
	switch {
	case deltaY < 0:
		e.view.zoomBy(WheelStep)
	case deltaY > 0:
		e.view.zoomBy(1 / WheelStep)
	}
}

func (e *Engine) ResetView() { e.view = DefaultView() }

// ToggleConnectMode arms connect mode, or cancels it when already armed.
func (e *Engine) ToggleConnectMode() {
	if e.connect == ConnectInactive {
		e.connect = ConnectArmed
		return
	}
	e.connect = ConnectInactive
	e.from = Target{}
}

func (e *Engine) connectClick(ctx context.Context, target Target) error {
	if target.Type != document.ElementMilestone && target.Type != document.ElementNote {
		return nil
	}
	if e.connect == ConnectArmed {
		e.from = target
		e.connect = ConnectAwaitingSecond
		return nil
	}

	from := e.from
	e.connect = ConnectInactive
	e.from = Target{}
	_, err := e.backend.AddConnection(ctx, e.roadmapID, document.ConnectionInput{
		From:  document.Endpoint{Type: from.Type, ID: from.ID},
		To:    document.Endpoint{Type: target.Type, ID: target.ID},
		Style: document.LineSolid,
	})
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return e.Reload(ctx)
}

// FocusNote starts editing a note. A previously focused note is blurred first.
func (e *Engine) FocusNote(ctx context.Context, id string) error {
	if e.doc == nil {
		return ErrNotInitialized
	}
	if e.editing != "" && e.editing != id {
		if err := e.BlurNote(ctx); err != nil {
			return err
		}
	}
	note, ok := e.doc.Note(id)
	if !ok {
		return fmt.Errorf("note %s: %w", id, document.ErrNotFound)
	}
	e.editing = id
	e.editContent = note.Content
	e.editDirty = false
	return nil
}

// EditNote replaces the focused note's local text. Nothing is written until blur.
func (e *Engine) EditNote(content string) {
	if e.editing == "" {
		return
	}
	e.editContent = content
	e.editDirty = true
	for i := range e.doc.Notes {
		if e.doc.Notes[i].ID == e.editing {
			e.doc.Notes[i].Content = content
		}
	}
}

// BlurNote commits the focused note's content if it changed.
func (e *Engine) BlurNote(ctx context.Context) error {
	if e.editing == "" {
		return nil
	}
	id, content, dirty := e.editing, e.editContent, e.editDirty
	e.editing, e.editContent, e.editDirty = "", "", false
	if !dirty {
		return nil
	}
	if err := e.backend.UpdateNoteContent(ctx, id, content); err != nil {
		return fmt.Errorf("commit note content: %w", err)
	}
	return e.Reload(ctx)
}

func (e *Engine) elementPosition(t Target) (Point, bool) {
	switch t.Type {
	case document.ElementMilestone:
		if m, ok := e.doc.Milestone(t.ID); ok {
			return Point{X: m.X, Y: m.Y}, true
		}
	case document.ElementNote:
		if n, ok := e.doc.Note(t.ID); ok {
			return Point{X: n.X, Y: n.Y}, true
		}
	}
	return Point{}, false
}

func (e *Engine) setElementPosition(t Target, p Point) {
	switch t.Type {
	case document.ElementMilestone:
		for i := range e.doc.Milestones {
			if e.doc.Milestones[i].ID == t.ID {
				e.doc.Milestones[i].X, e.doc.Milestones[i].Y = p.X, p.Y
			}
		}
	case document.ElementNote:
		for i := range e.doc.Notes {
			if e.doc.Notes[i].ID == t.ID {
				e.doc.Notes[i].X, e.doc.Notes[i].Y = p.X, p.Y
			}
		}
	}
}
