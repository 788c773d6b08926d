package canvas

import (
	"context"

	"roadmapper/api/internal/document"
)

// Backend is the authoritative copy the engine commits gestures to.
type Backend interface {
	LoadDocument(ctx context.Context, roadmapID string) (document.Document, error)
	MoveMilestone(ctx context.Context, id string, pos document.Position) error
	MoveNote(ctx context.Context, id string, pos document.Position) error
	UpdateNoteContent(ctx context.Context, id, content string) error
	AddConnection(ctx context.Context, roadmapID string, input document.ConnectionInput) (document.Connection, error)
}

// ModelBackend drives a document.Model in-process on behalf of one caller.
type ModelBackend struct {
	Model  *document.Model
	Caller document.Caller
}

func (b ModelBackend) LoadDocument(ctx context.Context, roadmapID string) (document.Document, error) {
	return b.Model.LoadDocument(ctx, b.Caller, roadmapID)
}

func (b ModelBackend) MoveMilestone(ctx context.Context, id string, pos document.Position) error {
	_, err := b.Model.MoveMilestone(ctx, b.Caller, id, pos)
	return err
}

func (b ModelBackend) MoveNote(ctx context.Context, id string, pos document.Position) error {
	_, err := b.Model.MoveNote(ctx, b.Caller, id, pos)
	return err
}

func (b ModelBackend) UpdateNoteContent(ctx context.Context, id, content string) error {
	_, err := b.Model.UpdateNoteContent(ctx, b.Caller, id, content)
	return err
}

func (b ModelBackend) AddConnection(ctx context.Context, roadmapID string, input document.ConnectionInput) (document.Connection, error) {
	return b.Model.AddConnection(ctx, b.Caller, roadmapID, input)
}
