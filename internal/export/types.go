// Package export renders a roadmap document snapshot as JSON, YAML, PDF or
// DOCX and optionally archives the result in object storage.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"roadmapper/api/internal/document"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat maps a query value onto a Format. Blank means JSON.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatJSON, nil
	case "yml":
		return FormatYAML, nil
	case FormatJSON, FormatYAML, FormatPDF, FormatDOCX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", document.ErrValidation, value)
	}
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// Counts mirrors the size of each collection at export time.
type Counts struct {
	Milestones  int `json:"milestones"`
	Notes       int `json:"notes"`
	Connections int `json:"connections"`
	Risks       int `json:"risks"`
}

// Snapshot is the read-only export shape: roadmap scalars, owner and
// collaborator names, the four child collections and their counts.
type Snapshot struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Owner         string                `json:"owner"`
	IsPublic      bool                  `json:"isPublic"`
	Collaborators []string              `json:"collaborators"`
	UpdatedAt     time.Time             `json:"updatedAt"`
	ExportedAt    time.Time             `json:"exportedAt"`
	Counts        Counts                `json:"counts"`
	Milestones    []document.Milestone  `json:"milestones"`
	Notes         []document.Note       `json:"notes"`
	Connections   []document.Connection `json:"connections"`
	Risks         []document.RiskMarker `json:"risks"`
}

func NewSnapshot(doc document.Document, exportedAt time.Time) Snapshot {
	doc.Normalize()
	collaborators := make([]string, 0, len(doc.Collaborators))
	for _, c := range doc.Collaborators {
		collaborators = append(collaborators, c.Username)
	}
	return Snapshot{
		ID:            doc.ID,
		Title:         doc.Title,
		Description:   doc.Description,
		Owner:         doc.OwnerName,
		IsPublic:      doc.IsPublic,
		Collaborators: collaborators,
		UpdatedAt:     doc.UpdatedAt,
		ExportedAt:    exportedAt.UTC(),
		Counts: Counts{
			Milestones:  len(doc.Milestones),
			Notes:       len(doc.Notes),
			Connections: len(doc.Connections),
			Risks:       len(doc.Risks),
		},
		Milestones:  doc.Milestones,
		Notes:       doc.Notes,
		Connections: doc.Connections,
		Risks:       doc.Risks,
	}
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	ErrArchiveDisabled       = errors.New("export archive not configured")
)
