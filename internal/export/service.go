package export

import (
	"context"
	"fmt"
	"time"

	"roadmapper/api/internal/document"
)

// DocumentLoader is the slice of document.Model the exporter reads through,
// so exports obey the same read rules as the canvas.
type DocumentLoader interface {
	LoadDocument(ctx context.Context, caller document.Caller, roadmapID string) (document.Document, error)
}

// htmlConverter turns rendered HTML into a binary document.
type htmlConverter func(ctx context.Context, html, title string) (*Result, error)

// Service provides roadmap export functionality
type Service struct {
	loader DocumentLoader
	pdf    htmlConverter
	docx   htmlConverter
	now    func() time.Time
}

type Options struct {
	// ChromeURL points at a running DevTools endpoint; empty launches a
	// local headless browser per export.
	ChromeURL  string
	PandocPath string
	Timeout    time.Duration
}

func NewService(loader DocumentLoader, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.PandocPath == "" {
		opts.PandocPath = "pandoc"
	}
	return &Service{
		loader: loader,
		pdf:    chromePDF(opts.ChromeURL, opts.Timeout),
		docx:   pandocDOCX(opts.PandocPath, opts.Timeout),
		now:    time.Now,
	}
}

// Export loads the live document and renders it in the requested format.
func (s *Service) Export(ctx context.Context, caller document.Caller, roadmapID string, format Format) (*Result, error) {
	doc, err := s.loader.LoadDocument(ctx, caller, roadmapID)
	if err != nil {
		return nil, err
	}
	return s.Render(ctx, doc, format)
}

// Render encodes an already loaded document.
func (s *Service) Render(ctx context.Context, doc document.Document, format Format) (*Result, error) {
	snap := NewSnapshot(doc, s.now())

	switch format {
	case FormatJSON:
		return encodeJSON(snap)
	case FormatYAML:
		return encodeYAML(snap)
	case FormatPDF, FormatDOCX:
		html, err := RenderRoadmapHTML(NewTemplateData(doc, snap.ExportedAt))
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		if format == FormatPDF {
			return s.pdf(ctx, html, doc.Title)
		}
		return s.docx(ctx, html, doc.Title)
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", document.ErrValidation, format)
	}
}
