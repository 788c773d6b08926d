package canvas

import "roadmapper/api/internal/document"

// Anchor offsets from an element origin where connection lines attach.
const (
	AnchorX = 100
	AnchorY = 50
)

// Line is one connection segment in document coordinates.
type Line struct {
	ConnectionID string             `json:"connectionId"`
	From         Point              `json:"from"`
	To           Point              `json:"to"`
	Style        document.LineStyle `json:"style"`
}

// ConnectionLines returns drawable connections. Connections with an
// unresolved endpoint are omitted.
func (e *Engine) ConnectionLines() []Line {
	if e.doc == nil {
		return nil
	}
	return Lines(*e.doc)
}

func Lines(doc document.Document) []Line {
	lines := make([]Line, 0, len(doc.Connections))
	for _, c := range doc.Connections {
		from, to, ok := document.ResolveOrSkip(doc, c)
		if !ok {
			continue
		}
		lines = append(lines, Line{
			ConnectionID: c.ID,
			From:         anchor(from.Position),
			To:           anchor(to.Position),
			Style:        c.Style,
		})
	}
	return lines
}

func anchor(p document.Position) Point {
	return Point{X: p.X + AnchorX, Y: p.Y + AnchorY}
}

// RiskBadges maps milestone id to its risk marker count.
func (e *Engine) RiskBadges() map[string]int {
	if e.doc == nil {
		return nil
	}
	return document.RiskCounts(*e.doc)
}
