package document

// ResolvedElement is a canvas element an endpoint points at.
type ResolvedElement struct {
	Type     ElementType
	ID       string
	Position Position
}

// ResolveEndpoint finds the element an endpoint references in doc.
func ResolveEndpoint(doc Document, ep Endpoint) (ResolvedElement, bool) {
	switch ep.Type {
	case ElementMilestone:
		if m, ok := doc.Milestone(ep.ID); ok {
			return ResolvedElement{Type: ElementMilestone, ID: m.ID, Position: Position{X: m.X, Y: m.Y}}, true
		}
	case ElementNote:
		if n, ok := doc.Note(ep.ID); ok {
			return ResolvedElement{Type: ElementNote, ID: n.ID, Position: Position{X: n.X, Y: n.Y}}, true
		}
	}
	return ResolvedElement{}, false
}

// ResolveOrSkip resolves both ends of a connection. ok is false when either
// end points at an element missing from doc; such connections stay stored but
// are left out of rendering.
func ResolveOrSkip(doc Document, c Connection) (from, to ResolvedElement, ok bool) {
	from, ok = ResolveEndpoint(doc, c.From)
	if !ok {
		return ResolvedElement{}, ResolvedElement{}, false
	}
	to, ok = ResolveEndpoint(doc, c.To)
	if !ok {
		return ResolvedElement{}, ResolvedElement{}, false
	}
	return from, to, true
}

// DanglingConnections lists connections with at least one unresolved end.
func DanglingConnections(doc Document) []Connection {
	dangling := make([]Connection, 0)
	for _, c := range doc.Connections {
		if _, _, ok := ResolveOrSkip(doc, c); !ok {
			dangling = append(dangling, c)
		}
	}
	return dangling
}

// RiskCounts counts risk markers per milestone id, ignoring markers whose
// milestone no longer exists.
func RiskCounts(doc Document) map[string]int {
	counts := make(map[string]int, len(doc.Milestones))
	for _, r := range doc.Risks {
		if r.MilestoneID == nil {
			continue
		}
		if _, ok := doc.Milestone(*r.MilestoneID); !ok {
			continue
		}
		counts[*r.MilestoneID]++
	}
	return counts
}
