package document

import "strings"

const (
	milestoneOriginX = 50
	milestoneOriginY = 50
	// MilestoneSpacing is the vertical gap between auto-placed milestones.
	MilestoneSpacing = 150

	noteOriginX = 300
	noteOriginY = 50
	// NoteStagger offsets each auto-placed note from the previous one on both axes.
	NoteStagger = 24

	DefaultNoteWidth  = 200
	DefaultNoteHeight = 150
	DefaultNoteColor  = "yellow"
)

var noteColors = map[string]struct{}{
	"yellow": {},
	"blue":   {},
	"green":  {},
	"pink":   {},
	"purple": {},
	"orange": {},
}

// DefaultMilestonePosition stacks milestones in one column so that a new one
// never overlaps an auto-placed predecessor.
func DefaultMilestonePosition(existing int) Position {
	return Position{
		X: milestoneOriginX,
		Y: milestoneOriginY + float64(existing*MilestoneSpacing),
	}
}

func DefaultNotePosition(existing int) Position {
	offset := float64(existing * NoteStagger)
	return Position{X: noteOriginX + offset, Y: noteOriginY + offset}
}

func normalizePriority(value Priority) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(string(value)))) {
	case "":
		return PriorityMedium, true
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	default:
		return "", false
	}
}

func normalizeStatus(value Status) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(string(value)))) {
	case "":
		return StatusNotStarted, true
	case StatusNotStarted:
		return StatusNotStarted, true
	case StatusInProgress:
		return StatusInProgress, true
	case StatusCompleted:
		return StatusCompleted, true
	default:
		return "", false
	}
}

func normalizeSeverity(value Severity) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(string(value)))) {
	case "":
		return SeverityMedium, true
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	default:
		return "", false
	}
}

func normalizeLineStyle(value LineStyle) (LineStyle, bool) {
	switch LineStyle(strings.ToLower(strings.TrimSpace(string(value)))) {
	case "", LineSolid:
		return LineSolid, true
	case LineDashed:
		return LineDashed, true
	default:
		return "", false
	}
}

func normalizeColor(value string) (string, bool) {
	color := strings.ToLower(strings.TrimSpace(value))
	if color == "" {
		return DefaultNoteColor, true
	}
	_, ok := noteColors[color]
	return color, ok
}

func validElementType(value ElementType) bool {
	return value == ElementMilestone || value == ElementNote
}
