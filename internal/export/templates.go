package export

import (
	"bytes"
	"html/template"
	"sort"
	"strings"
	"time"

	"roadmapper/api/internal/document"
)

var roadmapTemplate = template.Must(template.New("roadmap").Funcs(template.FuncMap{
	"humanize":   humanize,
	"paragraphs": paragraphs,
}).Parse(roadmapHTML))

// TemplateData holds data for roadmap template rendering
type TemplateData struct {
	Title         string
	Description   string
	Owner         string
	Collaborators []string
	UpdatedAt     time.Time
	ExportedAt    time.Time
	Milestones    []TemplateMilestone
	Notes         []string
	Connections   []TemplateConnection
	Risks         []TemplateRisk
}

type TemplateMilestone struct {
	Title       string
	Date        string
	Description string
	Priority    string
	Status      string
	RiskCount   int
}

type TemplateConnection struct {
	From  string
	To    string
	Style string
}

type TemplateRisk struct {
	Title       string
	Description string
	Severity    string
	Milestone   string
}

// NewTemplateData flattens a document for printing. Connections whose
// endpoints no longer resolve are left out, matching the canvas.
func NewTemplateData(doc document.Document, exportedAt time.Time) TemplateData {
	doc.Normalize()
	data := TemplateData{
		Title:       doc.Title,
		Description: doc.Description,
		Owner:       doc.OwnerName,
		UpdatedAt:   doc.UpdatedAt,
		ExportedAt:  exportedAt,
	}
	for _, c := range doc.Collaborators {
		data.Collaborators = append(data.Collaborators, c.Username)
	}

	riskCounts := document.RiskCounts(doc)
	milestones := append([]document.Milestone(nil), doc.Milestones...)
	sort.SliceStable(milestones, func(i, j int) bool { return milestones[i].Date < milestones[j].Date })
	for _, m := range milestones {
		data.Milestones = append(data.Milestones, TemplateMilestone{
			Title:       m.Title,
			Date:        m.Date,
			Description: m.Description,
			Priority:    string(m.Priority),
			Status:      string(m.Status),
			RiskCount:   riskCounts[m.ID],
		})
	}

	for _, n := range doc.Notes {
		if strings.TrimSpace(n.Content) != "" {
			data.Notes = append(data.Notes, n.Content)
		}
	}

	for _, c := range doc.Connections {
		from, to, ok := document.ResolveOrSkip(doc, c)
		if !ok {
			continue
		}
		data.Connections = append(data.Connections, TemplateConnection{
			From:  elementLabel(doc, from),
			To:    elementLabel(doc, to),
			Style: string(c.Style),
		})
	}

	for _, r := range doc.Risks {
		risk := TemplateRisk{Title: r.Title, Description: r.Description, Severity: string(r.Severity)}
		if r.MilestoneID != nil {
			if m, ok := doc.Milestone(*r.MilestoneID); ok {
				risk.Milestone = m.Title
			}
		}
		data.Risks = append(data.Risks, risk)
	}
	return data
}

func elementLabel(doc document.Document, el document.ResolvedElement) string {
	switch el.Type {
	case document.ElementMilestone:
		if m, ok := doc.Milestone(el.ID); ok {
			return m.Title
		}
	case document.ElementNote:
		if n, ok := doc.Note(el.ID); ok {
			label := strings.TrimSpace(strings.SplitN(n.Content, "\n", 2)[0])
			if len(label) > 40 {
				label = label[:40] + "..."
			}
			if label == "" {
				label = "(empty note)"
			}
			return "Note: " + label
		}
	}
	return el.ID
}

// humanize turns enum values like in_progress into "In progress".
func humanize(value string) string {
	value = strings.ReplaceAll(value, "_", " ")
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

// paragraphs splits free text on blank lines.
func paragraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func RenderRoadmapHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := roadmapTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const roadmapHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 820px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; vertical-align: top; }
    .note { background: #fff8c4; padding: 0.75rem 1rem; margin: 0.75rem 0; border-left: 3px solid #e0c200; }
    .risk-high { color: #b00020; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{range paragraphs .Description}}<p>{{.}}</p>{{end}}
  <div class="meta">
    Owner: {{.Owner}}{{if .Collaborators}} | Collaborators: {{range $i, $c := .Collaborators}}{{if $i}}, {{end}}{{$c}}{{end}}{{end}}
    | Updated {{.UpdatedAt.Format "Jan 2, 2006"}} | Exported {{.ExportedAt.Format "Jan 2, 2006 15:04 MST"}}
  </div>

  <h2>Milestones</h2>
  {{if .Milestones}}
  <table>
    <tr><th>Date</th><th>Milestone</th><th>Priority</th><th>Status</th><th>Risks</th></tr>
    {{range .Milestones}}
    <tr>
      <td>{{.Date}}</td>
      <td><strong>{{.Title}}</strong>{{if .Description}}<br>{{.Description}}{{end}}</td>
      <td>{{humanize .Priority}}</td>
      <td>{{humanize .Status}}</td>
      <td>{{if .RiskCount}}{{.RiskCount}}{{end}}</td>
    </tr>
    {{end}}
  </table>
  {{else}}<p>No milestones yet.</p>{{end}}

  {{if .Connections}}
  <h2>Dependencies</h2>
  <ul>
    {{range .Connections}}<li>{{.From}} &rarr; {{.To}}{{if eq .Style "dashed"}} (tentative){{end}}</li>{{end}}
  </ul>
  {{end}}

  {{if .Risks}}
  <h2>Risks</h2>
  <ul>
    {{range .Risks}}<li class="risk-{{.Severity}}"><strong>{{.Title}}</strong> ({{humanize .Severity}}){{if .Milestone}} on {{.Milestone}}{{end}}{{if .Description}}: {{.Description}}{{end}}</li>{{end}}
  </ul>
  {{end}}

  {{if .Notes}}
  <h2>Notes</h2>
  {{range .Notes}}<div class="note">{{range paragraphs .}}<p>{{.}}</p>{{end}}</div>{{end}}
  {{end}}
</body>
</html>`
