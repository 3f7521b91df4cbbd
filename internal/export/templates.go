package export

import (
	"bytes"
	"html/template"
	"time"
)

// TemplateData holds data for plan sheet rendering.
type TemplateData struct {
	ProjectName string
	StoreyName  string
	Elevation   float64
	PlanSVG     template.HTML
	WallCount   int
	RoomCount   int
	GeneratedAt time.Time
}

var planTemplate = template.Must(template.New("plan").Parse(planSheetTemplate))

// RenderPlanHTML renders the plan sheet template with provided data.
func RenderPlanHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := planTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const planSheetTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.ProjectName}} - {{.StoreyName}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 1000px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 1.5rem; }
    .plan { border: 1px solid #ccc; }
    .legend { margin-top: 1rem; color: #666; font-size: 0.85em; }
  </style>
</head>
<body>
  <h1>{{.ProjectName}}</h1>
  <div class="meta">{{.StoreyName}} | elevation {{printf "%.0f" .Elevation}} mm | {{.GeneratedAt.Format "Jan 2, 2006"}}</div>
  <div class="plan">{{.PlanSVG}}</div>
  <div class="legend">{{.WallCount}} walls, {{.RoomCount}} rooms. Dimensions in millimetres.</div>
</body>
</html>`
