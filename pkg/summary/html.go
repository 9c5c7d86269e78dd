package summary

import (
	"html/template"
	"strings"

	"github.com/Mindburn-Labs/briefcheck/pkg/verdict"
)

const tableTemplate = `<div style="font-family:Arial,Helvetica,sans-serif">` +
	`<h3>Resumen de validaciones BRIEF</h3>` +
	`<table border="1" cellspacing="0" cellpadding="6">` +
	`<tr><th>Promoción</th><th>Nombre</th><th>Estado</th><th>Errores</th><th>Detalles</th></tr>` +
	`{{range .}}<tr><td>{{.ID}}</td><td>{{.Name}}</td><td>{{glyph .Status}}</td>` +
	`<td style="text-align:center">{{.Errors}}</td>` +
	`<td><ul style="margin:0;padding-left:18px">` +
	`{{range .Categories}}<li><strong>{{.Label}}:</strong> {{.Status}}{{with .Messages}} - {{join .}}{{end}}</li>{{end}}` +
	`</ul></td></tr>{{end}}` +
	`</table></div>`

var table = template.Must(template.New("summary").Funcs(template.FuncMap{
	"glyph": glyph,
	"join":  func(msgs []string) string { return strings.Join(msgs, "; ") },
}).Parse(tableTemplate))

func glyph(s verdict.Status) string {
	switch s {
	case verdict.OK:
		return "✅ OK"
	case verdict.Error:
		return "❌ ERROR"
	}
	return "⏭️ SKIPPED"
}

// HTML renders the summary table. Campaign ids, names and messages are
// escaped.
func (s *Summary) HTML() (string, error) {
	var b strings.Builder
	if err := table.Execute(&b, s.Campaigns); err != nil {
		return "", err
	}
	return b.String(), nil
}
