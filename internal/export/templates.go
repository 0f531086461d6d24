package export

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/ritza-co/bryntum-backend-guides/internal/reconcile"
)

//go:embed templates/*.html
var templateFS embed.FS

var snapshotTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"cell": cellText,
	}

	templateContent, err := templateFS.ReadFile("templates/snapshot.html")
	if err != nil {
		snapshotTemplate = template.Must(template.New("snapshot").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	snapshotTemplate = template.Must(template.New("snapshot").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for snapshot template rendering
type TemplateData struct {
	Backend     string
	GeneratedAt time.Time
	Revision    *int64
	Tables      []TemplateTable
}

// TemplateTable is one collection rendered as a table.
type TemplateTable struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// RenderSnapshotHTML renders a snapshot as an HTML report with one table per collection.
func RenderSnapshotHTML(backend string, at time.Time, snap *reconcile.Snapshot) ([]byte, error) {
	data := TemplateData{Backend: backend, GeneratedAt: at.UTC(), Revision: snap.Revision}
	for _, b := range snap.Blocks {
		data.Tables = append(data.Tables, tableOf(b))
	}
	var buf bytes.Buffer
	if err := snapshotTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tableOf(b reconcile.Block) TemplateTable {
	t := TemplateTable{Name: b.Collection, Columns: []string{"id"}}
	seen := map[string]bool{"id": true}
	var rest []string
	for _, row := range b.Rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				rest = append(rest, name)
			}
		}
	}
	sort.Strings(rest)
	t.Columns = append(t.Columns, rest...)
	for _, row := range b.Rows {
		cells := make([]any, len(t.Columns))
		for i, name := range t.Columns {
			cells[i] = row[name]
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case json.RawMessage:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Backend}} export</title></head>
<body>
  <h1>{{.Backend}}</h1>
  {{range .Tables}}<h2>{{.Name}}</h2>
  <table>{{range .Rows}}<tr>{{range .}}<td>{{cell .}}</td>{{end}}</tr>{{end}}</table>
  {{end}}
</body>
</html>`
