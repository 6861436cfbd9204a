package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
)

// DefaultBodyTemplate lists, per host with anything worth reporting, the containers by
// outcome followed by the summary line of the image prune.
const DefaultBodyTemplate = `{{- range .Results}}{{if anyWorthy .Items}}
## Host: {{.HostName}}
{{- $items := .Items}}
{{- range $s := sections}}{{with withResult $items $s.Outcome}}
### {{$s.Title}}:
{{- range .}}
- {{.Name}} {{image .Container}}
{{- end}}
{{- end}}{{end}}
{{- with lastLine .PruneResult}}
{{.}}
{{- end}}
{{end}}{{end}}`

// section is one outcome block of the default template.
type section struct {
	Outcome domain.Outcome
	Title   string
}

var sections = []section{
	{domain.OutcomeUpdated, "Updated"},
	{domain.OutcomeAvailable, "Available"},
	{domain.OutcomeRolledBack, "Rolled-back"},
	{domain.OutcomeFailed, "Failed"},
}

// templateData is what title and body templates are executed with.
type templateData struct {
	Results  []*domain.HostResult
	Hostname string
}

var funcs = template.FuncMap{
	"anyWorthy": anyWorthy,
	"sections":  func() []section { return sections },
	"withResult": func(items []*domain.ContainerCheckResult, outcome domain.Outcome) []*domain.ContainerCheckResult {
		var out []*domain.ContainerCheckResult
		for _, item := range items {
			if item.Result == outcome {
				out = append(out, item)
			}
		}
		return out
	},
	"image":    domain.ContainerImageSpec,
	"lastLine": lastLine,
}

func anyWorthy(items []*domain.ContainerCheckResult) bool {
	for _, item := range items {
		if item.Result.Worthy() {
			return true
		}
	}
	return false
}

// lastLine returns the last non-blank line of s, trimmed.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// Render executes the template text against the results.
func Render(text string, results []*domain.HostResult, hostname string) (string, error) {
	tmpl, err := template.New("notification").Funcs(funcs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{Results: results, Hostname: hostname}); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
