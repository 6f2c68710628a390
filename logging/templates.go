package logging

import (
	"embed"
	"fmt"
	"html/template"

	"github.com/ethereum-optimism/infra/op-stepper/templates"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// GetHTMLTemplate parses an embedded HTML template with the shared template functions
func GetHTMLTemplate(name string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(templates.GetTemplateFunc()).ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}
