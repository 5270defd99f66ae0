package respond

import (
	"bytes"
	"html/template"
)

// TemplateRenderer renders a named html/template with bound view values.
type TemplateRenderer struct {
	templates *template.Template
	name      string
	data      map[string]interface{}
}

// NewTemplateRenderer creates a renderer for one template in the parsed set.
func NewTemplateRenderer(templates *template.Template, name string) *TemplateRenderer {
	return &TemplateRenderer{
		templates: templates,
		name:      name,
		data:      make(map[string]interface{}),
	}
}

// Bind adds a value to the render context.
func (t *TemplateRenderer) Bind(name string, value interface{}) {
	t.data[name] = value
}

// Render executes the template against the bound values.
func (t *TemplateRenderer) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.templates.ExecuteTemplate(&buf, t.name, t.data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
