package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
)

//go:embed templates static
var files embed.FS

// Static returns the embedded static assets rooted at static/
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// TemplateRenderer is a custom html/template renderer for Echo
// Uses per-page template cloning to allow each page to define its own blocks
type TemplateRenderer struct {
	templates map[string]*template.Template
	// common is merged into map data for pages rendered through the base layout
	common map[string]interface{}
}

// NewTemplateRenderer parses the embedded layouts once and clones them for every page
func NewTemplateRenderer(common map[string]interface{}) (*TemplateRenderer, error) {
	templates := make(map[string]*template.Template)

	baseTemplate, err := template.ParseFS(files, "templates/layouts/*.html")
	if err != nil {
		return nil, err
	}

	pages, err := fs.Glob(files, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		pageTemplate, err := baseTemplate.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := pageTemplate.ParseFS(files, page); err != nil {
			return nil, err
		}
		templates[path.Base(page)] = pageTemplate
	}

	return &TemplateRenderer{templates: templates, common: common}, nil
}

// Render renders a page through the "base" layout
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := t.templates[name]
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "Template not found: "+name)
	}

	if data == nil {
		data = map[string]interface{}{}
	}
	if dataMap, ok := data.(map[string]interface{}); ok {
		for k, v := range t.common {
			if _, set := dataMap[k]; !set {
				dataMap[k] = v
			}
		}
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}
