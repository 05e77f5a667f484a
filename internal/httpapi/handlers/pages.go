package handlers

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	Title       string
	Restoration bool
}

func (a *App) renderPage(w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		a.Logger.Error().Err(err).Msg("render page")
	}
}

// Index serves the text-to-image demo page.
func (a *App) Index(w http.ResponseWriter, r *http.Request) {
	a.renderPage(w, pageData{Title: "Happy Diffusion (Private Access) | 9pm"})
}

// Restoration serves the face-restoration demo page.
func (a *App) Restoration(w http.ResponseWriter, r *http.Request) {
	a.renderPage(w, pageData{Title: "Happy Restoration (Private Access) | 9pm", Restoration: true})
}
