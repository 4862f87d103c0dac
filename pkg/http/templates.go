package http

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

type pages struct {
	login     *template.Template
	dashboard *template.Template
}

func parsePages() (*pages, error) {
	login, err := template.ParseFS(templateFS, "templates/layout.html", "templates/login.html")
	if err != nil {
		return nil, err
	}
	dashboard, err := template.ParseFS(templateFS, "templates/layout.html", "templates/dashboard.html")
	if err != nil {
		return nil, err
	}
	return &pages{login: login, dashboard: dashboard}, nil
}

type loginPage struct {
	Title     string
	CSRFToken string
	Error     string
}

type dashboardPage struct {
	Title     string
	CSRFToken string
	User      string
	Dashboard any
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, tmpl *template.Template, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error(r.Context(), "failed to render page", "page", name, "error", err)
	}
}
