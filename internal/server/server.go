package server

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/TobiSchelling/relocstat/internal/database"
	"github.com/TobiSchelling/relocstat/internal/report"
	"github.com/TobiSchelling/relocstat/internal/validate"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server serves the archived run over HTTP.
type Server struct {
	db        *database.DB
	reportDir string
	pages     map[string]*template.Template
	mux       *http.ServeMux
}

// New creates a new Server. reportDir is the run output directory holding
// report.html; it may be empty.
func New(db *database.DB, reportDir string) (*Server, error) {
	funcMap := template.FuncMap{
		"rate": func(p *float64, format string) string {
			if p == nil {
				return ""
			}
			return fmt.Sprintf(format, *p)
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so it can define "content".
	pageNames := []string{"index.html", "quality.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, reportDir: reportDir, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /quality", s.handleQuality)
	s.mux.HandleFunc("GET /report", s.handleReport)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	run, err := s.db.LastRun()
	if err != nil {
		s.fail(w, "loading run", err)
		return
	}
	relocations, err := s.db.GetRelocations()
	if err != nil {
		s.fail(w, "loading relocations", err)
		return
	}
	s.render(w, "index.html", map[string]any{
		"Run":         run,
		"Relocations": relocations,
		"HasReport":   s.reportPath() != "",
	})
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		s.fail(w, "loading stats", err)
		return
	}
	counts, err := s.db.QualityCounts()
	if err != nil {
		s.fail(w, "loading quality counts", err)
		return
	}

	type row struct {
		Reason string
		Count  int
	}
	rows := make([]row, 0, len(counts))
	for _, reason := range validate.Reasons {
		rows = append(rows, row{Reason: string(reason), Count: counts[string(reason)]})
	}
	s.render(w, "quality.html", map[string]any{
		"Stats": stats,
		"Rows":  rows,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	path := s.reportPath()
	if path == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) reportPath() string {
	if s.reportDir == "" {
		return ""
	}
	path := filepath.Join(s.reportDir, report.HTMLFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return path
}

func (s *Server) fail(w http.ResponseWriter, what string, err error) {
	slog.Error("request failed", "op", what, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		slog.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		slog.Error("rendering template", "template", name, "error", err)
	}
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, reportDir string, port int) error {
	srv, err := New(db, reportDir)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	slog.Info("server listening", "url", "http://"+addr)
	return http.ListenAndServe(addr, srv.Handler())
}
