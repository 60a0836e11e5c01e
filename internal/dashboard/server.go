// Package dashboard serves a small operator web UI over the transcript
// archive: active session counts, recent sessions, and full transcripts.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SessionSource reports live session state. Satisfied by session.Manager.
type SessionSource interface {
	ActiveCount() int
	ActiveChannels() []string
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB       *gorm.DB      // transcript archive; nil disables archive views
	Sessions SessionSource // live session state; nil shows zero
	Port     int
	Out      io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := template.New("index").Parse(indexTemplate)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	registerRoutes(router, opts.DB, opts.Sessions)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// indexTemplate is the single server-rendered page.
const indexTemplate = `<!DOCTYPE html>
<html>
<head>
<title>parley</title>
<style>
body { font-family: monospace; margin: 2em; background: #1c1c1c; color: #ddd; }
h1 { color: #8fbc8f; }
table { border-collapse: collapse; margin-top: 1em; }
th, td { border: 1px solid #444; padding: 4px 10px; text-align: left; }
th { background: #2a2a2a; }
a { color: #87ceeb; }
.muted { color: #777; }
</style>
</head>
<body>
<h1>parley</h1>
<p>Active sessions: <b>{{ .ActiveSessions }}</b>{{ if .ActiveChannels }} <span class="muted">({{ range .ActiveChannels }}{{ . }} {{ end }})</span>{{ end }}</p>
{{ if .ArchiveEnabled }}
<p>Archived: {{ .TotalSessions }} sessions, {{ .TotalMessages }} messages</p>
<table>
<tr><th>ID</th><th>Platform</th><th>Channel</th><th>Started by</th><th>Status</th><th>Collected</th><th>Started</th></tr>
{{ range .Recent }}
<tr>
<td><a href="/api/sessions/{{ .ID }}">{{ .ID }}</a></td>
<td>{{ .Platform }}</td>
<td>{{ .ChannelID }}</td>
<td>{{ .StartedBy }}</td>
<td>{{ .Status }}</td>
<td>{{ .CollectedCount }}</td>
<td>{{ .StartedAt.Format "2006-01-02 15:04" }}</td>
</tr>
{{ end }}
</table>
{{ else }}
<p class="muted">Transcript archive disabled.</p>
{{ end }}
</body>
</html>`
