package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageData struct {
	Title     string
	StreamURL string
}

func (s *Server) registerPages() error {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse page templates: %w", err)
	}

	render := func(c echo.Context, name string, data pageData) error {
		var buf bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
			return s.HandleErrorWithCode(c, err, "Failed to render page", http.StatusInternalServerError)
		}
		return c.HTMLBlob(http.StatusOK, buf.Bytes())
	}

	s.echo.GET("/", func(c echo.Context) error {
		return render(c, "index.html", pageData{Title: "Face Tracking", StreamURL: s.streamURL(c.Request())})
	})
	s.echo.GET("/stream", func(c echo.Context) error {
		return render(c, "stream.html", pageData{Title: "Live Stream", StreamURL: s.streamURL(c.Request())})
	})
	return nil
}

// streamURL points at the stream relay on the host the browser used to reach us.
func (s *Server) streamURL(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d/%s", host, s.config.RelayPort, strings.TrimPrefix(s.config.LiveStreamPath, "/"))
}
