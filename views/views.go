// Package views holds the server-rendered pages and the browser client that
// drives a session.
package views

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// ParticipantPage is the data of the page a participant opens.
type ParticipantPage struct {
	Title     string
	CSRFToken string
	Nonce     string
	// PollWaitMS is how long a command poll may be held open by the server.
	PollWaitMS int64
}

func Participant(w io.Writer, p ParticipantPage) error {
	return templates.ExecuteTemplate(w, "participant.html", p)
}

// Chart is one echarts option object and the element it renders into.
type Chart struct {
	ID      string
	Options map[string]interface{}
}

type ChartPage struct {
	Title  string
	Nonce  string
	Charts []Chart
}

func Charts(w io.Writer, p ChartPage) error {
	return templates.ExecuteTemplate(w, "charts.html", p)
}

// Static serves the browser client.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
