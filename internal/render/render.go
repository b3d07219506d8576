// Package render turns agenda rows into HTML, plain text or iCalendar.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"spondcal/internal/model"
)

// MissingCredentialsMessage is shown instead of an agenda when no account
// has been configured.
const MissingCredentialsMessage = "Username and/or password not found."

//go:embed templates/agenda.html.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/agenda.html.tmpl"))

// PageData is the input of the full agenda page. When Message is set it is
// shown instead of the table.
type PageData struct {
	Title   string
	Zone    string
	Views   []model.EventView
	Message string
}

// HTML writes the agenda table fragment.
func HTML(w io.Writer, views []model.EventView) error {
	return templates.ExecuteTemplate(w, "table", views)
}

// Page writes a standalone HTML document around the agenda table.
func Page(w io.Writer, data PageData) error {
	if data.Title == "" {
		data.Title = "Agenda"
	}
	return templates.ExecuteTemplate(w, "page", data)
}

// Text writes one line per event followed by an indented description:
//
//	Sat 01-06-2024 12:00 - 13:00 Training
//	    Bring water
func Text(w io.Writer, views []model.EventView) error {
	if len(views) == 0 {
		_, err := io.WriteString(w, "No upcoming events.\n")
		return err
	}
	var b strings.Builder
	for _, v := range views {
		fmt.Fprintf(&b, "%s %s - %s %s\n", v.StartDate, v.StartTimeLocal, v.EndTimeLocal, v.Heading)
		if v.Description != "" {
			fmt.Fprintf(&b, "    %s\n", strings.ReplaceAll(v.Description, "\n", "\n    "))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
