package convert

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	sprig "github.com/go-task/slim-sprig/v3"

	"kpc/config"
	"kpc/kibela"
)

// Values is a struct that holds variables we make available for template expansion
type Values struct {
	Context string
	Title   string
	NoteID  string
	Team    string
	Author  string
	Date    string
}

// buildDate reduces the API publication timestamp to a date suitable for file
// names. Anything unparsable passes through as is.
func buildDate(published string) string {
	if len(published) == 0 {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, published); err == nil {
		return t.Format("2006-01-02")
	}
	return published
}

func expandTemplate(title, team string, n *kibela.Note, name config.TemplateFieldName, field string) (string, error) {
	funcMap := sprig.FuncMap()

	tmpl, err := template.New(string(name)).Funcs(funcMap).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", name, err)
	}

	values := Values{
		Context: string(name),
		Title:   title,
		NoteID:  n.ID,
		Team:    team,
		Author:  n.Author,
		Date:    buildDate(n.PublishedAt),
	}

	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}
