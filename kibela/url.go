package kibela

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const teamDomain = ".kibe.la"

// ParseNoteURL splits a user-supplied note reference into team and note
// path. Accepts full note URLs (https://TEAM.kibe.la/notes/123, group and
// folder forms included), "?id=<id>" query references and bare numeric ids.
// Forms without a host leave team empty - it must then be supplied by
// configuration.
func ParseNoteURL(raw string) (team, path string, err error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return "", "", errors.New("empty note reference")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("unable to parse note reference: %w", err)
	}

	if len(u.Host) != 0 {
		if u.Scheme != "https" && u.Scheme != "http" {
			return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		host := strings.ToLower(u.Hostname())
		if !strings.HasSuffix(host, teamDomain) {
			return "", "", fmt.Errorf("%q is not a wiki host", u.Host)
		}
		team = strings.TrimSuffix(host, teamDomain)
		if len(team) == 0 {
			return "", "", fmt.Errorf("no team in host %q", u.Host)
		}
	}

	if path = u.Path; strings.Contains(path, "/notes/") {
		return team, path, nil
	}
	// the web UI also links notes as "?id=<id>" and people paste bare ids
	if id := u.Query().Get("id"); len(id) != 0 {
		return team, "/notes/" + id, nil
	}
	if id := strings.Trim(path, "/"); isNoteID(id) {
		return team, "/notes/" + id, nil
	}
	return "", "", fmt.Errorf("%q does not look like a note reference", raw)
}

func isNoteID(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
