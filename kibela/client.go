// Package kibela fetches wiki notes over the Kibela GraphQL API.
package kibela

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ErrNoteNotFound is returned when the API answers but knows no such note.
var ErrNoteNotFound = errors.New("note not found")

const noteQuery = `query($path: String!) {
  noteFromPath(path: $path) {
    id
    title
    contentHtml
    author { account realName }
    publishedAt
  }
}`

// Note is the fetched wiki note.
type Note struct {
	ID          string
	Title       string
	ContentHTML string
	Author      string
	PublishedAt string
}

// Client talks to a single team's API endpoint.
type Client struct {
	Team     string
	Token    string
	Endpoint string // computed from Team when empty, settable for tests
	HTTP     *http.Client
	Log      *zap.Logger
}

func (c *Client) endpoint() string {
	if len(c.Endpoint) != 0 {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.kibe.la/api/v1", c.Team)
}

// Base returns the URL relative note references resolve against.
func (c *Client) Base() (*url.URL, error) {
	u, err := url.Parse(c.endpoint())
	if err != nil {
		return nil, fmt.Errorf("bad api endpoint: %w", err)
	}
	u.Path, u.RawQuery, u.Fragment = "/", "", ""
	return u, nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlNote struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ContentHTML string `json:"contentHtml"`
	Author      *struct {
		Account  string `json:"account"`
		RealName string `json:"realName"`
	} `json:"author"`
	PublishedAt string `json:"publishedAt"`
}

type gqlResponse struct {
	Data struct {
		NoteFromPath *gqlNote `json:"noteFromPath"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// NoteFromPath fetches the note living at the given path. All failures here
// are fatal for the conversion - there is nothing to render without a body.
func (c *Client) NoteFromPath(ctx context.Context, path string) (*Note, error) {
	payload, err := json.Marshal(gqlRequest{
		Query:     noteQuery,
		Variables: map[string]any{"path": path},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("unable to create api request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read api response: %w", err)
	}

	var gr gqlResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("unable to decode api response: %w", err)
	}
	if len(gr.Errors) != 0 {
		msgs := make([]string, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("api reported errors: %s", strings.Join(msgs, "; "))
	}
	if gr.Data.NoteFromPath == nil {
		return nil, ErrNoteNotFound
	}

	n := gr.Data.NoteFromPath
	note := &Note{
		ID:          n.ID,
		Title:       n.Title,
		ContentHTML: n.ContentHTML,
		PublishedAt: n.PublishedAt,
	}
	if n.Author != nil {
		note.Author = n.Author.RealName
		if len(note.Author) == 0 {
			note.Author = n.Author.Account
		}
	}

	if c.Log != nil {
		c.Log.Debug("Fetched note",
			zap.String("id", note.ID),
			zap.String("title", note.Title),
			zap.Int("body_size", len(note.ContentHTML)))
	}
	return note, nil
}
