package kibela

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func noteServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, &Client{
		Team:     "myteam",
		Token:    "token123",
		Endpoint: srv.URL + "/api/v1",
		HTTP:     srv.Client(),
	}
}

func TestNoteFromPath(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		_, c := noteServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer token123" {
				t.Errorf("auth header = %q", got)
			}

			var req gqlRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("bad request body: %v", err)
			}
			if req.Variables["path"] != "/notes/123" {
				t.Errorf("path variable = %v", req.Variables["path"])
			}

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"noteFromPath":{
				"id":"QmxvZy8xMjM",
				"title":"Release checklist",
				"contentHtml":"<h1>Checklist</h1>",
				"author":{"account":"bob","realName":"Bob B."},
				"publishedAt":"2026-01-15T10:00:00Z"}}}`))
		})

		note, err := c.NoteFromPath(context.Background(), "/notes/123")
		if err != nil {
			t.Fatalf("NoteFromPath() error = %v", err)
		}
		if note.Title != "Release checklist" {
			t.Errorf("title = %q", note.Title)
		}
		if note.ContentHTML != "<h1>Checklist</h1>" {
			t.Errorf("content = %q", note.ContentHTML)
		}
		if note.Author != "Bob B." {
			t.Errorf("author = %q, want real name preferred", note.Author)
		}
	})

	t.Run("author falls back to account", func(t *testing.T) {
		_, c := noteServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"noteFromPath":{"id":"x","title":"t","contentHtml":"<p>b</p>","author":{"account":"bob"}}}}`))
		})
		note, err := c.NoteFromPath(context.Background(), "/notes/1")
		if err != nil {
			t.Fatalf("NoteFromPath() error = %v", err)
		}
		if note.Author != "bob" {
			t.Errorf("author = %q, want bob", note.Author)
		}
	})

	t.Run("graphql errors are fatal", func(t *testing.T) {
		_, c := noteServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errors":[{"message":"Not authorized"}]}`))
		})
		if _, err := c.NoteFromPath(context.Background(), "/notes/1"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing note", func(t *testing.T) {
		_, c := noteServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"noteFromPath":null}}`))
		})
		_, err := c.NoteFromPath(context.Background(), "/notes/1")
		if !errors.Is(err, ErrNoteNotFound) {
			t.Fatalf("error = %v, want ErrNoteNotFound", err)
		}
	})

	t.Run("http failure", func(t *testing.T) {
		_, c := noteServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		if _, err := c.NoteFromPath(context.Background(), "/notes/1"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("garbage response", func(t *testing.T) {
		_, c := noteServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>busy</html>"))
		})
		if _, err := c.NoteFromPath(context.Background(), "/notes/1"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestBase(t *testing.T) {
	c := &Client{Team: "myteam"}
	base, err := c.Base()
	if err != nil {
		t.Fatalf("Base() error = %v", err)
	}
	if base.String() != "https://myteam.kibe.la/" {
		t.Errorf("base = %q", base.String())
	}
}
