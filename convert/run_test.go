package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"kpc/config"
	"kpc/kibela"
	"kpc/state"
)

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("unable to encode test image: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func noteAPI(t *testing.T, title, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"data": map[string]any{
				"noteFromPath": map[string]any{
					"id":          "Tm90ZS8xMjM",
					"title":       title,
					"contentHtml": body,
					"author":      map[string]any{"account": "jdoe", "realName": "Jane Doe"},
					"publishedAt": "2024-03-05T10:30:00Z",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("unable to encode response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func conversionContext(t *testing.T) (context.Context, *state.LocalEnv) {
	t.Helper()
	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)

	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("unable to load default configuration: %v", err)
	}
	env.Cfg = cfg
	env.Log = zaptest.NewLogger(t)
	return ctx, env
}

func TestProcess(t *testing.T) {
	body := fmt.Sprintf(`
		<h1>Status</h1>
		<p>All <a href="https://example.com/ci">checks</a> green.</p>
		<ul><li>deploy</li><li>verify</li></ul>
		<table><tr><th>Env</th><th>State</th></tr><tr><td>prod</td><td>ok</td></tr></table>
		<img src=%q>
		<pre>make release</pre>`, pngDataURI(t, 20, 20))
	srv := noteAPI(t, "Release 1.4", body)

	ctx, env := conversionContext(t)
	client := &kibela.Client{Team: "acme", Token: "secret", Endpoint: srv.URL, HTTP: srv.Client(), Log: env.Log}

	dir := t.TempDir()
	if err := process(ctx, client, "acme", "/notes/123", dir, env.Log); err != nil {
		t.Fatalf("conversion failed: %v", err)
	}

	out := filepath.Join(dir, "release-1-4.pdf")
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output file was not produced: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output does not look like a pdf")
	}

	t.Run("refuses to overwrite", func(t *testing.T) {
		err := process(ctx, client, "acme", "/notes/123", dir, env.Log)
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Fatalf("expected overwrite refusal, got: %v", err)
		}
	})

	t.Run("overwrites when asked", func(t *testing.T) {
		env.Overwrite = true
		defer func() { env.Overwrite = false }()
		if err := process(ctx, client, "acme", "/notes/123", dir, env.Log); err != nil {
			t.Fatalf("conversion failed: %v", err)
		}
	})
}

func TestProcessUntitled(t *testing.T) {
	srv := noteAPI(t, "   ", "<p>body</p>")

	ctx, env := conversionContext(t)
	client := &kibela.Client{Team: "acme", Token: "secret", Endpoint: srv.URL, HTTP: srv.Client(), Log: env.Log}

	dir := t.TempDir()
	if err := process(ctx, client, "acme", "/notes/9", dir, env.Log); err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "untitled-note.pdf")); err != nil {
		t.Fatalf("fallback title was not used for the file name: %v", err)
	}
}

func TestProcessFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	ctx, env := conversionContext(t)
	client := &kibela.Client{Team: "acme", Token: "secret", Endpoint: srv.URL, HTTP: srv.Client(), Log: env.Log}

	if err := process(ctx, client, "acme", "/notes/123", t.TempDir(), env.Log); err == nil {
		t.Fatal("expected fetch failure to be fatal")
	}
}

func TestProcessBrokenImageStillRenders(t *testing.T) {
	// image host is unreachable, the document must still come out with a
	// placeholder
	body := `<p>look</p><img src="https://127.0.0.1:1/gone.png">`
	srv := noteAPI(t, "Broken", body)

	ctx, env := conversionContext(t)
	env.Cfg.Document.Images.FetchTimeout = 1
	client := &kibela.Client{Team: "acme", Token: "secret", Endpoint: srv.URL, HTTP: srv.Client(), Log: env.Log}

	dir := t.TempDir()
	if err := process(ctx, client, "acme", "/notes/5", dir, env.Log); err != nil {
		t.Fatalf("conversion failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.pdf")); err != nil {
		t.Fatalf("output file was not produced: %v", err)
	}
}
