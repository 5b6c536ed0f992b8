package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func TestResolveAll_Order(t *testing.T) {
	// every path /NN.png answers with a square image of that size
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		size, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(req.URL.Path, "/"), ".png"))
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := range size {
			for x := range size {
				img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	sizes := []int{10, 20, 30, 40, 50, 60, 70, 80}
	sources := make([]string, len(sizes))
	for i, s := range sizes {
		sources[i] = fmt.Sprintf("%s/%d.png", srv.URL, s)
	}
	// throw in a failure mid-stream
	sources = append(sources, srv.URL+"/broken")
	sizes = append(sizes, 0)

	r := &Resolver{Client: srv.Client(), Workers: 3}
	results := r.ResolveAll(context.Background(), sources)

	if len(results) != len(sources) {
		t.Fatalf("got %d results, want %d", len(results), len(sources))
	}
	for i, res := range results {
		if sizes[i] == 0 {
			if res.Reason != FailFetch {
				t.Errorf("results[%d].Reason = %q, want %q", i, res.Reason, FailFetch)
			}
			continue
		}
		if !res.OK() {
			t.Errorf("results[%d] failed: %q", i, res.Reason)
			continue
		}
		if res.Width != sizes[i] {
			t.Errorf("results[%d].Width = %d, want %d - order not preserved", i, res.Width, sizes[i])
		}
	}
}

func TestResolveAll_Cancelled(t *testing.T) {
	data := testPNG(t, 10, 10, color.White)
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Resolver{Workers: 2}
	results := r.ResolveAll(ctx, []string{src, src, src})

	for i, res := range results {
		if res.Reason != FailCancelled {
			t.Errorf("results[%d].Reason = %q, want %q", i, res.Reason, FailCancelled)
		}
	}
}

func TestResolveAll_Empty(t *testing.T) {
	r := &Resolver{}
	if res := r.ResolveAll(context.Background(), nil); res != nil {
		t.Errorf("expected nil result for empty input, got %v", res)
	}
}
