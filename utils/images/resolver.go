// Package images resolves image references from note bodies into bytes ready
// for embedding. Resolution is best effort: whatever goes wrong with a
// particular image, the document still renders and the failure is carried as
// a typed placeholder.
package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"go.uber.org/zap"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"kpc/jpegquality"
)

// maxFetchSize caps a single image download.
const maxFetchSize = 32 << 20

const defaultJPEGQuality = 85

// FailReason classifies why an image reference could not be resolved.
type FailReason string

const (
	FailNone        FailReason = ""
	FailEmptySource FailReason = "empty source"
	FailBadURL      FailReason = "unusable URL"
	FailFetch       FailReason = "fetch failed"
	FailDecode      FailReason = "decode failed"
	FailEncode      FailReason = "encode failed"
	FailCancelled   FailReason = "cancelled"
)

var errBadURL = errors.New("reference is not a usable URL")

// Resolved is the outcome of resolving a single image reference. A non-empty
// Reason marks a placeholder - the renderer shows the reason instead of the
// picture. Decorative marks images at or below the size floor (tracking
// pixels, spacers) which are dropped from output entirely.
type Resolved struct {
	Source     string
	Data       []byte // JPEG bytes ready for embedding
	Width      int    // pixels
	Height     int
	Decorative bool
	Reason     FailReason
}

// OK reports whether the image should actually be drawn.
func (r Resolved) OK() bool {
	return r.Reason == FailNone && !r.Decorative
}

// Resolver turns image references into embeddable raster data.
type Resolver struct {
	Client    *http.Client
	Base      *url.URL // resolution base for relative references
	AuthToken string   // sent as Bearer for requests to the base host only
	SizeFloor int      // pixels, anything at or below is decorative
	Quality   int      // target JPEG quality, defaultJPEGQuality when 0
	MaxWidth  int      // pixel bounds, downscale only
	MaxHeight int
	Workers   int // parallel fetches in ResolveAll
	Log       *zap.Logger
}

// Resolve obtains, decodes and prepares a single image reference. It never
// fails - all errors degrade into placeholders.
func (r *Resolver) Resolve(ctx context.Context, src string) Resolved {
	res := Resolved{Source: src}

	src = strings.TrimSpace(src)
	if len(src) == 0 {
		res.Reason = FailEmptySource
		return res
	}

	if strings.HasPrefix(src, "data:") {
		data, err := decodeDataURI(src)
		if err != nil {
			r.log().Debug("Unable to decode data URI", zap.Error(err))
			res.Reason = FailDecode
			return res
		}
		return r.prepare(res, data)
	}

	data, err := r.fetch(ctx, src)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			res.Reason = FailCancelled
		case errors.Is(err, errBadURL):
			res.Reason = FailBadURL
		default:
			res.Reason = FailFetch
		}
		r.log().Debug("Unable to obtain image", zap.String("src", src), zap.Error(err))
		return res
	}
	return r.prepare(res, data)
}

func (r *Resolver) fetch(ctx context.Context, src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err != nil {
		return nil, errBadURL
	}
	if !u.IsAbs() {
		if r.Base == nil {
			return nil, errBadURL
		}
		u = r.Base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errBadURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	// authenticated wiki attachments live on the same host as the note
	if len(r.AuthToken) != 0 && r.Base != nil && u.Host == r.Base.Host {
		req.Header.Set("Authorization", "Bearer "+r.AuthToken)
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
}

// prepare decodes image data, applies the size floor, downscales to pixel
// bounds and re-encodes as JPEG. Compliant JPEGs are passed through as is.
func (r *Resolver) prepare(res Resolved, data []byte) Resolved {
	var (
		img image.Image
		err error
	)
	if isSVG(data) {
		img, err = RasterizeSVGToImage(data, 0, 0)
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		r.log().Debug("Unable to decode image", zap.String("src", res.Source), zap.Error(err))
		res.Reason = FailDecode
		return res
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= r.SizeFloor || h <= r.SizeFloor {
		res.Decorative = true
		res.Width, res.Height = w, h
		return res
	}

	resized := false
	if (r.MaxWidth > 0 && w > r.MaxWidth) || (r.MaxHeight > 0 && h > r.MaxHeight) {
		maxW, maxH := r.MaxWidth, r.MaxHeight
		if maxW <= 0 {
			maxW = w
		}
		if maxH <= 0 {
			maxH = h
		}
		img = imaging.Fit(img, maxW, maxH, imaging.Lanczos)
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
		resized = true
	}

	quality := r.Quality
	if quality <= 0 {
		quality = defaultJPEGQuality
	}

	if !resized && filetype.IsMIME(data, "image/jpeg") {
		if jq, err := jpegquality.NewWithBytes(data); err == nil && jq.Quality() <= quality {
			res.Data, res.Width, res.Height = data, w, h
			return res
		}
	}

	flat := flattenOnWhite(img)
	encoded, err := EncodeJPEGWithDPI(flat, quality, DpiPxPerInch, 96, 96)
	if err != nil {
		r.log().Warn("Unable to encode image", zap.String("src", res.Source), zap.Error(err))
		res.Reason = FailEncode
		return res
	}
	res.Data, res.Width, res.Height = encoded, w, h
	return res
}

func (r *Resolver) log() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

// flattenOnWhite composes the image over an opaque white background and
// collapses grayscale content to a single channel.
func flattenOnWhite(img image.Image) image.Image {
	b := img.Bounds()
	flat := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)

	if IsGrayscale(flat) {
		g := image.NewGray(flat.Bounds())
		draw.Draw(g, g.Bounds(), flat, image.Point{}, draw.Src)
		return g
	}
	return flat
}

func isSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<svg"))
}

func decodeDataURI(src string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(unescaped), nil
}
