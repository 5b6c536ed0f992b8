package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"kpc/kibela"
	"kpc/layout"
	"kpc/note"
	"kpc/state"
	"kpc/utils/images"
)

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no note reference has been specified")
	}
	team, notePath, err := kibela.ParseNoteURL(src)
	if err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	// a bare note path carries no team, the configuration has to supply one
	if len(team) == 0 {
		team = env.Cfg.Kibela.Team
	}
	if len(team) == 0 {
		team = os.Getenv("KIBELA_TEAM")
	}
	if len(team) == 0 {
		return errors.New("team is not known - use a full note URL, set kibela.team or KIBELA_TEAM")
	}

	token := string(env.Cfg.Kibela.Token)
	if env.Cfg.Kibela.Token.Empty() {
		token = os.Getenv("KIBELA_TOKEN")
	}
	if len(token) == 0 {
		return errors.New("api token is not set - set kibela.token or KIBELA_TOKEN")
	}

	env.Overwrite, env.Stdout, env.Timeout = cmd.Bool("overwrite"), cmd.Bool("stdout"), cmd.Duration("timeout")

	if env.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, env.Timeout)
		defer cancel()
	}

	log.Info("Processing starting", zap.String("team", team), zap.String("note", notePath), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	client := &kibela.Client{
		Team:  team,
		Token: token,
		HTTP:  &http.Client{Timeout: time.Duration(env.Cfg.Document.Images.FetchTimeout) * time.Second},
		Log:   log.Named("kibela"),
	}
	return process(ctx, client, team, notePath, dst, log)
}

// process handles a single note conversion independently of the CLI
// framework: fetch, extract, resolve media, lay out, render.
func process(ctx context.Context, client *kibela.Client, team, notePath, dst string, log *zap.Logger) (rerr error) {
	env := state.EnvFromContext(ctx)

	refID := uuid.New().String()

	var outputName string

	log.Info("Conversion starting", zap.String("from", notePath), zap.String("ref_id", refID))
	defer func(start time.Time) {
		// NOTE: graphics and pdf processing libraries are not always panic
		// free, degrade to an error instead of taking the process down.
		if r := recover(); r != nil {
			log.Error("Conversion ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("conversion panic: %v", r)
		} else {
			log.Info("Conversion completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.String("ref_id", refID))
		}
	}(time.Now())

	n, err := client.NoteFromPath(ctx, notePath)
	if err != nil {
		return fmt.Errorf("unable to fetch note (%s): %w", notePath, err)
	}
	if env.Rpt != nil {
		env.Rpt.StoreData(fmt.Sprintf("note-%s.html", refID), []byte(n.ContentHTML))
	}

	blocks, err := note.Parse(strings.NewReader(n.ContentHTML))
	if err != nil {
		return err
	}

	base, err := client.Base()
	if err != nil {
		return err
	}

	icfg := env.Cfg.Document.Images
	maxW, maxH := icfg.MaxWidth, icfg.MaxHeight
	if icfg.ScaleFactor > 0 {
		// headroom for high resolution output
		maxW = int(float64(maxW) * icfg.ScaleFactor)
		maxH = int(float64(maxH) * icfg.ScaleFactor)
	}
	resolver := &images.Resolver{
		Client:    &http.Client{Timeout: time.Duration(icfg.FetchTimeout) * time.Second},
		Base:      base,
		AuthToken: client.Token,
		SizeFloor: icfg.SizeFloor,
		Quality:   icfg.JPEGQuality,
		MaxWidth:  maxW,
		MaxHeight: maxH,
		Workers:   icfg.Workers,
		Log:       log.Named("images"),
	}
	resolved := resolver.ResolveAll(ctx, note.ImageSources(blocks))

	doc := assembleDocument(n, blocks, env.Cfg.Document.TitleFallback)

	pw, ph := env.Cfg.Document.Page.Size.Dimensions()
	page := layout.Page{Width: pw, Height: ph, Margin: env.Cfg.Document.Page.Margin}
	els := layout.Normalize(doc.Blocks, resolved, page)

	if env.Rpt != nil {
		env.Rpt.StoreData(fmt.Sprintf("document-%s.txt", refID), dumpDocument(doc, els))
	}

	var buf bytes.Buffer
	renderer := &PDFRenderer{Page: page, Log: log.Named("pdf")}
	if err := renderer.Render(doc, els, &buf); err != nil {
		return fmt.Errorf("unable to generate output: %w", err)
	}

	if env.Stdout {
		if _, err := os.Stdout.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("unable to write output: %w", err)
		}
		outputName = "stdout"
		return nil
	}

	outputName, err = buildOutputPath(doc.Title, team, dst, n, env)
	if err != nil {
		return err
	}

	// Check if output file already exists
	if _, err := os.Stat(outputName); err == nil {
		if !env.Overwrite {
			return fmt.Errorf("output file already exists: %s", outputName)
		}
		log.Warn("Overwriting existing file", zap.String("file", outputName))
		if err = os.Remove(outputName); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	} else if err := os.MkdirAll(filepath.Dir(outputName), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	if err := os.WriteFile(outputName, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}

	// Store conversion result for debugging
	if env.Rpt != nil {
		env.Rpt.Store(fmt.Sprintf("result-%s.pdf", refID), outputName)
	}

	return nil
}
