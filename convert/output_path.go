package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"kpc/config"
	"kpc/kibela"
	"kpc/state"
)

const outExt = ".pdf"

// buildOutputPath returns constructed output file path/name. An explicit
// destination ending in the output extension wins over everything. Otherwise
// the destination is treated as a directory (working directory when empty)
// and the file name comes from the configured template or from the note
// title. It cleans up the path and if requested transliterates it.
func buildOutputPath(title, team, dst string, n *kibela.Note, env *state.LocalEnv) (string, error) {
	if strings.EqualFold(filepath.Ext(dst), outExt) {
		return filepath.Abs(dst)
	}

	outDir := dst
	if len(outDir) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("unable to get working directory: %w", err)
		}
		outDir = wd
	}
	outDir, err := filepath.Abs(outDir)
	if err != nil {
		return "", err
	}

	defaultFile := buildDefaultFileName(title, n, env)

	if env.Cfg.Document.OutputNameTemplate == "" {
		return filepath.Join(outDir, defaultFile), nil
	}

	expandedName := expandOutputNameTemplate(title, team, n, env)
	if expandedName == "" {
		// fallback to default name if template expansion failed
		return filepath.Join(outDir, defaultFile), nil
	}

	return assemblePathWithSubdirs(outDir, expandedName, env), nil
}

func buildDefaultFileName(title string, n *kibela.Note, env *state.LocalEnv) string {
	name := title
	if env.Cfg.Document.FileNameTransliterate {
		name = slug.Make(name)
	}
	if len(name) == 0 {
		// title did not survive transliteration, fall back to the note id
		name = n.ID
	}
	return config.CleanFileName(name) + outExt
}

func expandOutputNameTemplate(title, team string, n *kibela.Note, env *state.LocalEnv) string {
	expandedName, err := expandTemplate(title, team, n, config.OutputNameTemplateFieldName, env.Cfg.Document.OutputNameTemplate)
	if err != nil {
		env.Log.Warn("Unable to prepare output filename", zap.Error(err))
		return ""
	}
	return filepath.FromSlash(expandedName)
}

// assemblePathWithSubdirs takes an expanded template name (which may contain
// path separators for subdirectories) and assembles it into a full output path,
// cleaning and transliterating segments as needed
func assemblePathWithSubdirs(outDir, expandedName string, env *state.LocalEnv) string {
	pathSegments := splitAndCleanPath(expandedName)

	if len(pathSegments) == 0 {
		return outDir
	}

	fileName := cleanPathSegment(pathSegments[len(pathSegments)-1], env) + outExt
	dirParts := make([]string, 0, len(pathSegments)+1)
	dirParts = append(dirParts, outDir)

	for _, segment := range pathSegments[:len(pathSegments)-1] {
		dirParts = append(dirParts, cleanPathSegment(segment, env))
	}

	dirParts = append(dirParts, fileName)
	return filepath.Join(dirParts...)
}

func splitAndCleanPath(path string) []string {
	path = strings.TrimSuffix(path, string(os.PathSeparator))
	segments := make([]string, 0, 8)

	for head, tail := filepath.Split(path); tail != ""; head, tail = filepath.Split(head) {
		segments = slices.Insert(segments, 0, tail)
		head = strings.TrimSuffix(head, string(os.PathSeparator))
		if head == "" {
			break
		}
		path = head
	}

	return segments
}

func cleanPathSegment(segment string, env *state.LocalEnv) string {
	if env.Cfg.Document.FileNameTransliterate {
		segment = slug.Make(segment)
	}
	return config.CleanFileName(segment)
}
