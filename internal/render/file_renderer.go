package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileRenderer persists one bundle snapshot per language under the report
// directory, following the print filename scheme. The actual page layout is
// owned by the external print service that consumes these snapshots.
type FileRenderer struct {
	BaseDir string
	Primary string
}

func NewFileRenderer(baseDir, primary string) *FileRenderer {
	return &FileRenderer{BaseDir: baseDir, Primary: NormalizeLanguage(primary)}
}

func (r *FileRenderer) Render(ctx context.Context, bundle Bundle, languages []string) ([]RenderedFile, error) {
	dir, err := ReportDir(r.BaseDir, bundle.Header.EodDate)
	if err != nil {
		return nil, err
	}

	var files []RenderedFile
	var lastErr error
	for _, raw := range languages {
		lang := NormalizeLanguage(raw)
		localized := bundle
		localized.Header.Language = lang

		data, err := json.MarshalIndent(localized, "", "  ")
		if err != nil {
			lastErr = err
			continue
		}

		name := ReportFilename(bundle.Header.EodDate, bundle.Header.EodID, bundle.Kind, lang, r.Primary)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			lastErr = err
			continue
		}
		files = append(files, RenderedFile{Language: lang, Filename: name, FilePath: path})
	}

	if len(files) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no language rendered: %w", lastErr)
		}
		return nil, fmt.Errorf("no language rendered")
	}
	return files, nil
}
