package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Report kinds used in filenames.
const (
	KindCashOut = "cashout"
	KindIncome  = "income"
	KindDiff    = "Diff"
)

// Supported language codes after normalization.
const (
	LangZh = "zh"
	LangEn = "en"
	LangTh = "th"
)

type Header struct {
	BranchName    string    `json:"branch_name"`
	EodID         int       `json:"eod_id"`
	EodDate       time.Time `json:"eod_date"`
	Operator      string    `json:"operator"`
	BusinessStart time.Time `json:"business_start"`
	BusinessEnd   time.Time `json:"business_end"`
	Language      string    `json:"language"`
}

type Section struct {
	Type  string                   `json:"type"`
	Title string                   `json:"title"`
	Rows  []map[string]interface{} `json:"rows"`
}

// Bundle is the structured report handed to the renderer. The engine never
// composes print layouts itself.
type Bundle struct {
	Header   Header    `json:"header"`
	Kind     string    `json:"kind"`
	Sections []Section `json:"sections"`
}

type RenderedFile struct {
	Language string `json:"language"`
	Filename string `json:"filename"`
	FilePath string `json:"file_path"`
}

// Renderer turns a bundle into one file per requested language. An error is
// returned only when no language could be rendered.
type Renderer interface {
	Render(ctx context.Context, bundle Bundle, languages []string) ([]RenderedFile, error)
}

// NormalizeLanguage maps locale-ish inputs (th-TH, en_US, zh-Hans, ...) onto
// the three supported codes. Unknown input falls back to zh.
func NormalizeLanguage(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(c, "th"):
		return LangTh
	case strings.HasPrefix(c, "en"):
		return LangEn
	default:
		return LangZh
	}
}

// ReportFilename follows YYYYMMDDEOD{id}{kind}.pdf for the primary language
// and YYYYMMDDEOD{id}{kind}_{lang}.pdf for the others.
func ReportFilename(date time.Time, eodID int, kind, lang, primary string) string {
	base := fmt.Sprintf("%sEOD%d%s", date.Format("20060102"), eodID, kind)
	if lang == primary {
		return base + ".pdf"
	}
	return fmt.Sprintf("%s_%s.pdf", base, lang)
}

// ReportDir returns manager/YYYY/MM under the configured base and creates it.
func ReportDir(base string, date time.Time) (string, error) {
	dir := filepath.Join(base, "manager", date.Format("2006"), date.Format("01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// StubRenderer records bundles and reports the would-be file names without
// producing output. It is the default when no external renderer is wired and
// the test double for the print step.
type StubRenderer struct {
	BaseDir  string
	Primary  string
	Rendered []Bundle
	FailFor  map[string]bool
}

func NewStubRenderer(baseDir, primary string) *StubRenderer {
	return &StubRenderer{BaseDir: baseDir, Primary: NormalizeLanguage(primary)}
}

func (r *StubRenderer) Render(ctx context.Context, bundle Bundle, languages []string) ([]RenderedFile, error) {
	var files []RenderedFile
	for _, raw := range languages {
		lang := NormalizeLanguage(raw)
		if r.FailFor[lang] {
			continue
		}
		name := ReportFilename(bundle.Header.EodDate, bundle.Header.EodID, bundle.Kind, lang, r.Primary)
		files = append(files, RenderedFile{
			Language: lang,
			Filename: name,
			FilePath: filepath.Join(r.BaseDir, "manager", bundle.Header.EodDate.Format("2006"), bundle.Header.EodDate.Format("01"), name),
		})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no language rendered")
	}
	r.Rendered = append(r.Rendered, bundle)
	return files, nil
}
