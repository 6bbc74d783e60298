package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"th":      "th",
		"th-TH":   "th",
		"TH":      "th",
		"en":      "en",
		"en_US":   "en",
		"EN-GB":   "en",
		"zh":      "zh",
		"zh-Hans": "zh",
		"ZH-CN":   "zh",
		"":        "zh",
		"fr":      "zh",
		"  en ":   "en",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLanguage(in), "input %q", in)
	}
}

func TestReportFilename(t *testing.T) {
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "20250115EOD42cashout.pdf", ReportFilename(date, 42, KindCashOut, "zh", "zh"))
	assert.Equal(t, "20250115EOD42cashout_en.pdf", ReportFilename(date, 42, KindCashOut, "en", "zh"))
	assert.Equal(t, "20250115EOD42income_th.pdf", ReportFilename(date, 42, KindIncome, "th", "zh"))
	assert.Equal(t, "20250115EOD7Diff.pdf", ReportFilename(date, 7, KindDiff, "en", "en"))
}

func TestReportDir(t *testing.T) {
	base := t.TempDir()
	date := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	dir, err := ReportDir(base, date)
	assert.NoError(t, err)
	assert.Contains(t, dir, "manager")
	assert.Contains(t, dir, "2025")
	assert.Contains(t, dir, "03")

	// Idempotent
	again, err := ReportDir(base, date)
	assert.NoError(t, err)
	assert.Equal(t, dir, again)
}

func TestStubRendererAuxiliaryFailure(t *testing.T) {
	r := NewStubRenderer("/tmp/reports", "zh")
	r.FailFor = map[string]bool{"th": true}

	bundle := Bundle{
		Header: Header{EodID: 9, EodDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
		Kind:   KindIncome,
	}

	files, err := r.Render(context.Background(), bundle, []string{"zh", "en", "th"})
	assert.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, "20250115EOD9income.pdf", files[0].Filename)
	assert.Equal(t, "20250115EOD9income_en.pdf", files[1].Filename)
}

func TestStubRendererTotalFailure(t *testing.T) {
	r := NewStubRenderer("/tmp/reports", "zh")
	r.FailFor = map[string]bool{"zh": true, "en": true, "th": true}

	_, err := r.Render(context.Background(), Bundle{Kind: KindDiff}, []string{"zh", "en", "th"})
	assert.Error(t, err)
	assert.Empty(t, r.Rendered)
}
