package pdf

import (
	"bytes"
	"fmt"

	"github.com/olgkv/bookmarkchecker/internal/domain"
	"github.com/olgkv/bookmarkchecker/internal/locale"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/encoding/charmap"
)

const maxCellRunes = 90

// BuildResultsReport renders results as a one-line-per-bookmark PDF. The core
// fonts only cover cp1252, so text outside it is replaced by the translator.
func BuildResultsReport(results []domain.Result, lb locale.Labels) ([]byte, error) {
	p := gofpdf.New("P", "mm", "A4", "")
	tr := p.UnicodeTranslatorFromDescriptor("")
	title := reportTitle(lb)
	p.SetTitle(title, true)
	p.AddPage()

	p.SetFont("Arial", "B", 14)
	p.Cell(40, 10, tr(title))
	p.Ln(12)

	summary := domain.Summarize(results)
	p.SetFont("Arial", "", 10)
	p.Cell(40, 8, fmt.Sprintf("total: %d, ok: %d, error: %d", summary.Total, summary.OK, summary.Error))
	p.Ln(10)

	for i, r := range results {
		p.SetFont("Arial", "B", 10)
		if r.Status == domain.StatusOK {
			p.SetTextColor(0, 128, 0)
		} else {
			p.SetTextColor(200, 0, 0)
		}
		p.Cell(12, 6, fmt.Sprintf("%d.", i+1))
		p.Cell(14, 6, string(r.Status))
		p.SetTextColor(0, 0, 0)
		p.SetFont("Arial", "", 10)
		p.Cell(0, 6, tr(shorten(r.Title)))
		p.Ln(6)

		p.Cell(26, 5, "")
		p.Cell(0, 5, tr(shorten(r.URL)))
		p.Ln(5)
		if r.ErrorMessage != "" {
			p.Cell(26, 5, "")
			p.Cell(0, 5, tr(shorten(r.ErrorMessage)))
			p.Ln(5)
		}
		p.Ln(2)
	}

	var buf bytes.Buffer
	if err := p.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func shorten(s string) string {
	r := []rune(s)
	if len(r) <= maxCellRunes {
		return s
	}
	return string(r[:maxCellRunes-3]) + "..."
}

// reportTitle keeps the localized heading only if the core fonts can draw it.
func reportTitle(lb locale.Labels) string {
	if _, err := charmap.Windows1252.NewEncoder().String(lb.ReportTitle); err == nil {
		return lb.ReportTitle
	}
	return locale.English.Labels().ReportTitle
}
