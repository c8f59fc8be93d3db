// Package export encodes validation results into downloadable files.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/olgkv/bookmarkchecker/internal/domain"
	"github.com/olgkv/bookmarkchecker/internal/locale"
	"github.com/olgkv/bookmarkchecker/internal/pdf"
)

var (
	ErrUnknownFormat = errors.New("unknown export format")
	ErrUnknownFilter = errors.New("unknown export filter")
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

const baseFileName = "bookmarks"

var formats = map[Format]struct {
	fileName    string
	contentType string
}{
	FormatXLSX: {baseFileName + ".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	FormatCSV:  {baseFileName + ".csv", "text/csv; charset=utf-8"},
	FormatTXT:  {baseFileName + "_urls.txt", "text/plain; charset=utf-8"},
	FormatJSON: {baseFileName + ".json", "application/json; charset=utf-8"},
	FormatHTML: {baseFileName + ".html", "text/html; charset=utf-8"},
	FormatPDF:  {baseFileName + ".pdf", "application/pdf"},
}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formats[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

func ParseFilter(s string) (domain.Filter, error) {
	if s == "" {
		return domain.FilterAll, nil
	}
	f := domain.Filter(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
	}
	return f, nil
}

func (f Format) FileName() string    { return formats[f].fileName }
func (f Format) ContentType() string { return formats[f].contentType }

// Document is an encoded export ready to be served or written to disk.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Build filters results and encodes them in the requested format.
func Build(ctx context.Context, results []domain.Result, f Format, filter domain.Filter, lang locale.Lang) (*Document, error) {
	var buf bytes.Buffer
	if err := Encode(ctx, &buf, results, f, filter, lang); err != nil {
		return nil, err
	}
	return &Document{Name: f.FileName(), ContentType: f.ContentType(), Data: buf.Bytes()}, nil
}

func Encode(ctx context.Context, w io.Writer, results []domain.Result, f Format, filter domain.Filter, lang locale.Lang) error {
	if filter == "" {
		filter = domain.FilterAll
	}
	if !filter.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, filter)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	results = filter.Apply(results)
	lb := lang.Labels()

	switch f {
	case FormatXLSX:
		return writeXLSX(w, results, lb)
	case FormatCSV:
		return writeCSV(w, results, lb)
	case FormatTXT:
		return writeTXT(w, results)
	case FormatJSON:
		return writeJSON(w, results)
	case FormatHTML:
		return writeHTML(w, results)
	case FormatPDF:
		data, err := pdf.BuildResultsReport(results, lb)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func header(lb locale.Labels) []string {
	return []string{lb.Index, lb.Title, lb.URL, lb.Status, lb.ErrorMessage}
}

func row(i int, r domain.Result) []string {
	msg := r.ErrorMessage
	if r.Status == domain.StatusOK {
		msg = ""
	}
	return []string{strconv.Itoa(i + 1), r.Title, r.URL, string(r.Status), msg}
}

var columnWidths = []float64{8, 40, 60, 10, 30}

func writeXLSX(w io.Writer, results []domain.Result, lb locale.Labels) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := lb.SheetName
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	hdr := header(lb)
	cells := make([]interface{}, len(hdr))
	for i, h := range hdr {
		cells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &cells); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}

	for i, r := range results {
		values := row(i, r)
		rowCells := []interface{}{i + 1, values[1], values[2], values[3], values[4]}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rowCells); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+1, err)
		}
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("xlsx column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// writeCSV prefixes a UTF-8 BOM so spreadsheet apps pick the right encoding.
func writeCSV(w io.Writer, results []domain.Result, lb locale.Labels) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header(lb)); err != nil {
		return err
	}
	for i, r := range results {
		if err := cw.Write(row(i, r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeTXT(w io.Writer, results []domain.Result) error {
	urls := make([]string, len(results))
	for i, r := range results {
		urls[i] = r.URL
	}
	_, err := io.WriteString(w, strings.Join(urls, "\n"))
	return err
}

func writeJSON(w io.Writer, results []domain.Result) error {
	if results == nil {
		results = []domain.Result{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func writeHTML(w io.Writer, results []domain.Result) error {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n")
	b.WriteString("<html lang=\"en\">\n<head>\n<meta charset=\"UTF-8\">\n<title>Bookmarks</title>\n</head>\n<body>\n")
	b.WriteString("<h1>Bookmarks</h1>\n<dl><p>\n")
	for _, r := range results {
		fmt.Fprintf(&b, "    <dt><a href=\"%s\">%s</a></dt>\n", html.EscapeString(r.URL), html.EscapeString(r.Title))
	}
	b.WriteString("</p></dl>\n</body>\n</html>")
	_, err := io.WriteString(w, b.String())
	return err
}
