// Package report compiles mailing run outcomes into a formatted xlsx
// document.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sheetmail/sheetmail/internal/importer"
	"github.com/sheetmail/sheetmail/internal/pipeline"
)

const (
	sheetName = "Report"

	// Fill colors for status highlighting.
	failFill = "FFCCCC"
	okFill   = "CCFFCC"

	// Row height: 20 units per text line, minimum one line.
	lineHeight   = 20.0
	minRowHeight = 20.0
	headerHeight = 25.0
)

// Default column widths tuned for organization name, date, email,
// contacts and status.
var defaultWidths = []float64{30, 20, 25, 30, 35}

// defaultHeaders are the fixed five columns of the default report mode.
var defaultHeaders = []string{"Organization", "Send date", "Email", "Contacts", "Status"}

// ColumnKind selects what a configured report column contains.
type ColumnKind int

const (
	// ColumnCopySource copies a column from the original source row.
	ColumnCopySource ColumnKind = iota
	// ColumnSendTimestamp is the computed send date-time.
	ColumnSendTimestamp
	// ColumnStatusLabel is the computed human-readable status.
	ColumnStatusLabel
)

// Column is one selector of the configurable report mode.
type Column struct {
	Kind        ColumnKind
	SourceIndex int // column index in the source sheet, for ColumnCopySource
}

// Compiler writes run reports. The zero value writes five-column default
// reports to the user's desktop.
type Compiler struct {
	// OutputDir overrides the default save location (the desktop).
	OutputDir string

	now func() time.Time
}

// NewCompiler creates a compiler writing into dir, or the desktop when
// dir is empty.
func NewCompiler(dir string) *Compiler {
	return &Compiler{OutputDir: dir}
}

// StatusLabel maps a status to the report's human-readable label.
func StatusLabel(status pipeline.Status, errMsg string) string {
	switch status {
	case pipeline.StatusOK:
		return "Sent"
	case pipeline.StatusFail:
		if errMsg == "" {
			errMsg = "unknown error"
		}
		return "Error: " + errMsg
	case pipeline.StatusValid:
		return "Needs review"
	case pipeline.StatusDuplicate:
		return "Duplicate"
	default:
		return "Unknown status"
	}
}

// Compile writes the default five-column report and returns the absolute
// file path.
func (c *Compiler) Compile(outcomes []pipeline.Outcome) (string, error) {
	return c.compile(outcomes, nil, nil)
}

// CompileColumns writes a report with the configured column selection,
// copying source columns from src by the outcome's row number.
func (c *Compiler) CompileColumns(outcomes []pipeline.Outcome, src *importer.Sheet, cols []Column) (string, error) {
	if len(cols) == 0 {
		return c.compile(outcomes, nil, nil)
	}
	return c.compile(outcomes, src, cols)
}

func (c *Compiler) compile(outcomes []pipeline.Outcome, src *importer.Sheet, cols []Column) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return "", fmt.Errorf("failed to name worksheet: %w", err)
	}

	styles, err := newStyleSet(f)
	if err != nil {
		return "", err
	}

	headers := defaultHeaders
	widths := defaultWidths
	if cols != nil {
		headers = columnHeaders(src, cols)
		widths = columnWidths(cols)
	}

	if err := c.writeHeader(f, headers, widths, styles); err != nil {
		return "", err
	}

	srcRows := indexSourceRows(src)
	for i, out := range outcomes {
		row := i + 2 // 1 header row
		var cells []string
		if cols == nil {
			cells = defaultCells(out)
		} else {
			cells = columnCells(out, srcRows[out.RowNumber], cols)
		}
		if err := c.writeRow(f, row, cells, out, styles); err != nil {
			return "", err
		}
	}

	path := c.outputPath()
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return path, nil
}

func (c *Compiler) writeHeader(f *excelize.File, headers []string, widths []float64, styles *styleSet) error {
	for i, h := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		cell := fmt.Sprintf("%s1", col)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
		w := defaultWidths[0]
		if i < len(widths) {
			w = widths[i]
		}
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			return err
		}
	}

	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last+"1", styles.header); err != nil {
		return err
	}
	return f.SetRowHeight(sheetName, 1, headerHeight)
}

func (c *Compiler) writeRow(f *excelize.File, row int, cells []string, out pipeline.Outcome, styles *styleSet) error {
	for i, v := range cells {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return err
		}
	}

	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(cells), row)
	if err != nil {
		return err
	}

	style := styles.body
	switch out.Status {
	case pipeline.StatusFail:
		style = styles.fail
	case pipeline.StatusOK:
		style = styles.ok
	}
	if err := f.SetCellStyle(sheetName, first, last, style); err != nil {
		return err
	}

	// The longer of the name and contacts blocks drives the row height so
	// multi-line values are not clipped.
	h := rowHeight(out.Name, defaultWidths[0])
	if ch := rowHeight(out.Contacts, defaultWidths[3]); ch > h {
		h = ch
	}
	return f.SetRowHeight(sheetName, row, h)
}

func (c *Compiler) outputPath() string {
	dir := c.OutputDir
	if dir == "" {
		dir = desktopDir()
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	name := fmt.Sprintf("mailing_report_%s.xlsx", now().Format("20060102_1504"))
	return filepath.Join(dir, name)
}

// desktopDir is the default save location.
func desktopDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Desktop")
}

func defaultCells(out pipeline.Outcome) []string {
	return []string{
		out.Name,
		formatDate(out.SentAt),
		out.Email,
		out.Contacts,
		StatusLabel(out.Status, out.Error),
	}
}

func columnCells(out pipeline.Outcome, src importer.Row, cols []Column) []string {
	cells := make([]string, 0, len(cols))
	for _, col := range cols {
		switch col.Kind {
		case ColumnSendTimestamp:
			cells = append(cells, formatDate(out.SentAt))
		case ColumnStatusLabel:
			cells = append(cells, StatusLabel(out.Status, out.Error))
		default:
			cells = append(cells, src.Cell(col.SourceIndex))
		}
	}
	return cells
}

func columnHeaders(src *importer.Sheet, cols []Column) []string {
	headers := make([]string, 0, len(cols))
	for _, col := range cols {
		switch col.Kind {
		case ColumnSendTimestamp:
			headers = append(headers, "Send date")
		case ColumnStatusLabel:
			headers = append(headers, "Status")
		default:
			h := ""
			if src != nil && col.SourceIndex >= 0 && col.SourceIndex < len(src.Headers) {
				h = src.Headers[col.SourceIndex]
			}
			if h == "" {
				h = fmt.Sprintf("Column %d", col.SourceIndex+1)
			}
			headers = append(headers, h)
		}
	}
	return headers
}

func columnWidths(cols []Column) []float64 {
	widths := make([]float64, 0, len(cols))
	for _, col := range cols {
		switch col.Kind {
		case ColumnSendTimestamp:
			widths = append(widths, defaultWidths[1])
		case ColumnStatusLabel:
			widths = append(widths, defaultWidths[4])
		default:
			widths = append(widths, defaultWidths[0])
		}
	}
	return widths
}

func indexSourceRows(src *importer.Sheet) map[int]importer.Row {
	rows := make(map[int]importer.Row)
	if src == nil {
		return rows
	}
	for _, r := range src.Rows {
		rows[r.Number] = r
	}
	return rows
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.06 15:04")
}

// rowHeight estimates the height needed for text wrapped at width
// characters per line.
func rowHeight(text string, width float64) float64 {
	lines := 0
	for _, line := range splitLines(text) {
		n := len([]rune(line))
		l := (n + int(width) - 1) / int(width)
		if l < 1 {
			l = 1
		}
		lines += l
	}
	h := float64(lines) * lineHeight
	if h < minRowHeight {
		return minRowHeight
	}
	return h
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

// styleSet holds the worksheet styles shared by all rows.
type styleSet struct {
	header int
	body   int
	ok     int
	fail   int
}

func newStyleSet(f *excelize.File) (*styleSet, error) {
	borders := []excelize.Border{
		{Type: "top", Color: "000000", Style: 1},
		{Type: "left", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    borders,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	wrap := excelize.Alignment{WrapText: true, Vertical: "center"}

	body, err := f.NewStyle(&excelize.Style{Alignment: &wrap, Border: borders})
	if err != nil {
		return nil, fmt.Errorf("failed to create body style: %w", err)
	}

	ok, err := f.NewStyle(&excelize.Style{
		Alignment: &wrap,
		Border:    borders,
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{okFill}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ok style: %w", err)
	}

	fail, err := f.NewStyle(&excelize.Style{
		Alignment: &wrap,
		Border:    borders,
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{failFill}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fail style: %w", err)
	}

	return &styleSet{header: header, body: body, ok: ok, fail: fail}, nil
}
