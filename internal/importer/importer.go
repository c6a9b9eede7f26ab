// Package importer reads recipient spreadsheets and classifies rows
// before a mailing run.
package importer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sheetmail/sheetmail/internal/mail"
	"github.com/sheetmail/sheetmail/internal/pipeline"
)

// Column auto-detection patterns, matched against header text.
var (
	namePattern    = regexp.MustCompile(`(?i)name|имя`)
	contactPattern = regexp.MustCompile(`(?i)mail|contact|email`)
)

// Row is one data row from the source sheet. Number is the stable 1-based
// data row number used to trace report rows back to the source.
type Row struct {
	Number int
	Cells  []string
}

// Sheet is the parsed first worksheet of an uploaded file.
type Sheet struct {
	Headers []string
	Rows    []Row
}

// Load reads the first worksheet of an xlsx file. The first row is taken
// as the header row; remaining rows become data rows numbered from 1.
func Load(path string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no worksheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("worksheet %q is empty", sheets[0])
	}

	s := &Sheet{Headers: rows[0]}
	for i, cells := range rows[1:] {
		s.Rows = append(s.Rows, Row{Number: i + 1, Cells: cells})
	}
	return s, nil
}

// Cell returns the trimmed-right cell at idx, tolerating short rows.
func (r Row) Cell(idx int) string {
	if idx < 0 || idx >= len(r.Cells) {
		return ""
	}
	return r.Cells[idx]
}

// Column finds a header by exact text. Returns -1 when absent.
func (s *Sheet) Column(header string) int {
	for i, h := range s.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

// GuessColumns auto-detects the name and contact columns by header text,
// falling back to the first column like the original mapping UI.
func GuessColumns(headers []string) (nameIdx, contactIdx int) {
	nameIdx, contactIdx = 0, 0
	for i, h := range headers {
		if namePattern.MatchString(h) {
			nameIdx = i
			break
		}
	}
	for i, h := range headers {
		if contactPattern.MatchString(h) {
			contactIdx = i
			break
		}
	}
	return nameIdx, contactIdx
}

// Build produces the recipient list plus one preview outcome per row:
// VALID when an email extracts, FAIL when the contact field has none,
// DUPLICATE when the resolved address was already seen. Every row yields
// exactly one recipient and one preview outcome, in row order.
func Build(s *Sheet, nameIdx, contactIdx int) ([]pipeline.Recipient, []pipeline.Outcome) {
	recipients := make([]pipeline.Recipient, 0, len(s.Rows))
	preview := make([]pipeline.Outcome, 0, len(s.Rows))
	seen := make(map[string]struct{}, len(s.Rows))

	for _, row := range s.Rows {
		rcpt := pipeline.Recipient{
			Name:      strings.TrimSpace(row.Cell(nameIdx)),
			Contacts:  row.Cell(contactIdx),
			RowNumber: row.Number,
		}

		out := pipeline.Outcome{
			Name:      rcpt.Name,
			Contacts:  rcpt.Contacts,
			RowNumber: rcpt.RowNumber,
		}

		email, ok := mail.Extract(rcpt.Contacts)
		switch {
		case !ok:
			out.Status = pipeline.StatusFail
			out.Error = pipeline.ErrInvalidEmail
		default:
			rcpt.Email = email
			out.Email = email
			key := strings.ToLower(email)
			if _, dup := seen[key]; dup {
				out.Status = pipeline.StatusDuplicate
			} else {
				out.Status = pipeline.StatusValid
				seen[key] = struct{}{}
			}
		}

		recipients = append(recipients, rcpt)
		preview = append(preview, out)
	}

	return recipients, preview
}
