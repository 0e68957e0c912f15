package refdata

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrReferenceDataMissing marks a reference table that is absent or unreadable.
var ErrReferenceDataMissing = errors.New("reference data missing")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// table is a parsed delimited file with a trimmed header.
type table struct {
	header  []string
	columns map[string]int
	rows    [][]string
}

// column returns the index of the first header matching any name.
func (t *table) column(names ...string) (int, bool) {
	for _, n := range names {
		if idx, ok := t.columns[n]; ok {
			return idx, true
		}
	}
	return 0, false
}

// cell returns the trimmed value at idx, or "" when the row is short.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// titleRowFunc reports whether a leading row is a decorative title to skip.
type titleRowFunc func(row []string) bool

// openTable reads path as a delimited table.
func openTable(path string, comma rune, isTitle titleRowFunc) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrReferenceDataMissing, path, err)
	}
	defer f.Close()

	t, err := readTable(f, comma, isTitle)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrReferenceDataMissing, path, err)
	}
	return t, nil
}

// readTable parses r, stripping a UTF-8 BOM and an optional title row.
func readTable(r io.Reader, comma rune, isTitle titleRowFunc) (*table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) > 0 && isTitle != nil && isTitle(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row")
	}

	t := &table{columns: make(map[string]int)}
	for i, h := range records[0] {
		name := strings.TrimSpace(h)
		t.header = append(t.header, name)
		if _, dup := t.columns[name]; !dup {
			t.columns[name] = i
		}
	}
	t.rows = records[1:]
	return t, nil
}

// fedexTitle matches the carrier banner row some exports carry above the header.
func fedexTitle(row []string) bool {
	for _, c := range row {
		if strings.Contains(strings.ToUpper(c), "FEDEX") {
			return true
		}
	}
	return false
}

// fedexFirstCellTitle matches a banner row whose first cell is the carrier name.
func fedexFirstCellTitle(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "FEDEX")
}
