package importer

import (
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported file format, only CSV and XLSX are accepted")
	ErrNoHeader           = errors.New("file contains no header row")
	ErrMissingEmailColumn = errors.New("file must contain an 'email_address' or 'email' column")
)

// RawRow is one data row as read from the upload: nothing validated yet,
// the flag still in its source spelling. Line is the 1-based file line for
// error reporting (the header is line 1).
type RawRow struct {
	Line  int
	Email string
	Flag  string
}

// Parse reads an uploaded member list. The format is chosen by file
// extension; headers are matched case-insensitively and may use either the
// canonical or the shorthand column names.
func Parse(r io.Reader, filename string) ([]RawRow, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(r)
	case ".xlsx":
		return parseXLSX(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

type columns struct {
	email int
	flag  int // -1 when absent
}

func resolveColumns(headers []string) (columns, error) {
	cols := columns{email: -1, flag: -1}
	for i, h := range headers {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "email_address", "email":
			if cols.email == -1 {
				cols.email = i
			}
		case "mm_cepi", "mmcepi":
			if cols.flag == -1 {
				cols.flag = i
			}
		}
	}
	if cols.email == -1 {
		return cols, ErrMissingEmailColumn
	}
	return cols, nil
}

func parseCSV(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, err
	}

	cols, err := resolveColumns(headers)
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		// Incomplete rows are skipped, matching the header-tolerant reader
		// behavior for ragged exports.
		if len(record) != len(headers) {
			continue
		}

		rows = append(rows, rawRow(record, cols, line))
	}
	return rows, nil
}

func parseXLSX(r io.Reader) ([]RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, ErrUnsupportedFormat
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}

	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNoHeader
	}

	cols, err := resolveColumns(all[0])
	if err != nil {
		return nil, err
	}

	var rows []RawRow
	for i, record := range all[1:] {
		row := rawRow(record, cols, i+2)
		// Trailing spreadsheet rows come back as empty cells; only rows
		// that carry an email are data.
		if row.Email == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func rawRow(record []string, cols columns, line int) RawRow {
	row := RawRow{Line: line}
	if cols.email < len(record) {
		row.Email = strings.TrimSpace(record[cols.email])
	}
	if cols.flag >= 0 && cols.flag < len(record) {
		row.Flag = strings.TrimSpace(record[cols.flag])
	}
	return row
}

// trueTokens is the permissive boolean grammar inherited from the upload
// format, including the Dutch spellings organisations actually send.
var trueTokens = map[string]bool{
	"true": true, "1": true, "yes": true, "y": true, "ja": true, "waar": true,
}

// ParseFlag interprets the membership flag leniently: known true tokens and
// non-zero numbers are true, everything else (including the empty string)
// is false rather than an error.
func ParseFlag(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if trueTokens[value] {
		return true
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n != 0
	}
	return false
}
