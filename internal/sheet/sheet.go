// Package sheet decodes uploaded workbooks into raw sheets of string cells.
//
// A decoded sheet is an ordered sequence of ordered cell sequences; rows may
// be ragged because trailing blank cells are not padded. Interpretation of
// headers, keys and value types happens downstream, not here.
//
// Supported formats, by file extension: csv, tsv/tab, xlsx, xlsm, xltx, xltm.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnknownFormat marks a file extension no decoder handles.
	ErrUnknownFormat = errors.New("unsupported spreadsheet format")
	// ErrSheetIndex marks a sheet selection outside the workbook.
	ErrSheetIndex = errors.New("sheet index out of range")
)

// Sheet is one raw worksheet.
type Sheet struct {
	Index int
	Name  string
	Rows  [][]string
}

// Supported reports whether the filename's extension has a decoder.
func Supported(filename string) bool {
	return format(filename) != ""
}

// format classifies a filename by extension: "csv", "tsv", "excel" or "".
func format(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "csv"
	case ".tsv", ".tab":
		return "tsv"
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return "excel"
	default:
		return ""
	}
}

// ReadAll decodes every sheet in the workbook. maxRows caps the raw rows
// read per sheet; 0 means unlimited.
func ReadAll(r io.Reader, filename string, maxRows int) ([]Sheet, error) {
	switch format(filename) {
	case "csv":
		return readDelimited(r, filename, ',', maxRows)
	case "tsv":
		return readDelimited(r, filename, '\t', maxRows)
	case "excel":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()

		names := f.GetSheetList()
		sheets := make([]Sheet, 0, len(names))
		for i, name := range names {
			rows, err := readExcelSheet(f, name, maxRows)
			if err != nil {
				return nil, err
			}
			sheets = append(sheets, Sheet{Index: i, Name: name, Rows: rows})
		}
		return sheets, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(filename))
	}
}

// ReadOne decodes only the sheet at index. maxRows caps the raw rows read;
// 0 means unlimited.
func ReadOne(r io.Reader, filename string, index, maxRows int) (Sheet, error) {
	switch format(filename) {
	case "csv", "tsv":
		if index != 0 {
			return Sheet{}, fmt.Errorf("%w: delimited files have a single sheet, got index %d", ErrSheetIndex, index)
		}
		sheets, err := ReadAll(r, filename, maxRows)
		if err != nil {
			return Sheet{}, err
		}
		return sheets[0], nil
	case "excel":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return Sheet{}, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()

		names := f.GetSheetList()
		if index < 0 || index >= len(names) {
			return Sheet{}, fmt.Errorf("%w: index %d of %d sheets", ErrSheetIndex, index, len(names))
		}
		rows, err := readExcelSheet(f, names[index], maxRows)
		if err != nil {
			return Sheet{}, err
		}
		return Sheet{Index: index, Name: names[index], Rows: rows}, nil
	default:
		return Sheet{}, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(filename))
	}
}

// readDelimited decodes a CSV or TSV stream as a single sheet named after
// the file. The stream runs through BOM skipping and UTF-8 sanitization.
func readDelimited(r io.Reader, filename string, comma rune, maxRows int) ([]Sheet, error) {
	cr := csv.NewReader(WrapReader(r))
	cr.Comma = comma
	cr.FieldsPerRecord = -1 // ragged rows are expected
	cr.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(filename), err)
		}
		rows = append(rows, rec)
		if maxRows > 0 && len(rows) >= maxRows {
			break
		}
	}

	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return []Sheet{{Index: 0, Name: name, Rows: rows}}, nil
}

// readExcelSheet streams one worksheet through the row iterator, stopping
// early at maxRows so oversized sheets are never fully materialized.
func readExcelSheet(f *excelize.File, name string, maxRows int) ([][]string, error) {
	iter, err := f.Rows(name)
	if err != nil {
		return nil, fmt.Errorf("open sheet %q: %w", name, err)
	}
	defer iter.Close()

	var rows [][]string
	for iter.Next() {
		cols, err := iter.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		rows = append(rows, cols)
		if maxRows > 0 && len(rows) >= maxRows {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate sheet %q: %w", name, err)
	}
	return rows, nil
}
