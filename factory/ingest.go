package factory

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/warp/contract-recon/generic"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// FILE INGESTION - Uploaded files to generic rows
// =============================================================================

// ReadFile picks a reader from the file name's extension.
func ReadFile(r io.Reader, filename string) ([]generic.Row, error) {
	return ReadRows(r, strings.ToLower(filepath.Ext(filename)))
}

// ReadRows reads a CSV or XLSX stream. The first row is the header row.
// XLSX cells are read raw, so date cells arrive as spreadsheet serials
// (float64) and go through the same path as any other numeric date.
func ReadRows(r io.Reader, ext string) ([]generic.Row, error) {
	switch ext {
	case ".csv":
		records, err := readCSV(r)
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		return toRows(records, false), nil
	case ".xlsx", ".xlsm":
		records, err := readXLSX(r)
		if err != nil {
			return nil, fmt.Errorf("read xlsx: %w", err)
		}
		return toRows(records, true), nil
	default:
		return nil, fmt.Errorf("%w: %q", generic.ErrUnsupportedFile, ext)
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	return f.GetRows(sheet, excelize.Options{RawCellValue: true})
}

func toRows(records [][]string, numeric bool) []generic.Row {
	if len(records) == 0 {
		return nil
	}
	header := make([]string, len(records[0]))
	seen := make(map[string]bool, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		header[i] = h
	}

	rows := make([]generic.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(generic.Row, len(header))
		for i, cell := range rec {
			if i >= len(header) || header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			row[header[i]] = cellValue(cell, numeric)
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// cellValue turns numeric-looking spreadsheet cells into float64. Values
// with a leading zero ("0042") stay text so identifiers keep their digits.
func cellValue(cell string, numeric bool) any {
	if !numeric {
		return cell
	}
	if len(cell) > 1 && cell[0] == '0' && cell[1] != '.' {
		return cell
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return cell
	}
	return f
}

// DecodeRows reads a JSON array of objects. Numbers are kept as json.Number
// so serial dates and amounts keep their precision.
func DecodeRows(r io.Reader) ([]generic.Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	rows := make([]generic.Row, 0, len(raw))
	for _, m := range raw {
		rows = append(rows, generic.Row(m))
	}
	return rows, nil
}
