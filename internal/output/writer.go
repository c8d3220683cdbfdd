package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"arvscout/internal/models"
)

// Writer appends valuation rows to an output file. Close flushes and must be
// called once.
type Writer interface {
	WriteRows(rows []models.ValuationRow) error
	Close() error
}

// NewWriter picks the format from path's extension: .xlsx writes a
// spreadsheet, anything else CSV. The header row is written immediately.
func NewWriter(path string) (Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return NewXLSXWriter(path)
	}
	return NewCSVWriter(path)
}

type CSVWriter struct {
	file *os.File
	w    *csv.Writer
}

func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &CSVWriter{file: f, w: w}, nil
}

func (c *CSVWriter) WriteRows(rows []models.ValuationRow) error {
	for _, r := range rows {
		if err := c.w.Write(Record(r)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}

// SheetName is the worksheet XLSXWriter writes to.
const SheetName = "properties"

type XLSXWriter struct {
	path   string
	file   *excelize.File
	stream *excelize.StreamWriter
	next   int
}

func NewXLSXWriter(path string) (*XLSXWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, err
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open sheet stream: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &XLSXWriter{path: path, file: f, stream: sw, next: 2}, nil
}

func (x *XLSXWriter) WriteRows(rows []models.ValuationRow) error {
	for _, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, x.next)
		if err != nil {
			return err
		}
		if err := x.stream.SetRow(cell, Values(r)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", x.next, err)
		}
		x.next++
	}
	return nil
}

func (x *XLSXWriter) Close() error {
	defer x.file.Close()
	if err := x.stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if err := x.file.SaveAs(x.path); err != nil {
		return fmt.Errorf("failed to save %s: %w", x.path, err)
	}
	return nil
}
