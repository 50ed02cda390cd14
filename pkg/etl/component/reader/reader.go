// Package reader decodes uploaded files into job documents.
package reader

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/valueconv"
)

// ErrInvalidEncoding is wrapped when text input is not valid UTF-8.
var ErrInvalidEncoding = exception.NewEtlError("reader", exception.KindUnsupportedInput, "input is not valid UTF-8", nil)

// Reader decodes the bytes of one raw format.
type Reader interface {
	Format() model.RawFormat
	Read(ctx context.Context, r io.Reader) (model.Document, error)
}

// Registry maps raw formats to readers.
type Registry struct {
	mu      sync.RWMutex
	readers map[model.RawFormat]Reader
}

// NewRegistry creates a Registry holding the CSV, JSON and XLSX readers.
func NewRegistry() *Registry {
	reg := &Registry{readers: make(map[model.RawFormat]Reader)}
	reg.Register(CSVReader{})
	reg.Register(JSONReader{})
	reg.Register(XLSXReader{})
	return reg
}

// Register adds or replaces the reader for r.Format().
func (reg *Registry) Register(r Reader) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.readers[r.Format()] = r
}

// Supports reports whether a reader is registered for format.
func (reg *Registry) Supports(format model.RawFormat) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	_, ok := reg.readers[format]
	return ok
}

// Decode parses data with the reader registered for format.
func (reg *Registry) Decode(ctx context.Context, format model.RawFormat, data []byte) (model.Document, error) {
	reg.mu.RLock()
	r, ok := reg.readers[format]
	reg.mu.RUnlock()
	if !ok {
		return nil, exception.NewEtlErrorf("reader", exception.KindUnsupportedInput, "no reader for format %q", format)
	}
	doc, err := r.Read(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	logger.Debugf("Reader: decoded %d bytes of %s.", len(data), format)
	return doc, nil
}

// FormatFromFilename maps a file extension to its raw format.
func FormatFromFilename(name string) (model.RawFormat, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return model.RawCSV, true
	case ".json":
		return model.RawJSON, true
	case ".xlsx", ".xls":
		return model.RawXLSX, true
	}
	return "", false
}

func readUTF8(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, exception.NewEtlError("reader", exception.KindInternal, "failed to read input", err)
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), nil
}

// buildTable turns string records into a table. The first record is the header. Empty cells
// become nulls and each column is typed as a whole: integer, float, boolean or string.
func buildTable(records [][]string) *model.Table {
	if len(records) == 0 {
		return model.NewTable()
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			header[i] = "column_" + strconv.Itoa(i+1)
		}
	}
	table := model.NewTable(header...)

	cells := make([][]interface{}, len(header))
	for _, rec := range records[1:] {
		for i := range header {
			var v interface{}
			if i < len(rec) && strings.TrimSpace(rec[i]) != "" {
				v = rec[i]
			}
			cells[i] = append(cells[i], v)
		}
	}
	for i := range header {
		cells[i] = typeColumn(cells[i])
	}
	for r := 0; r < len(records)-1; r++ {
		row := make(model.Row, len(header))
		for i, name := range header {
			row[name] = cells[i][r]
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func typeColumn(values []interface{}) []interface{} {
	parsers := []func(interface{}) (interface{}, bool){
		func(v interface{}) (interface{}, bool) { return valueconv.ParseInt(v) },
		func(v interface{}) (interface{}, bool) { return valueconv.ParseFloat(v) },
		func(v interface{}) (interface{}, bool) { return valueconv.ParseBool(v) },
	}
	for _, parse := range parsers {
		out := make([]interface{}, len(values))
		ok := true
		for i, v := range values {
			if v == nil {
				continue
			}
			parsed, good := parse(v)
			if !good {
				ok = false
				break
			}
			out[i] = parsed
		}
		if ok {
			return out
		}
	}
	return values
}
