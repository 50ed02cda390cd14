package reader

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

// CSVReader reads comma separated files with a header row.
type CSVReader struct{}

func (CSVReader) Format() model.RawFormat { return model.RawCSV }

// Read returns a TabularDocument. Rows may have fewer fields than the header.
func (CSVReader) Read(ctx context.Context, r io.Reader) (model.Document, error) {
	data, err := readUTF8(r)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, exception.NewEtlError("reader", exception.KindUnsupportedInput, "malformed CSV", err)
	}
	return model.TabularDocument{Table: buildTable(records)}, nil
}
