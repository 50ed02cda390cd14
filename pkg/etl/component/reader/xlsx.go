package reader

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// XLSXReader reads the first sheet of a workbook. Its first row is the header.
type XLSXReader struct{}

func (XLSXReader) Format() model.RawFormat { return model.RawXLSX }

func (XLSXReader) Read(ctx context.Context, r io.Reader) (model.Document, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, exception.NewEtlError("reader", exception.KindUnsupportedInput, "malformed workbook", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Warnf("Reader: failed to close workbook: %v", cerr)
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return model.TabularDocument{Table: model.NewTable()}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, exception.NewEtlErrorf("reader", exception.KindUnsupportedInput, "failed to read sheet %q", sheets[0], err)
	}
	return model.TabularDocument{Table: buildTable(rows)}, nil
}
