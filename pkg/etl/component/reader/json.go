package reader

import (
	"context"
	"io"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

// JSONReader reads any JSON value into a HierarchicalDocument.
type JSONReader struct{}

func (JSONReader) Format() model.RawFormat { return model.RawJSON }

func (JSONReader) Read(ctx context.Context, r io.Reader) (model.Document, error) {
	data, err := readUTF8(r)
	if err != nil {
		return nil, err
	}
	v, err := model.DecodeJSONValue(data)
	if err != nil {
		return nil, exception.NewEtlError("reader", exception.KindUnsupportedInput, "malformed JSON", err)
	}
	return model.HierarchicalDocument{Value: v}, nil
}
