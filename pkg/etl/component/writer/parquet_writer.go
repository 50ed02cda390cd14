// Package writer exports job output tables to object storage.
package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/schema"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/configbinder"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/valueconv"
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// OutputBaseDir is the object prefix every export is written under.
	OutputBaseDir string `yaml:"output_base_dir"`
	// CompressionType is SNAPPY, GZIP or NONE.
	CompressionType string `yaml:"compression_type"`
}

// ParquetWriter writes a table as one Parquet object, partitioned Hive-style by export date.
type ParquetWriter struct {
	name   string
	config ParquetWriterConfig
	codec  parquet.CompressionCodec
	store  storage.StorageExecutor
	now    func() time.Time
}

// Export describes a written object.
type Export struct {
	Bucket     string `json:"bucket"`
	ObjectName string `json:"object_name"`
	RowCount   int    `json:"row_count"`
	Bytes      int    `json:"bytes"`
}

// NewParquetWriter creates a ParquetWriter from loosely typed properties.
func NewParquetWriter(name string, properties map[string]interface{}, store storage.StorageExecutor) (*ParquetWriter, error) {
	var cfg ParquetWriterConfig
	if err := configbinder.BindProperties(properties, &cfg); err != nil {
		return nil, exception.NewEtlErrorf("writer", exception.KindValidation, "failed to decode ParquetWriter properties for %s", name, err)
	}
	if cfg.OutputBaseDir == "" {
		return nil, exception.NewEtlErrorf("writer", exception.KindValidation, "ParquetWriter '%s' requires 'output_base_dir' property", name)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	codec, err := getCompressionCodec(cfg.CompressionType)
	if err != nil {
		return nil, exception.NewEtlError("writer", exception.KindValidation, err.Error(), err)
	}
	return &ParquetWriter{name: name, config: cfg, codec: codec, store: store, now: time.Now}, nil
}

// Write encodes table and uploads it to bucket under OutputBaseDir/prefix/dt=YYYY-MM-DD/.
// An empty bucket selects the storage default.
func (w *ParquetWriter) Write(ctx context.Context, bucket, prefix, jobID string, table *model.Table) (*Export, error) {
	if table == nil {
		table = model.NewTable()
	}
	fields := parquetFields(table)
	if len(fields) == 0 {
		return nil, exception.NewEtlErrorf("writer", exception.KindValidation, "output of job %s has no columns to export", jobID)
	}
	schemaJSON, err := jsonSchema(fields)
	if err != nil {
		return nil, exception.NewEtlError("writer", exception.KindInternal, "failed to build Parquet schema", err)
	}

	buf := new(bytes.Buffer)
	pw, err := writer.NewJSONWriterFromWriter(schemaJSON, buf, 4)
	if err != nil {
		return nil, exception.NewEtlErrorf("writer", exception.KindInternal, "failed to create Parquet writer in '%s'", w.name, err)
	}
	pw.CompressionType = w.codec

	var multiErr error
	for i, row := range table.Rows {
		rec, err := json.Marshal(record(row, fields))
		if err != nil {
			multiErr = multierror.Append(multiErr, fmt.Errorf("row %d: %w", i, err))
			break
		}
		if err := pw.Write(string(rec)); err != nil {
			multiErr = multierror.Append(multiErr, fmt.Errorf("row %d: %w", i, err))
			break
		}
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				multiErr = multierror.Append(multiErr, fmt.Errorf("parquet writer panicked during WriteStop: %v", r))
				logger.Errorf("ParquetWriter '%s': Recovered from panic during WriteStop: %v", w.name, r)
			}
		}()
		if err := pw.WriteStop(); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}()
	if multiErr != nil {
		return nil, exception.NewEtlErrorf("writer", exception.KindInternal, "failed to encode output of job %s", jobID, multiErr)
	}

	now := w.now().UTC()
	objectName := path.Join(w.config.OutputBaseDir, strings.Trim(prefix, "/"),
		"dt="+now.Format("2006-01-02"),
		fmt.Sprintf("%s_%s.parquet", jobID, now.Format("20060102150405")))
	size := buf.Len()

	logger.Debugf("ParquetWriter '%s': Uploading %d bytes to %s/%s", w.name, size, bucket, objectName)
	if err := w.store.Upload(ctx, bucket, objectName, buf, "application/octet-stream"); err != nil {
		return nil, exception.NewEtlErrorf("writer", exception.KindInternal, "failed to upload Parquet file %s", objectName, err)
	}
	logger.Infof("ParquetWriter '%s': Exported %d rows of job '%s' to %s", w.name, table.Len(), jobID, objectName)
	return &Export{Bucket: bucket, ObjectName: objectName, RowCount: table.Len(), Bytes: size}, nil
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

type parquetField struct {
	column string
	name   string
	kind   string
}

// parquetFields maps columns to Parquet-safe field names typed from the column values.
func parquetFields(table *model.Table) []parquetField {
	used := map[string]int{}
	fields := make([]parquetField, 0, len(table.Columns))
	for _, col := range table.Columns {
		name := fieldName(col)
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		used[name]++
		fields = append(fields, parquetField{column: col, name: name, kind: schema.InferColumnType(table.Column(col))})
	}
	return fields
}

func fieldName(column string) string {
	var b strings.Builder
	for _, r := range column {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" || !(name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z') {
		name = "c_" + name
	}
	return name
}

func jsonSchema(fields []parquetField) (string, error) {
	type node struct {
		Tag    string
		Fields []node `json:",omitempty"`
	}
	root := node{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, f := range fields {
		inName := strings.ToUpper(f.name[:1]) + f.name[1:]
		var physical string
		switch f.kind {
		case schema.TypeInteger:
			physical = "type=INT64"
		case schema.TypeFloat:
			physical = "type=DOUBLE"
		case schema.TypeBoolean:
			physical = "type=BOOLEAN"
		default:
			physical = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		root.Fields = append(root.Fields, node{
			Tag: fmt.Sprintf("name=%s, inname=%s, %s, repetitiontype=OPTIONAL", f.name, inName, physical),
		})
	}
	raw, err := json.Marshal(root)
	return string(raw), err
}

func record(row model.Row, fields []parquetField) map[string]interface{} {
	rec := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		v := row[f.column]
		if valueconv.IsNull(v) {
			rec[f.name] = nil
			continue
		}
		switch f.kind {
		case schema.TypeInteger:
			rec[f.name], _ = valueconv.ParseInt(v)
		case schema.TypeFloat:
			rec[f.name], _ = valueconv.ParseFloat(v)
		case schema.TypeBoolean:
			rec[f.name], _ = valueconv.ParseBool(v)
		default:
			rec[f.name] = valueconv.Format(v)
		}
	}
	return rec
}
