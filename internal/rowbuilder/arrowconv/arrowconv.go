// Package arrowconv converts flushed row batches into Apache Arrow records so
// they can be handed to columnar consumers without another copy per cell.
package arrowconv

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"tsingest/internal/rowbuilder"
)

// Metadata keys written by Schema.
const (
	SemanticTypeKey = "semantic_type"
	TableNameKey    = "table_name"
)

var (
	ErrRowWidth     = errors.New("row width does not match schema")
	ErrCellType     = errors.New("cell type does not match column")
	ErrUnsupported  = errors.New("unsupported column type")
	timestampMillis = &arrow.TimestampType{Unit: arrow.Millisecond}
)

// ArrowType maps a column type to its Arrow type.
func ArrowType(t rowbuilder.DataType) (arrow.DataType, error) {
	switch t {
	case rowbuilder.TypeTimestampMillisecond:
		return timestampMillis, nil
	case rowbuilder.TypeFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case rowbuilder.TypeInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case rowbuilder.TypeString:
		return arrow.BinaryTypes.String, nil
	case rowbuilder.TypeBool:
		return arrow.FixedWidthTypes.Boolean, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
}

// Schema builds the Arrow schema of a batch. Each field carries its semantic
// role in metadata; the schema carries the table name.
func Schema(table string, cols []rowbuilder.ColumnSchema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		typ, err := ArrowType(c.DataType)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		fields[i] = arrow.Field{
			Name:     c.Name,
			Type:     typ,
			Nullable: c.SemanticType == rowbuilder.SemanticTag,
			Metadata: arrow.NewMetadata([]string{SemanticTypeKey}, []string{c.SemanticType.String()}),
		}
	}
	md := arrow.NewMetadata([]string{TableNameKey}, []string{table})
	return arrow.NewSchema(fields, &md), nil
}

// Record converts req into an Arrow record. The caller must Release it.
func Record(mem memory.Allocator, req rowbuilder.RowInsertRequest) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	schema, err := Schema(req.TableName, req.Rows.Schema)
	if err != nil {
		return nil, err
	}

	cols := req.Rows.Schema
	rows := req.Rows.Rows
	for ri, r := range rows {
		if len(r.Values) != len(cols) {
			return nil, fmt.Errorf("table %q: %w: row %d has %d values, schema has %d",
				req.TableName, ErrRowWidth, ri, len(r.Values), len(cols))
		}
	}

	arrs := make([]arrow.Array, 0, len(cols))
	release := func() {
		for _, a := range arrs {
			a.Release()
		}
	}

	for ci, c := range cols {
		arr, err := buildColumn(mem, c, ci, rows)
		if err != nil {
			release()
			return nil, fmt.Errorf("table %q column %q: %w", req.TableName, c.Name, err)
		}
		arrs = append(arrs, arr)
	}

	rec := array.NewRecord(schema, arrs, int64(len(rows)))
	release()
	return rec, nil
}

func buildColumn(mem memory.Allocator, c rowbuilder.ColumnSchema, ci int, rows []rowbuilder.Row) (arrow.Array, error) {
	mismatch := func(ri int, v rowbuilder.Value) error {
		return fmt.Errorf("%w: row %d holds %s, column is %s", ErrCellType, ri, v.DataType(), c.DataType)
	}

	switch c.DataType {
	case rowbuilder.TypeTimestampMillisecond:
		b := array.NewTimestampBuilder(mem, timestampMillis)
		defer b.Release()
		for ri := range rows {
			v := rows[ri].Values[ci]
			switch x := v.(type) {
			case nil:
				b.AppendNull()
			case rowbuilder.TimestampMillisecondValue:
				b.Append(arrow.Timestamp(x))
			default:
				return nil, mismatch(ri, v)
			}
		}
		return b.NewArray(), nil

	case rowbuilder.TypeFloat64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for ri := range rows {
			v := rows[ri].Values[ci]
			switch x := v.(type) {
			case nil:
				b.AppendNull()
			case rowbuilder.F64Value:
				b.Append(float64(x))
			default:
				return nil, mismatch(ri, v)
			}
		}
		return b.NewArray(), nil

	case rowbuilder.TypeInt64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for ri := range rows {
			v := rows[ri].Values[ci]
			switch x := v.(type) {
			case nil:
				b.AppendNull()
			case rowbuilder.I64Value:
				b.Append(int64(x))
			default:
				return nil, mismatch(ri, v)
			}
		}
		return b.NewArray(), nil

	case rowbuilder.TypeString:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for ri := range rows {
			v := rows[ri].Values[ci]
			switch x := v.(type) {
			case nil:
				b.AppendNull()
			case rowbuilder.StringValue:
				b.Append(string(x))
			default:
				return nil, mismatch(ri, v)
			}
		}
		return b.NewArray(), nil

	case rowbuilder.TypeBool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		for ri := range rows {
			v := rows[ri].Values[ci]
			switch x := v.(type) {
			case nil:
				b.AppendNull()
			case rowbuilder.BoolValue:
				b.Append(bool(x))
			default:
				return nil, mismatch(ri, v)
			}
		}
		return b.NewArray(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, c.DataType)
}
