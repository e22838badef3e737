// Package rowbuilder turns labelled samples into column-aligned row batches.
//
// A TableBuilder accumulates rows for one table and grows its schema as new
// label names appear: every unseen label becomes a string tag column appended
// after the fixed timestamp and value columns. Tables routes label sets to
// builders by destination and table name, and drains them into a ContextReq
// ready for the storage layer.
//
// Nothing in this package is safe for concurrent use. Each ingestion cycle
// owns its Tables exclusively.
package rowbuilder

// TableBuilder accumulates rows for a single table.
//
// Column indexes are stable for the lifetime of the builder: a tag column,
// once added, keeps its position until the builder is flushed.
type TableBuilder struct {
	colIndexes map[string]int
	schema     []ColumnSchema
	rows       []Row

	scratch []decodedLabel
}

// NewTableBuilder returns a builder with the timestamp and value columns in
// place. cols and rows are capacity hints.
func NewTableBuilder(cols, rows int) *TableBuilder {
	b := &TableBuilder{}
	b.reset(cols, rows)
	return b
}

func (b *TableBuilder) reset(cols, rows int) {
	if cols < 2 {
		cols = 2
	}
	b.colIndexes = make(map[string]int, cols)
	b.schema = make([]ColumnSchema, 0, cols)
	b.rows = make([]Row, 0, rows)

	b.colIndexes[TimestampColumn] = 0
	b.schema = append(b.schema, ColumnSchema{
		Name:         TimestampColumn,
		DataType:     TypeTimestampMillisecond,
		SemanticType: SemanticTimestamp,
	})
	b.colIndexes[ValueColumn] = 1
	b.schema = append(b.schema, ColumnSchema{
		Name:         ValueColumn,
		DataType:     TypeFloat64,
		SemanticType: SemanticField,
	})
}

// AddLabelsAndSamples appends one row per sample, tagged with labels.
//
// Every label is decoded under mode before the builder is touched; on a
// decode error the builder is unchanged and a *DecodeError is returned. With
// no samples the call may still grow the schema but adds no rows.
//
// Label names are not interpreted: callers strip routing labels such as
// __name__ beforehand.
func (b *TableBuilder) AddLabelsAndSamples(labels []Label, samples []Sample, mode ValidationMode) error {
	decoded, err := decodeLabels(labels, mode, b.scratch)
	b.scratch = decoded
	if err != nil {
		return err
	}
	b.addDecoded(decoded, samples)
	return nil
}

func (b *TableBuilder) addDecoded(labels []decodedLabel, samples []Sample) {
	row := make([]Value, len(b.schema))
	for _, l := range labels {
		if idx, ok := b.colIndexes[l.name]; ok {
			row[idx] = StringValue(l.value)
			continue
		}
		b.colIndexes[l.name] = len(b.schema)
		b.schema = append(b.schema, ColumnSchema{
			Name:         l.name,
			DataType:     TypeString,
			SemanticType: SemanticTag,
		})
		row = append(row, StringValue(l.value))
	}

	if len(samples) == 1 {
		row[0] = TimestampMillisecondValue(samples[0].Timestamp)
		row[1] = F64Value(samples[0].Value)
		b.rows = append(b.rows, Row{Values: row})
		return
	}
	for _, s := range samples {
		values := make([]Value, len(row))
		copy(values, row)
		values[0] = TimestampMillisecondValue(s.Timestamp)
		values[1] = F64Value(s.Value)
		b.rows = append(b.rows, Row{Values: values})
	}
}

// Tags returns the tag column names in column order.
func (b *TableBuilder) Tags() []string {
	out := make([]string, 0, len(b.schema))
	for _, c := range b.schema {
		if c.SemanticType == SemanticTag {
			out = append(out, c.Name)
		}
	}
	return out
}

// Schema returns a copy of the current schema.
func (b *TableBuilder) Schema() []ColumnSchema {
	return append([]ColumnSchema(nil), b.schema...)
}

// Len returns the number of buffered rows.
func (b *TableBuilder) Len() int { return len(b.rows) }

// AsRowInsertRequest flushes the builder. Every row is padded with nulls to
// the final schema width. The builder is reset, so a second call without new
// rows returns a request with no rows.
func (b *TableBuilder) AsRowInsertRequest(table string) RowInsertRequest {
	schema, rows := b.schema, b.rows
	width := len(schema)
	for i := range rows {
		if n := len(rows[i].Values); n < width {
			rows[i].Values = append(rows[i].Values, make([]Value, width-n)...)
		}
	}
	b.reset(width, 0)
	return RowInsertRequest{
		TableName: table,
		Rows:      Rows{Schema: schema, Rows: rows},
	}
}
