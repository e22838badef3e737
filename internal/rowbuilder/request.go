package rowbuilder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/zeebo/xxh3"
)

// ErrSchemaConflict is returned by Merge when two batches for the same table
// declare one column with different types or roles.
var ErrSchemaConflict = errors.New("schema conflict")

// ContextOpt carries the destination overrides for a group of batches.
type ContextOpt struct {
	Schema        string
	PhysicalTable string
}

// Rows is a schema plus positional rows.
type Rows struct {
	Schema []ColumnSchema
	Rows   []Row
}

// RowInsertRequest is one table's batch.
type RowInsertRequest struct {
	TableName string
	Rows      Rows
}

// ContextEntry is the batches bound for one destination.
type ContextEntry struct {
	Opt      ContextOpt
	Requests []RowInsertRequest
}

// ContextReq is the flushed output of an ingestion cycle, grouped by
// destination. The caller owns it.
type ContextReq struct {
	entries []ContextEntry
	index   map[ContextOpt]int
}

// Entries returns the destinations in insertion order.
func (r *ContextReq) Entries() []ContextEntry { return r.entries }

// Len returns the number of destinations.
func (r *ContextReq) Len() int { return len(r.entries) }

// Requests returns the batches for opt, or nil.
func (r *ContextReq) Requests(opt ContextOpt) []RowInsertRequest {
	if i, ok := r.index[opt]; ok {
		return r.entries[i].Requests
	}
	return nil
}

// TotalRows counts rows across every batch.
func (r *ContextReq) TotalRows() int {
	n := 0
	for _, e := range r.entries {
		for _, q := range e.Requests {
			n += len(q.Rows.Rows)
		}
	}
	return n
}

// AddRows appends batches for opt without reconciling tables.
func (r *ContextReq) AddRows(opt ContextOpt, reqs ...RowInsertRequest) {
	if r.index == nil {
		r.index = make(map[ContextOpt]int)
	}
	i, ok := r.index[opt]
	if !ok {
		i = len(r.entries)
		r.index[opt] = i
		r.entries = append(r.entries, ContextEntry{Opt: opt})
	}
	r.entries[i].Requests = append(r.entries[i].Requests, reqs...)
}

// Merge moves other's batches into r. A batch for a table r already holds
// under the same destination is folded into it: columns are matched by name,
// r's columns keep their positions, unseen columns are appended, and rows are
// concatenated with r's rows first. other must not be used afterwards.
func (r *ContextReq) Merge(other ContextReq) error {
	for _, e := range other.entries {
		for _, q := range e.Requests {
			if err := r.mergeOne(e.Opt, q); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *ContextReq) mergeOne(opt ContextOpt, q RowInsertRequest) error {
	i, ok := r.index[opt]
	if !ok {
		r.AddRows(opt, q)
		return nil
	}
	reqs := r.entries[i].Requests
	for j := range reqs {
		if reqs[j].TableName == q.TableName {
			merged, err := mergeRows(reqs[j].Rows, q.Rows)
			if err != nil {
				return fmt.Errorf("merge table %q: %w", q.TableName, err)
			}
			reqs[j].Rows = merged
			return nil
		}
	}
	r.entries[i].Requests = append(reqs, q)
	return nil
}

func mergeRows(dst, src Rows) (Rows, error) {
	if slices.Equal(dst.Schema, src.Schema) {
		dst.Rows = append(dst.Rows, src.Rows...)
		return dst, nil
	}

	pos := make(map[string]int, len(dst.Schema)+len(src.Schema))
	for i, c := range dst.Schema {
		pos[c.Name] = i
	}
	remap := make([]int, len(src.Schema))
	schema := dst.Schema
	for i, c := range src.Schema {
		if j, ok := pos[c.Name]; ok {
			if d := schema[j]; d.DataType != c.DataType || d.SemanticType != c.SemanticType {
				return Rows{}, fmt.Errorf("%w: column %q is %s/%s and %s/%s",
					ErrSchemaConflict, c.Name, d.DataType, d.SemanticType, c.DataType, c.SemanticType)
			}
			remap[i] = j
			continue
		}
		pos[c.Name] = len(schema)
		remap[i] = len(schema)
		schema = append(schema, c)
	}

	width := len(schema)
	rows := dst.Rows
	for i := range rows {
		if n := len(rows[i].Values); n < width {
			rows[i].Values = append(rows[i].Values, make([]Value, width-n)...)
		}
	}
	for _, row := range src.Rows {
		values := make([]Value, width)
		for k, v := range row.Values {
			values[remap[k]] = v
		}
		rows = append(rows, Row{Values: values})
	}
	return Rows{Schema: schema, Rows: rows}, nil
}

// Fingerprint hashes column names, types and roles in order. It is a cache
// key for consumers that track table schemas; equal fingerprints do not prove
// equal schemas.
func Fingerprint(schema []ColumnSchema) uint64 {
	buf := make([]byte, 0, 16*len(schema))
	for _, c := range schema {
		buf = binary.AppendUvarint(buf, uint64(len(c.Name)))
		buf = append(buf, c.Name...)
		buf = append(buf, byte(c.DataType), byte(c.SemanticType))
	}
	return xxh3.Hash(buf)
}
