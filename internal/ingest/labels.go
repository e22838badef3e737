package ingest

import (
	"bytes"
	"fmt"

	"tsingest/internal/processor"
	"tsingest/internal/rowbuilder"
	"tsingest/pkg/records"
)

// Routing labels. They select the destination and never become tag columns.
const (
	MetricNameLabel    = "__name__"
	DatabaseLabel      = "__database__"
	PhysicalTableLabel = "__physical_table__"
)

var (
	metricNameBytes    = []byte(MetricNameLabel)
	databaseBytes      = []byte(DatabaseLabel)
	physicalTableBytes = []byte(PhysicalTableLabel)
)

// route is what the routing labels of one series resolve to.
type route struct {
	ctx   rowbuilder.PromCtx
	table string
}

// splitRaw separates routing labels from tag labels without decoding the tag
// labels; the table builder decodes those itself. tags is reused.
func (in *Ingestor) splitRaw(labels []rowbuilder.Label, tags []rowbuilder.Label) (route, []rowbuilder.Label, error) {
	r := in.defaultRoute()
	tags = tags[:0]
	for _, l := range labels {
		var dst *string
		switch {
		case bytes.Equal(l.Name, metricNameBytes):
			dst = &r.table
		case bytes.Equal(l.Name, databaseBytes):
			dst = &r.ctx.Schema
		case bytes.Equal(l.Name, physicalTableBytes):
			dst = &r.ctx.PhysicalTable
		default:
			tags = append(tags, l)
			continue
		}
		s, err := in.Options.Mode.Decode(l.Value)
		if err != nil {
			return r, tags, &rowbuilder.DecodeError{Label: string(l.Name), Part: "value", Err: err}
		}
		if s != "" {
			*dst = s
		}
	}
	return r, tags, nil
}

// toObject decodes every label into a record for the processor chain. A
// repeated name keeps the last value.
func (in *Ingestor) toObject(labels []rowbuilder.Label) (records.Object, error) {
	obj := make(records.Object, len(labels))
	for _, l := range labels {
		name, err := in.Options.Mode.Decode(l.Name)
		if err != nil {
			return nil, &rowbuilder.DecodeError{Label: string(bytes.ToValidUTF8(l.Name, []byte("�"))), Part: "name", Err: err}
		}
		value, err := in.Options.Mode.Decode(l.Value)
		if err != nil {
			return nil, &rowbuilder.DecodeError{Label: name, Part: "value", Err: err}
		}
		obj[name] = records.String(value)
	}
	return obj, nil
}

// fromObject turns a processed record back into a route and tag labels, in
// ascending key order. Null values are dropped; arrays and objects cannot be
// tag values. Bytes values are decoded under the configured mode.
func (in *Ingestor) fromObject(v records.Value) (route, []rowbuilder.Label, error) {
	r := in.defaultRoute()
	obj, ok := records.AsObject(v)
	if !ok {
		return r, nil, processor.ValueTypeError("ingest", "", "object", v)
	}
	tags := make([]rowbuilder.Label, 0, len(obj))
	for _, k := range obj.Keys() {
		val := obj[k]
		if records.KindOf(val) == records.KindNull {
			continue
		}
		s, err := in.scalar(k, val)
		if err != nil {
			return r, nil, err
		}
		switch k {
		case MetricNameLabel:
			r.table = s
		case DatabaseLabel:
			if s != "" {
				r.ctx.Schema = s
			}
		case PhysicalTableLabel:
			if s != "" {
				r.ctx.PhysicalTable = s
			}
		default:
			tags = append(tags, rowbuilder.Label{Name: []byte(k), Value: []byte(s)})
		}
	}
	return r, tags, nil
}

func (in *Ingestor) scalar(key string, v records.Value) (string, error) {
	if b, ok := v.(records.Bytes); ok {
		s, err := in.Options.Mode.Decode(b)
		if err != nil {
			return "", &rowbuilder.DecodeError{Label: key, Part: "value", Err: err}
		}
		return s, nil
	}
	s, ok := records.Scalar(v)
	if !ok {
		return "", processor.ValueTypeError("ingest", key, "scalar", v)
	}
	return s, nil
}

func (in *Ingestor) defaultRoute() route {
	return route{ctx: rowbuilder.PromCtx{
		Schema:        in.Options.DefaultSchema,
		PhysicalTable: in.Options.DefaultPhysicalTable,
	}}
}

// errNoMetricName marks a series without a usable __name__.
var errNoMetricName = fmt.Errorf("%w: series has no %s label", processor.ErrValueType, MetricNameLabel)
