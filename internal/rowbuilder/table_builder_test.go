package rowbuilder

import (
	"errors"
	"reflect"
	"testing"
)

func labels(kv ...string) []Label {
	out := make([]Label, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Label{Name: []byte(kv[i]), Value: []byte(kv[i+1])})
	}
	return out
}

func schemaNames(s []ColumnSchema) []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

func TestTableBuilder_FixedColumns(t *testing.T) {
	b := NewTableBuilder(0, 0)
	s := b.Schema()
	want := []ColumnSchema{
		{Name: TimestampColumn, DataType: TypeTimestampMillisecond, SemanticType: SemanticTimestamp},
		{Name: ValueColumn, DataType: TypeFloat64, SemanticType: SemanticField},
	}
	if !reflect.DeepEqual(s, want) {
		t.Fatalf("schema = %+v", s)
	}
	if len(b.Tags()) != 0 {
		t.Fatalf("tags = %v", b.Tags())
	}
}

/*
TestTableBuilder_GrowingSchema appends two label sets that share one tag and
differ in another, then checks the padded output row by row.
*/
func TestTableBuilder_GrowingSchema(t *testing.T) {
	b := NewTableBuilder(3, 2)
	if err := b.AddLabelsAndSamples(labels("tag0", "v0", "tag1", "v1"), []Sample{{Timestamp: 0, Value: 0}}, Strict); err != nil {
		t.Fatalf("append #1: %v", err)
	}
	if err := b.AddLabelsAndSamples(labels("tag0", "v0", "tag2", "v2"), []Sample{{Timestamp: 1, Value: 0.1}}, Strict); err != nil {
		t.Fatalf("append #2: %v", err)
	}
	if got := b.Tags(); !reflect.DeepEqual(got, []string{"tag0", "tag1", "tag2"}) {
		t.Fatalf("tags = %v", got)
	}

	req := b.AsRowInsertRequest("metric")
	if req.TableName != "metric" {
		t.Fatalf("table = %q", req.TableName)
	}
	wantNames := []string{TimestampColumn, ValueColumn, "tag0", "tag1", "tag2"}
	if got := schemaNames(req.Rows.Schema); !reflect.DeepEqual(got, wantNames) {
		t.Fatalf("schema = %v", got)
	}
	for _, c := range req.Rows.Schema[2:] {
		if c.DataType != TypeString || c.SemanticType != SemanticTag {
			t.Fatalf("tag column %+v", c)
		}
	}

	want := []Row{
		{Values: []Value{TimestampMillisecondValue(0), F64Value(0), StringValue("v0"), StringValue("v1"), nil}},
		{Values: []Value{TimestampMillisecondValue(1), F64Value(0.1), StringValue("v0"), nil, StringValue("v2")}},
	}
	if !reflect.DeepEqual(req.Rows.Rows, want) {
		t.Fatalf("rows = %+v\nwant %+v", req.Rows.Rows, want)
	}
}

func TestTableBuilder_StrictDecodeErrorLeavesStateIntact(t *testing.T) {
	b := NewTableBuilder(0, 0)
	if err := b.AddLabelsAndSamples(labels("host", "a"), []Sample{{Timestamp: 1, Value: 1}}, Strict); err != nil {
		t.Fatalf("append: %v", err)
	}

	bad := []Label{
		{Name: []byte("new_tag"), Value: []byte("ok")},
		{Name: []byte("host"), Value: []byte{'b', 0xff, 0xfe}},
	}
	err := b.AddLabelsAndSamples(bad, []Sample{{Timestamp: 2, Value: 2}}, Strict)
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Label != "host" || de.Part != "value" {
		t.Fatalf("decode error = %+v", de)
	}

	if b.Len() != 1 {
		t.Fatalf("rows = %d, want 1", b.Len())
	}
	if got := b.Tags(); !reflect.DeepEqual(got, []string{"host"}) {
		t.Fatalf("schema grew on failed call: %v", got)
	}
	req := b.AsRowInsertRequest("m")
	want := []Value{TimestampMillisecondValue(1), F64Value(1), StringValue("a")}
	if !reflect.DeepEqual(req.Rows.Rows[0].Values, want) {
		t.Fatalf("prior row changed: %+v", req.Rows.Rows[0].Values)
	}
}

func TestTableBuilder_InvalidName(t *testing.T) {
	b := NewTableBuilder(0, 0)
	err := b.AddLabelsAndSamples([]Label{{Name: []byte{0xc3}, Value: []byte("v")}}, []Sample{{}}, Strict)
	var de *DecodeError
	if !errors.As(err, &de) || de.Part != "name" || de.Label != "�" {
		t.Fatalf("err = %v", err)
	}
}

func TestTableBuilder_LossyAndUnchecked(t *testing.T) {
	raw := []Label{{Name: []byte("host"), Value: []byte{'a', 0xff, 'b'}}}

	b := NewTableBuilder(0, 0)
	if err := b.AddLabelsAndSamples(raw, []Sample{{Timestamp: 1}}, Lossy); err != nil {
		t.Fatalf("lossy: %v", err)
	}
	req := b.AsRowInsertRequest("m")
	if got := req.Rows.Rows[0].Values[2]; got != StringValue("a�b") {
		t.Fatalf("lossy value = %q", got)
	}

	b = NewTableBuilder(0, 0)
	if err := b.AddLabelsAndSamples(raw, []Sample{{Timestamp: 1}}, Unchecked); err != nil {
		t.Fatalf("unchecked: %v", err)
	}
	req = b.AsRowInsertRequest("m")
	if got := req.Rows.Rows[0].Values[2]; got != StringValue("a\xffb") {
		t.Fatalf("unchecked value = %q", got)
	}
}

func TestTableBuilder_MultipleSamplesAndNoSamples(t *testing.T) {
	b := NewTableBuilder(0, 0)
	samples := []Sample{{Timestamp: 10, Value: 1}, {Timestamp: 20, Value: 2}, {Timestamp: 30, Value: 3}}
	if err := b.AddLabelsAndSamples(labels("a", "x"), samples, Strict); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := b.AddLabelsAndSamples(labels("b", "y"), nil, Strict); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if b.Len() != 3 {
		t.Fatalf("rows = %d", b.Len())
	}
	if got := b.Tags(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("tags = %v", got)
	}

	req := b.AsRowInsertRequest("m")
	for i, row := range req.Rows.Rows {
		if row.Values[0] != TimestampMillisecondValue(samples[i].Timestamp) || row.Values[1] != F64Value(samples[i].Value) {
			t.Fatalf("row %d = %+v", i, row.Values)
		}
		if row.Values[2] != StringValue("x") || row.Values[3] != nil {
			t.Fatalf("row %d tags = %+v", i, row.Values)
		}
	}
	// Rows are independent copies.
	req.Rows.Rows[0].Values[2] = StringValue("changed")
	if req.Rows.Rows[1].Values[2] != StringValue("x") {
		t.Fatalf("rows share storage")
	}
}

/*
TestTableBuilder_WidthInvariant drives a builder with label sets of varying
shape and checks every flushed row has the final schema width.
*/
func TestTableBuilder_WidthInvariant(t *testing.T) {
	b := NewTableBuilder(0, 0)
	names := []string{"a", "b", "c", "d", "e"}
	for i := 0; i < 25; i++ {
		var ls []Label
		for j, n := range names {
			if (i+j)%3 == 0 {
				ls = append(ls, Label{Name: []byte(n), Value: []byte(n)})
			}
		}
		if err := b.AddLabelsAndSamples(ls, []Sample{{Timestamp: int64(i)}}, Strict); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	req := b.AsRowInsertRequest("m")
	width := len(req.Rows.Schema)
	for i, row := range req.Rows.Rows {
		if len(row.Values) != width {
			t.Fatalf("row %d width %d, want %d", i, len(row.Values), width)
		}
	}
}

func TestTableBuilder_ColumnOrderDeterministic(t *testing.T) {
	run := func() []string {
		b := NewTableBuilder(0, 0)
		_ = b.AddLabelsAndSamples(labels("z", "1", "m", "2"), []Sample{{}}, Strict)
		_ = b.AddLabelsAndSamples(labels("a", "1", "z", "3"), []Sample{{}}, Strict)
		_ = b.AddLabelsAndSamples(labels("q", "1"), []Sample{{}}, Strict)
		return b.Tags()
	}
	first := run()
	for i := 0; i < 10; i++ {
		if got := run(); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %v, want %v", i, got, first)
		}
	}
	if !reflect.DeepEqual(first, []string{"z", "m", "a", "q"}) {
		t.Fatalf("order = %v", first)
	}
}

func TestTableBuilder_FlushTwice(t *testing.T) {
	b := NewTableBuilder(0, 0)
	_ = b.AddLabelsAndSamples(labels("a", "1"), []Sample{{Timestamp: 1}}, Strict)
	first := b.AsRowInsertRequest("m")
	if len(first.Rows.Rows) != 1 {
		t.Fatalf("first flush rows = %d", len(first.Rows.Rows))
	}
	second := b.AsRowInsertRequest("m")
	if len(second.Rows.Rows) != 0 {
		t.Fatalf("second flush rows = %d", len(second.Rows.Rows))
	}
	if len(b.Tags()) != 0 {
		t.Fatalf("builder not reset: %v", b.Tags())
	}
}

func TestParseValidationMode(t *testing.T) {
	for in, want := range map[string]ValidationMode{"": Strict, "STRICT": Strict, "lossy": Lossy, " unchecked ": Unchecked} {
		got, err := ParseValidationMode(in)
		if err != nil || got != want {
			t.Errorf("ParseValidationMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseValidationMode("loose"); err == nil {
		t.Fatalf("expected error")
	}
}
