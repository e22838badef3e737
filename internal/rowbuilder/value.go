package rowbuilder

import "strconv"

// Fixed column names present in every table.
const (
	TimestampColumn = "greptime_timestamp"
	ValueColumn     = "greptime_value"
)

// DataType is the logical type of a column.
type DataType uint8

const (
	TypeTimestampMillisecond DataType = iota + 1
	TypeFloat64
	TypeInt64
	TypeString
	TypeBool
)

func (t DataType) String() string {
	switch t {
	case TypeTimestampMillisecond:
		return "timestamp_millisecond"
	case TypeFloat64:
		return "float64"
	case TypeInt64:
		return "int64"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	}
	return "DataType(" + strconv.Itoa(int(t)) + ")"
}

// SemanticType is the role the storage layer gives a column.
type SemanticType uint8

const (
	SemanticTag SemanticType = iota + 1
	SemanticField
	SemanticTimestamp
)

func (s SemanticType) String() string {
	switch s {
	case SemanticTag:
		return "tag"
	case SemanticField:
		return "field"
	case SemanticTimestamp:
		return "timestamp"
	}
	return "SemanticType(" + strconv.Itoa(int(s)) + ")"
}

// ColumnSchema describes one column of a batch.
type ColumnSchema struct {
	Name         string
	DataType     DataType
	SemanticType SemanticType
}

// Value is one cell. A nil Value is null.
type Value interface {
	DataType() DataType
	isCell()
}

type (
	TimestampMillisecondValue int64
	F64Value                  float64
	I64Value                  int64
	StringValue               string
	BoolValue                 bool
)

func (TimestampMillisecondValue) DataType() DataType { return TypeTimestampMillisecond }
func (F64Value) DataType() DataType                  { return TypeFloat64 }
func (I64Value) DataType() DataType                  { return TypeInt64 }
func (StringValue) DataType() DataType               { return TypeString }
func (BoolValue) DataType() DataType                 { return TypeBool }

func (TimestampMillisecondValue) isCell() {}
func (F64Value) isCell()                  {}
func (I64Value) isCell()                  {}
func (StringValue) isCell()               {}
func (BoolValue) isCell()                 {}

// Row is one positional row; len(Values) equals the schema length after a
// flush.
type Row struct {
	Values []Value
}
