// Package records defines the semi-structured record value that flows through
// the processor chain before it is turned into a row.
//
// A Value is a closed tagged union: Null, Bool, Int, Float, String, Bytes,
// Array and Object. Objects are plain Go maps, so a stage that receives an
// Object owns it and may mutate it in place before handing it on.
package records

import (
	"sort"
	"strconv"
)

// Kind enumerates the variants of Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "boolean",
	KindInt:    "integer",
	KindFloat:  "float",
	KindString: "string",
	KindBytes:  "bytes",
	KindArray:  "array",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is implemented only by the types in this package.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	Null   struct{}
	Bool   bool
	Int    int64
	Float  float64
	String string
	Bytes  []byte
	Array  []Value
	Object map[string]Value
)

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (Bytes) Kind() Kind  { return KindBytes }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (Null) isValue()   {}
func (Bool) isValue()   {}
func (Int) isValue()    {}
func (Float) isValue()  {}
func (String) isValue() {}
func (Bytes) isValue()  {}
func (Array) isValue()  {}
func (Object) isValue() {}

// KindOf reports the kind of v, treating a nil interface as Null.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// AsObject returns v as an Object when it is one.
func AsObject(v Value) (Object, bool) {
	o, ok := v.(Object)
	return o, ok
}

// Keys returns the object's keys in ascending order. Map iteration order is
// random; callers that need deterministic output go through Keys.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Scalar renders a scalar value as a string. ok is false for Null, Array and
// Object, which have no single-string rendering.
func Scalar(v Value) (s string, ok bool) {
	switch t := v.(type) {
	case String:
		return string(t), true
	case Bytes:
		return string(t), true
	case Bool:
		return strconv.FormatBool(bool(t)), true
	case Int:
		return strconv.FormatInt(int64(t), 10), true
	case Float:
		return strconv.FormatFloat(float64(t), 'g', -1, 64), true
	default:
		return "", false
	}
}
