// Package storage implements the embedded relational time-series store:
// flows, flow attributes, typed time series, and their data points.
//
// Grounded on original_source/ts-storage/src/lib.rs and
// ts-storage/src/sqlite/db.rs (project uni-tue-kn/TCBee): same four
// tables, same type-tag encoding, same batched-insert contract,
// rendered with database/sql instead of the Rust sqlite crate.
package storage

import (
	"errors"
	"fmt"
)

// ValueType tags the single scalar type a time series carries for its
// lifetime. Encoding matches the storage schema's "type" column
// (0=int, 1=float, 2=bool, 3=string).
type ValueType int

const (
	TypeInt ValueType = iota
	TypeFloat
	TypeBool
	TypeString
)

func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

func (t ValueType) column() (string, error) {
	switch t {
	case TypeInt:
		return "value_integer", nil
	case TypeFloat:
		return "value_float", nil
	case TypeBool:
		return "value_boolean", nil
	case TypeString:
		return "value_text", nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
}

// Value is a typed scalar: exactly one of the fields is meaningful,
// selected by Type.
type Value struct {
	Type ValueType
	I    int64
	F    float64
	B    bool
	S    string
}

func IntValue(v int64) Value    { return Value{Type: TypeInt, I: v} }
func FloatValue(v float64) Value { return Value{Type: TypeFloat, F: v} }
func BoolValue(v bool) Value    { return Value{Type: TypeBool, B: v} }
func StringValue(v string) Value { return Value{Type: TypeString, S: v} }

// sameType reports whether two values share a declared type, regardless
// of the payload they carry.
func (v Value) sameType(o Value) bool { return v.Type == o.Type }

// FlowKey is the 5-tuple identifying a TCP flow. Addresses are stored as
// their string form (as the original schema does: "src TEXT").
type FlowKey struct {
	Src     string
	Dst     string
	SPort   int64
	DPort   int64
	L4Proto int64 // always 6 (TCP) in this system
}

// Flow is a persisted row in the flows table.
type Flow struct {
	ID  int64
	Key FlowKey
}

// FlowAttribute is a name/value pair attached to a flow.
type FlowAttribute struct {
	ID     int64
	FlowID int64
	Name   string
	Value  Value
}

// TimeSeries is a named, typed, per-flow stream of scalars.
type TimeSeries struct {
	ID     int64
	FlowID int64
	Name   string
	Type   ValueType
}

// DataPoint is one (timestamp, value) sample of a time series.
type DataPoint struct {
	Timestamp float64
	Value     Value
}

// Bounds describes the extent of a time series, or of all series of a
// flow combined. Y bounds are absent for boolean/string series.
type Bounds struct {
	XMin, XMax float64
	YMin, YMax *Value
}

var (
	ErrNotSetup      = errors.New("storage: database not set up")
	ErrFlowNotFound   = errors.New("storage: flow not found")
	ErrSeriesNotFound = errors.New("storage: time series not found")
	ErrTypeMismatch   = errors.New("storage: data point type does not match series type")
	ErrSeriesEmpty    = errors.New("storage: time series has no data points")
	ErrUnknownType    = errors.New("storage: unknown value type")
	ErrDuplicatePoint = errors.New("storage: duplicate (series, timestamp)")
)
