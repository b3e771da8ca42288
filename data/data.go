// Package data defines the wire- and cache-level value types shared by
// every other package in this module: the tagged Data union, Request,
// Response and Route records (spec §3).
package data

import (
	"fmt"
	"time"
)

// Kind identifies which variant of Data is populated.
type Kind uint8

const (
	KindNone Kind = iota
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindTime
	KindJSON
	KindBytes
	KindSlice
	KindMap
	KindRoute
	KindRedirect
)

// Data is a tagged sum type, the value type stored in the cache and
// passed as template variables. Only one of the typed fields is valid,
// selected by Kind. Route and Redirect are not serializable (see
// Serializable) because they reference transient routing state, not
// persisted content.
type Data struct {
	Kind Kind

	u64  uint64
	i64  int64
	f64  float64
	b    bool
	str  string
	t    time.Time
	json any
	byt  []byte
	arr  []Data
	m    map[int64]Data
	rt   Route
	rd   Redirect
}

// None is the zero-value Data, representing the absence of a value.
var None = Data{Kind: KindNone}

func NewUint8(v uint8) Data   { return Data{Kind: KindUint8, u64: uint64(v)} }
func NewUint16(v uint16) Data { return Data{Kind: KindUint16, u64: uint64(v)} }
func NewUint32(v uint32) Data { return Data{Kind: KindUint32, u64: uint64(v)} }
func NewUint64(v uint64) Data { return Data{Kind: KindUint64, u64: v} }
func NewInt8(v int8) Data     { return Data{Kind: KindInt8, i64: int64(v)} }
func NewInt16(v int16) Data   { return Data{Kind: KindInt16, i64: int64(v)} }
func NewInt32(v int32) Data   { return Data{Kind: KindInt32, i64: int64(v)} }
func NewInt64(v int64) Data   { return Data{Kind: KindInt64, i64: v} }
func NewFloat32(v float32) Data {
	return Data{Kind: KindFloat32, f64: float64(v)}
}
func NewFloat64(v float64) Data    { return Data{Kind: KindFloat64, f64: v} }
func NewBool(v bool) Data          { return Data{Kind: KindBool, b: v} }
func NewString(v string) Data      { return Data{Kind: KindString, str: v} }
func NewTime(v time.Time) Data     { return Data{Kind: KindTime, t: v.UTC()} }
func NewJSON(v any) Data           { return Data{Kind: KindJSON, json: v} }
func NewBytes(v []byte) Data       { return Data{Kind: KindBytes, byt: v} }
func NewSlice(v []Data) Data       { return Data{Kind: KindSlice, arr: v} }
func NewMap(v map[int64]Data) Data { return Data{Kind: KindMap, m: v} }
func NewRoute(v Route) Data        { return Data{Kind: KindRoute, rt: v} }
func NewRedirect(v Redirect) Data  { return Data{Kind: KindRedirect, rd: v} }

// Serializable reports whether this value may be persisted (cached,
// written to a session blob). Route and Redirect carry transient routing
// state and are excluded, per spec §3.
func (d Data) Serializable() bool {
	return d.Kind != KindRoute && d.Kind != KindRedirect
}

func (d Data) IsNone() bool { return d.Kind == KindNone }

func (d Data) Uint64() (uint64, bool) {
	switch d.Kind {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return d.u64, true
	}
	return 0, false
}

func (d Data) Int64() (int64, bool) {
	switch d.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return d.i64, true
	}
	return 0, false
}

func (d Data) Float64() (float64, bool) {
	switch d.Kind {
	case KindFloat32, KindFloat64:
		return d.f64, true
	}
	return 0, false
}

func (d Data) Bool() (bool, bool) {
	if d.Kind != KindBool {
		return false, false
	}
	return d.b, true
}

func (d Data) String() (string, bool) {
	if d.Kind != KindString {
		return "", false
	}
	return d.str, true
}

func (d Data) Time() (time.Time, bool) {
	if d.Kind != KindTime {
		return time.Time{}, false
	}
	return d.t, true
}

func (d Data) JSON() (any, bool) {
	if d.Kind != KindJSON {
		return nil, false
	}
	return d.json, true
}

func (d Data) Bytes() ([]byte, bool) {
	if d.Kind != KindBytes {
		return nil, false
	}
	return d.byt, true
}

func (d Data) Slice() ([]Data, bool) {
	if d.Kind != KindSlice {
		return nil, false
	}
	return d.arr, true
}

func (d Data) Map() (map[int64]Data, bool) {
	if d.Kind != KindMap {
		return nil, false
	}
	return d.m, true
}

func (d Data) Route() (Route, bool) {
	if d.Kind != KindRoute {
		return Route{}, false
	}
	return d.rt, true
}

func (d Data) RedirectValue() (Redirect, bool) {
	if d.Kind != KindRedirect {
		return Redirect{}, false
	}
	return d.rd, true
}

// GoString renders Data for debugging/logging.
func (d Data) GoString() string {
	switch d.Kind {
	case KindNone:
		return "Data(None)"
	case KindString:
		return fmt.Sprintf("Data(String=%q)", d.str)
	case KindBytes:
		return fmt.Sprintf("Data(Bytes len=%d)", len(d.byt))
	default:
		return fmt.Sprintf("Data(Kind=%d)", d.Kind)
	}
}
