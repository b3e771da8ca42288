package data

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// wireData is Data's JSON-serializable shadow, used to persist the
// Session Holder's map<i64,Data> blob (spec §4.H) and any other place
// Data needs to cross a byte boundary. Only Serializable variants are
// expected; Route/Redirect round-trip too so a caller that accidentally
// tries is not met with a silent data loss, but session/cache code
// never persists them (see Data.Serializable).
type wireData struct {
	Kind  Kind           `json:"k"`
	U64   uint64         `json:"u,omitempty"`
	I64   int64          `json:"i,omitempty"`
	F64   float64        `json:"f,omitempty"`
	Bool  bool           `json:"b,omitempty"`
	Str   string         `json:"s,omitempty"`
	Time  time.Time      `json:"t,omitempty"`
	JSON  any            `json:"j,omitempty"`
	Bytes string         `json:"y,omitempty"` // base64, since sonic maps []byte to base64 itself but we keep it explicit for clarity
	Slice []Data         `json:"a,omitempty"`
	Map   map[int64]Data `json:"m,omitempty"`
	Route *Route         `json:"rt,omitempty"`
	Redir *Redirect      `json:"rd,omitempty"`
}

// MarshalJSON implements json.Marshaler (and sonic's compatible
// interface) so Data can be stored as a session/cache blob.
func (d Data) MarshalJSON() ([]byte, error) {
	w := wireData{Kind: d.Kind}
	switch d.Kind {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		w.U64 = d.u64
	case KindInt8, KindInt16, KindInt32, KindInt64:
		w.I64 = d.i64
	case KindFloat32, KindFloat64:
		w.F64 = d.f64
	case KindBool:
		w.Bool = d.b
	case KindString:
		w.Str = d.str
	case KindTime:
		w.Time = d.t
	case KindJSON:
		w.JSON = d.json
	case KindBytes:
		w.Bytes = base64.StdEncoding.EncodeToString(d.byt)
	case KindSlice:
		w.Slice = d.arr
	case KindMap:
		w.Map = d.m
	case KindRoute:
		w.Route = &d.rt
	case KindRedirect:
		w.Redir = &d.rd
	}
	return sonic.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Data) UnmarshalJSON(b []byte) error {
	var w wireData
	if err := sonic.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Kind {
	case KindNone:
		*d = None
	case KindUint8, KindUint16, KindUint32, KindUint64:
		*d = Data{Kind: w.Kind, u64: w.U64}
	case KindInt8, KindInt16, KindInt32, KindInt64:
		*d = Data{Kind: w.Kind, i64: w.I64}
	case KindFloat32, KindFloat64:
		*d = Data{Kind: w.Kind, f64: w.F64}
	case KindBool:
		*d = Data{Kind: w.Kind, b: w.Bool}
	case KindString:
		*d = Data{Kind: w.Kind, str: w.Str}
	case KindTime:
		*d = Data{Kind: w.Kind, t: w.Time}
	case KindJSON:
		*d = Data{Kind: w.Kind, json: w.JSON}
	case KindBytes:
		raw, err := base64.StdEncoding.DecodeString(w.Bytes)
		if err != nil {
			return err
		}
		*d = Data{Kind: w.Kind, byt: raw}
	case KindSlice:
		*d = Data{Kind: w.Kind, arr: w.Slice}
	case KindMap:
		*d = Data{Kind: w.Kind, m: w.Map}
	case KindRoute:
		if w.Route != nil {
			*d = Data{Kind: w.Kind, rt: *w.Route}
		}
	case KindRedirect:
		if w.Redir != nil {
			*d = Data{Kind: w.Kind, rd: *w.Redir}
		}
	default:
		return fmt.Errorf("data: unknown Kind %d in session/cache blob", w.Kind)
	}
	return nil
}
