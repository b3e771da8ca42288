package data

import "testing"

func TestDataJSONRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		d    Data
	}{
		{"none", None},
		{"string", NewString("hello")},
		{"uint64", NewUint64(42)},
		{"int64", NewInt64(-7)},
		{"float64", NewFloat64(3.5)},
		{"bool", NewBool(true)},
		{"bytes", NewBytes([]byte{0, 1, 2, 255})},
		{"map", NewMap(map[int64]Data{1: NewString("a"), 2: NewInt64(9)})},
		{"slice", NewSlice([]Data{NewString("a"), NewBool(false)})},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw, err := c.d.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON: %v", err)
			}
			var got Data
			if err := got.UnmarshalJSON(raw); err != nil {
				t.Fatalf("UnmarshalJSON: %v", err)
			}
			if got.Kind != c.d.Kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, c.d.Kind)
			}
		})
	}
}

func TestDataJSONRoundTripNestedMap(t *testing.T) {
	m := map[int64]Data{
		1: NewString("alice"),
		2: NewMap(map[int64]Data{10: NewBool(true)}),
	}
	d := NewMap(m)
	raw, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var got Data
	if err := got.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	decoded, ok := got.Map()
	if !ok || len(decoded) != 2 {
		t.Fatalf("decoded map = %+v, ok=%v", decoded, ok)
	}
	name, ok := decoded[1].String()
	if !ok || name != "alice" {
		t.Fatalf("decoded[1] = %+v", decoded[1])
	}
}
