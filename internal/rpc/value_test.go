package rpc

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeParams_Kinds(t *testing.T) {
	params, err := DecodeParams(json.RawMessage(`["ccd0", 5, 5.0, 1e3, true, null, [1, "a"], {"k": 2.5}]`))
	if err != nil {
		t.Fatalf("DecodeParams() error = %v", err)
	}

	want := []string{"string", "int", "float", "float", "bool", "nil", "array", "struct"}
	if len(params) != len(want) {
		t.Fatalf("len = %d, want %d", len(params), len(want))
	}
	for i, k := range want {
		if got := Kind(params[i]); got != k {
			t.Errorf("param %d kind = %s, want %s", i, got, k)
		}
	}
	if params[1] != Int(5) {
		t.Errorf("param 1 = %#v, want Int(5)", params[1])
	}
	if params[2] != Float(5) {
		t.Errorf("param 2 = %#v, want Float(5)", params[2])
	}
	st := params[7].(Struct)
	if st["k"] != Float(2.5) {
		t.Errorf("struct field = %#v", st["k"])
	}
}

func TestDecodeParams_Empty(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		params, err := DecodeParams(json.RawMessage(raw))
		if err != nil || len(params) != 0 {
			t.Errorf("DecodeParams(%q) = %v, %v", raw, params, err)
		}
	}
}

func TestDecodeParams_NotArray(t *testing.T) {
	_, err := DecodeParams(json.RawMessage(`{"method": "x"}`))
	if !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("error = %v, want ErrMalformedRequest", err)
	}
}

func TestDecodeParams_HugeIntegerBecomesFloat(t *testing.T) {
	params, err := DecodeParams(json.RawMessage(`[123456789012345678901234567890]`))
	if err != nil {
		t.Fatalf("DecodeParams() error = %v", err)
	}
	if Kind(params[0]) != "float" {
		t.Errorf("kind = %s, want float", Kind(params[0]))
	}
}

func TestFloat_MarshalKeepsFraction(t *testing.T) {
	tests := []struct {
		in   Value
		want string
	}{
		{Float(5), "5.0"},
		{Float(3.14), "3.14"},
		{Float(-0.5), "-0.5"},
		{Float(1e21), "1e+21"},
		{Int(5), "5"},
		{Nil{}, "null"},
		{Array{Int(1), Float(2), String("x")}, `[1,2.0,"x"]`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.in)
		if err != nil {
			t.Fatalf("Marshal(%#v) error = %v", tt.in, err)
		}
		if string(b) != tt.want {
			t.Errorf("Marshal(%#v) = %s, want %s", tt.in, b, tt.want)
		}
	}
}

func TestFloat_RoundTripStaysFloat(t *testing.T) {
	b, _ := json.Marshal(Array{Float(5)})
	params, err := DecodeParams(b)
	if err != nil {
		t.Fatalf("DecodeParams() error = %v", err)
	}
	if params[0] != Float(5) {
		t.Errorf("round trip = %#v, want Float(5)", params[0])
	}
}

func TestTimestamp(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	ts := time.Date(2026, 6, 21, 1, 2, 3, 456789000, loc)

	got := Timestamp(ts)
	want := Struct{
		"year": Int(2026), "month": Int(6), "day": Int(20),
		"hour": Int(23), "minute": Int(2), "second": Int(3), "usec": Int(456789),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %#v, want %#v", k, got[k], v)
		}
	}
}

func TestParams_Accessors(t *testing.T) {
	p := Params{String("ccd0"), Int(3)}

	if err := p.Expect(2); err != nil {
		t.Errorf("Expect(2) error = %v", err)
	}
	if err := p.Expect(3); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("Expect(3) error = %v", err)
	}
	if s, err := p.String(0); err != nil || s != "ccd0" {
		t.Errorf("String(0) = %q, %v", s, err)
	}
	if _, err := p.String(1); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("String(1) error = %v", err)
	}
	if _, err := p.Value(5); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("Value(5) error = %v", err)
	}
	if _, err := p.Strings(); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("Strings() error = %v", err)
	}
}
