package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is an RPC parameter or result.
//
// The set of implementations is closed: Int, Float, Bool, String, Struct,
// Array and Nil.
type Value interface {
	rpcValue()
}

// Int is an integer value.
type Int int64

// Float is a floating-point value. It always encodes with a fractional
// part or exponent so that clients decode it as a float.
type Float float64

// Bool is a boolean value.
type Bool bool

// String is a text value.
type String string

// Struct is a keyed record.
type Struct map[string]Value

// Array is an ordered sequence.
type Array []Value

// Nil is the empty result.
type Nil struct{}

func (Int) rpcValue()    {}
func (Float) rpcValue()  {}
func (Bool) rpcValue()   {}
func (String) rpcValue() {}
func (Struct) rpcValue() {}
func (Array) rpcValue()  {}
func (Nil) rpcValue()    {}

// MarshalJSON encodes f so that it is never mistaken for an integer.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// MarshalJSON encodes Nil as null.
func (Nil) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Timestamp renders t (in UTC) as the structured time record used for
// Time values and message timestamps.
func Timestamp(t time.Time) Struct {
	t = t.UTC()
	return Struct{
		"year":   Int(t.Year()),
		"month":  Int(t.Month()),
		"day":    Int(t.Day()),
		"hour":   Int(t.Hour()),
		"minute": Int(t.Minute()),
		"second": Int(t.Second()),
		"usec":   Int(t.Nanosecond() / int(time.Microsecond)),
	}
}

// Strings builds an Array of String values.
func Strings(items []string) Array {
	out := make(Array, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return out
}

// DecodeParams decodes a JSON array into values.
// Numbers written with a fraction or exponent become Float, others Int.
func DecodeParams(raw json.RawMessage) ([]Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: params must be an array: %v", ErrMalformedRequest, err)
	}

	out := make([]Value, len(items))
	for i, item := range items {
		v, err := FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// FromAny converts a value produced by encoding/json (with UseNumber) into a Value.
func FromAny(item any) (Value, error) {
	switch x := item.(type) {
	case nil:
		return Nil{}, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return fromNumber(x)
	case float64:
		return Float(x), nil
	case []any:
		arr := make(Array, len(x))
		for i, el := range x {
			v, err := FromAny(el)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil
	case map[string]any:
		st := make(Struct, len(x))
		for k, el := range x {
			v, err := FromAny(el)
			if err != nil {
				return nil, err
			}
			st[k] = v
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: unsupported JSON type %T", ErrMalformedRequest, item)
	}
}

func fromNumber(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad number %q", ErrMalformedRequest, s)
	}
	return Float(f), nil
}

// Kind names the variant of v for error messages.
func Kind(v Value) string {
	switch v.(type) {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Struct:
		return "struct"
	case Array:
		return "array"
	case Nil, nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", v)
	}
}
