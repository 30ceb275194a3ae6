package gateway

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/nerrad567/obsgate/internal/device"
	"github.com/nerrad567/obsgate/internal/rpc"
)

func mustValue(t *testing.T, name string, typ device.BaseType, p device.Payload) *device.TypedValue {
	t.Helper()
	v, err := device.NewTypedValue(name, typ, 0, p)
	if err != nil {
		t.Fatalf("NewTypedValue(%s) error = %v", name, err)
	}
	return v
}

// ─── Lenient Parsing ────────────────────────────────────────────────────────

func TestLenientInt(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"42", 42},
		{"  -7", -7},
		{"+3", 3},
		{"12abc", 12},
		{"3.9", 3},
		{"abc", 0},
		{"", 0},
		{"-", 0},
		{"99999999999999999999", math.MaxInt64},
		{"-99999999999999999999", math.MinInt64},
	}
	for _, tt := range tests {
		if got := LenientInt(tt.in); got != tt.want {
			t.Errorf("LenientInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLenientFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"2.5", 2.5},
		{" -0.25", -0.25},
		{".5", 0.5},
		{"5.", 5},
		{"1e3", 1000},
		{"1e", 1},
		{"1e+x", 1},
		{"2.5s", 2.5},
		{"nan", 0},
		{"", 0},
		{".", 0},
	}
	for _, tt := range tests {
		if got := LenientFloat(tt.in); got != tt.want {
			t.Errorf("LenientFloat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ─── Value Commands ─────────────────────────────────────────────────────────

func TestValueCommand(t *testing.T) {
	tests := []struct {
		name     string
		typ      device.BaseType
		payload  device.Payload
		op       string
		external rpc.Value
		want     string
		raw      bool
	}{
		{"int from int", device.TypeInteger, device.IntPayload(0), opSet, rpc.Int(5), "exposure=5", false},
		{"int from float truncates", device.TypeInteger, device.IntPayload(0), opSet, rpc.Float(5.9), "exposure=5", false},
		{"int from huge float clamps", device.TypeLongInt, device.IntPayload(0), opSet, rpc.Float(1e300), "exposure=9223372036854775807", false},
		{"int from tiny float clamps", device.TypeLongInt, device.IntPayload(0), opSet, rpc.Float(-1e300), "exposure=-9223372036854775808", false},
		{"int from infinity clamps", device.TypeInteger, device.IntPayload(0), opSet, rpc.Float(math.Inf(1)), "exposure=9223372036854775807", false},
		{"int from NaN is zero", device.TypeInteger, device.IntPayload(0), opSet, rpc.Float(math.NaN()), "exposure=0", false},
		{"int from text", device.TypeLongInt, device.IntPayload(0), opIncrement, rpc.String("10 steps"), "exposure+=10", false},
		{"int from junk text", device.TypeInteger, device.IntPayload(0), opSet, rpc.String("abc"), "exposure=0", false},
		{"double from int", device.TypeDouble, device.FloatPayload(0), opSet, rpc.Int(2), "exposure=2", false},
		{"double from text", device.TypeDouble, device.FloatPayload(0), opSet, rpc.String("0.125"), "exposure=0.125", false},
		{"float narrows to 32 bits", device.TypeFloat, device.FloatPayload(0), opSet, rpc.Float(0.1), "exposure=0.1", false},
		{"string", device.TypeString, device.StringPayload(""), opSet, rpc.String("M31"), "exposure=M31", false},
		{"bool is raw", device.TypeBool, device.BoolPayload(false), opSet, rpc.Bool(true), "exposure=true", true},
		{"selection is raw", device.TypeSelection, device.SelectionPayload{Labels: []string{"L", "R"}}, opSet, rpc.String("R"), "exposure=R", true},
		{"time is raw", device.TypeTime, device.TimePayload(time.Time{}), opSet, rpc.Int(1792357200), "exposure=1792357200", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := mustValue(t, "exposure", tt.typ, tt.payload)
			text, raw, err := valueCommand(v, tt.op, tt.external)
			if err != nil {
				t.Fatalf("valueCommand() error = %v", err)
			}
			if text != tt.want || raw != tt.raw {
				t.Errorf("valueCommand() = (%q, %v), want (%q, %v)", text, raw, tt.want, tt.raw)
			}
		})
	}
}

func TestValueCommand_RejectsWrongKind(t *testing.T) {
	tests := []struct {
		name     string
		typ      device.BaseType
		payload  device.Payload
		external rpc.Value
	}{
		{"int from bool", device.TypeInteger, device.IntPayload(0), rpc.Bool(true)},
		{"double from struct", device.TypeDouble, device.FloatPayload(0), rpc.Struct{}},
		{"string from int", device.TypeString, device.StringPayload(""), rpc.Int(3)},
		{"bool from array", device.TypeBool, device.BoolPayload(false), rpc.Array{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := mustValue(t, "x", tt.typ, tt.payload)
			if _, _, err := valueCommand(v, opSet, tt.external); !errors.Is(err, rpc.ErrMalformedRequest) {
				t.Errorf("valueCommand() error = %v, want ErrMalformedRequest", err)
			}
		})
	}
}

// ─── Encoding ───────────────────────────────────────────────────────────────

func TestEncodeValue(t *testing.T) {
	at := time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)

	if got := EncodeValue(mustValue(t, "n", device.TypeInteger, device.IntPayload(7))); got != rpc.Int(7) {
		t.Errorf("integer = %#v", got)
	}
	if got := EncodeValue(mustValue(t, "f", device.TypeDouble, device.FloatPayload(1.5))); got != rpc.Float(1.5) {
		t.Errorf("double = %#v", got)
	}
	if got := EncodeValue(mustValue(t, "b", device.TypeBool, device.BoolPayload(true))); got != rpc.Bool(true) {
		t.Errorf("bool = %#v", got)
	}
	if got := EncodeValue(mustValue(t, "s", device.TypeString, device.StringPayload("M31"))); got != rpc.String("M31") {
		t.Errorf("string = %#v", got)
	}
	sel := device.SelectionPayload{Index: 1, Labels: []string{"open", "closed"}}
	if got := EncodeValue(mustValue(t, "dome", device.TypeSelection, sel)); got != rpc.String("closed") {
		t.Errorf("selection = %#v", got)
	}

	ts, ok := EncodeValue(mustValue(t, "t", device.TypeTime, device.TimePayload(at))).(rpc.Struct)
	if !ok {
		t.Fatal("time should encode as a struct")
	}
	if ts["year"] != rpc.Int(2026) || ts["hour"] != rpc.Int(21) {
		t.Errorf("time = %#v", ts)
	}
}
