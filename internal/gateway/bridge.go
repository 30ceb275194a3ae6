package gateway

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/nerrad567/obsgate/internal/device"
	"github.com/nerrad567/obsgate/internal/rpc"
)

// Change operators of a value command.
const (
	opSet       = "="
	opIncrement = "+="
)

// EncodeValue renders a snapshot as an RPC value: integers as Int, floats
// as Float, booleans as Bool, times as a timestamp struct and everything
// else as its display text.
func EncodeValue(v *device.TypedValue) rpc.Value {
	switch p := v.Payload().(type) {
	case device.IntPayload:
		return rpc.Int(p)
	case device.FloatPayload:
		return rpc.Float(p)
	case device.BoolPayload:
		return rpc.Bool(p)
	case device.TimePayload:
		return rpc.Timestamp(time.Time(p))
	default:
		return rpc.String(v.DisplayText())
	}
}

// valueCommand builds the change command for one value: "name=value" or
// "name+=value". raw is set for types the device must reinterpret itself.
func valueCommand(v *device.TypedValue, op string, external rpc.Value) (text string, raw bool, err error) {
	arg, raw, err := coerce(v.Type(), external)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", v.Name(), err)
	}
	return v.Name() + op + arg, raw, nil
}

// coerce converts an external value to command text for typ.
//
// Numeric types take a native number, or text parsed leniently: the
// longest numeric prefix counts and text without one becomes 0. String
// takes text only. Every other type is passed through as raw text.
func coerce(typ device.BaseType, external rpc.Value) (string, bool, error) {
	switch {
	case typ.Integral():
		switch x := external.(type) {
		case rpc.Int:
			return strconv.FormatInt(int64(x), 10), false, nil
		case rpc.Float:
			return strconv.FormatInt(truncInt(float64(x)), 10), false, nil
		case rpc.String:
			return strconv.FormatInt(LenientInt(string(x)), 10), false, nil
		}
	case typ.Floating():
		bits := 64
		if typ == device.TypeFloat {
			bits = 32
		}
		switch x := external.(type) {
		case rpc.Float:
			return formatFloat(float64(x), bits), false, nil
		case rpc.Int:
			return formatFloat(float64(x), bits), false, nil
		case rpc.String:
			return formatFloat(LenientFloat(string(x)), bits), false, nil
		}
	case typ == device.TypeString:
		if s, ok := external.(rpc.String); ok {
			return string(s), false, nil
		}
	default:
		if text, ok := rawText(external); ok {
			return text, true, nil
		}
	}
	return "", false, fmt.Errorf("%w: cannot use %s for a %s value", rpc.ErrMalformedRequest, rpc.Kind(external), typ)
}

// truncInt drops the fraction of f, clamping to the int64 range. NaN is 0.
func truncInt(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}

func formatFloat(f float64, bits int) string {
	if bits == 32 {
		f = float64(float32(f))
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

func rawText(v rpc.Value) (string, bool) {
	switch x := v.(type) {
	case rpc.String:
		return string(x), true
	case rpc.Int:
		return strconv.FormatInt(int64(x), 10), true
	case rpc.Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64), true
	case rpc.Bool:
		return strconv.FormatBool(bool(x)), true
	default:
		return "", false
	}
}

// LenientInt parses the leading decimal integer of s, after optional
// blanks and sign. Text without one yields 0; out-of-range values clamp.
func LenientInt(s string) int64 {
	i := skipBlanks(s, 0)
	start := i
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i == digits {
		return 0
	}
	// Only range errors are possible here, and ParseInt then returns the clamped bound.
	n, _ := strconv.ParseInt(s[start:i], 10, 64)
	return n
}

// LenientFloat parses the longest leading decimal number of s (sign,
// digits, fraction, exponent). Text without one yields 0.
func LenientFloat(s string) float64 {
	i := skipBlanks(s, 0)
	start := i
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	mantissa := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		mantissa++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			mantissa++
		}
	}
	if mantissa == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > exp {
			i = j
		}
	}
	// On a range error ParseFloat returns ±Inf or 0, as strtod does.
	f, _ := strconv.ParseFloat(s[start:i], 64)
	return f
}

func skipBlanks(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r' || s[i] == '\v' || s[i] == '\f') {
		i++
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
