package device

import (
	"fmt"
	"strconv"
	"time"
)

// BaseType is the wire type of a device value.
type BaseType string

// BaseType constants.
const (
	TypeInteger   BaseType = "integer"
	TypeLongInt   BaseType = "longint"
	TypeFloat     BaseType = "float"
	TypeDouble    BaseType = "double"
	TypeBool      BaseType = "bool"
	TypeString    BaseType = "string"
	TypeTime      BaseType = "time"
	TypeSelection BaseType = "selection"
)

// AllBaseTypes returns all valid base types.
func AllBaseTypes() []BaseType {
	return []BaseType{
		TypeInteger, TypeLongInt, TypeFloat, TypeDouble,
		TypeBool, TypeString, TypeTime, TypeSelection,
	}
}

// Valid reports whether t is a known base type.
func (t BaseType) Valid() bool {
	for _, known := range AllBaseTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Integral reports whether values of this type are carried as integers.
func (t BaseType) Integral() bool {
	return t == TypeInteger || t == TypeLongInt
}

// Floating reports whether values of this type are carried as floats.
func (t BaseType) Floating() bool {
	return t == TypeFloat || t == TypeDouble
}

// Payload is the current content of a TypedValue.
//
// The set of implementations is closed: IntPayload, FloatPayload,
// BoolPayload, StringPayload, TimePayload and SelectionPayload.
type Payload interface {
	payload()
}

// IntPayload carries Integer and LongInt values.
type IntPayload int64

// FloatPayload carries Float and Double values.
type FloatPayload float64

// BoolPayload carries Bool values.
type BoolPayload bool

// StringPayload carries String values.
type StringPayload string

// TimePayload carries Time values.
type TimePayload time.Time

// SelectionPayload carries a Selection value: the chosen index into Labels.
type SelectionPayload struct {
	Index  int
	Labels []string
}

func (IntPayload) payload()       {}
func (FloatPayload) payload()     {}
func (BoolPayload) payload()      {}
func (StringPayload) payload()    {}
func (TimePayload) payload()      {}
func (SelectionPayload) payload() {}

// TypedValue is an immutable snapshot of one device attribute.
//
// Connections replace a TypedValue wholesale on update; a snapshot handed
// out to a reader never changes underneath it.
type TypedValue struct {
	name    string
	typ     BaseType
	flags   uint32
	payload Payload
}

// NewTypedValue builds a snapshot, checking that the payload kind matches the base type.
func NewTypedValue(name string, typ BaseType, flags uint32, p Payload) (*TypedValue, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty value name", ErrInvalidValue)
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown base type %q", ErrInvalidValue, typ)
	}
	if !payloadMatches(typ, p) {
		return nil, fmt.Errorf("%w: %s payload %T for %q", ErrInvalidValue, typ, p, name)
	}
	if sel, ok := p.(SelectionPayload); ok {
		sel.Labels = append([]string(nil), sel.Labels...)
		p = sel
	}
	return &TypedValue{name: name, typ: typ, flags: flags, payload: p}, nil
}

func payloadMatches(typ BaseType, p Payload) bool {
	switch p.(type) {
	case IntPayload:
		return typ.Integral()
	case FloatPayload:
		return typ.Floating()
	case BoolPayload:
		return typ == TypeBool
	case StringPayload:
		return typ == TypeString
	case TimePayload:
		return typ == TypeTime
	case SelectionPayload:
		return typ == TypeSelection
	default:
		return false
	}
}

// Name returns the value name.
func (v *TypedValue) Name() string { return v.name }

// Type returns the immutable base type.
func (v *TypedValue) Type() BaseType { return v.typ }

// Flags returns the device-defined flag word.
func (v *TypedValue) Flags() uint32 { return v.flags }

// Payload returns the current content.
func (v *TypedValue) Payload() Payload { return v.payload }

// DisplayText renders the value the way devices print it.
func (v *TypedValue) DisplayText() string {
	switch p := v.payload.(type) {
	case IntPayload:
		return strconv.FormatInt(int64(p), 10)
	case FloatPayload:
		return strconv.FormatFloat(float64(p), 'g', -1, 64)
	case BoolPayload:
		if p {
			return "true"
		}
		return "false"
	case StringPayload:
		return string(p)
	case TimePayload:
		return time.Time(p).UTC().Format(time.RFC3339Nano)
	case SelectionPayload:
		if p.Index >= 0 && p.Index < len(p.Labels) {
			return p.Labels[p.Index]
		}
		return strconv.Itoa(p.Index)
	default:
		return ""
	}
}
