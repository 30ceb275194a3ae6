package rpc

import "fmt"

// Params are the positional parameters of one call.
type Params []Value

// Len returns the number of parameters.
func (p Params) Len() int { return len(p) }

// Expect fails unless exactly n parameters were given.
func (p Params) Expect(n int) error {
	if len(p) != n {
		return fmt.Errorf("%w: expected %d parameters, got %d", ErrMalformedRequest, n, len(p))
	}
	return nil
}

// Value returns parameter i.
func (p Params) Value(i int) (Value, error) {
	if i < 0 || i >= len(p) {
		return nil, fmt.Errorf("%w: missing parameter %d", ErrMalformedRequest, i+1)
	}
	return p[i], nil
}

// String returns parameter i, which must be text.
func (p Params) String(i int) (string, error) {
	v, err := p.Value(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(String)
	if !ok {
		return "", fmt.Errorf("%w: parameter %d must be a string, got %s", ErrMalformedRequest, i+1, Kind(v))
	}
	return string(s), nil
}

// Strings returns every parameter as text.
func (p Params) Strings() ([]string, error) {
	out := make([]string, len(p))
	for i := range p {
		s, err := p.String(i)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
