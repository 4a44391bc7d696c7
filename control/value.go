// Package control discovers and mediates access to the tunable parameters
// and triggerable actions of a computation model.
package control

import "fmt"

// Kind identifies the type of value that a control holds.
type Kind int

// The kinds of control values.
const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindString
	KindAction
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "Float"
	case KindInt:
		return "Int"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindAction:
		return "Action"
	}

	panic(fmt.Sprintf("unknown kind %d", int(k)))
}

// Bounds limits the range of a numeric control. Both ends are inclusive.
type Bounds struct {
	Min, Max float64
}

// An EditableValue is a typed, constrained description of one tunable
// control. A model declares an EditableValue explicitly when it needs
// bounds or a category; bare convention-named fields are synthesized into
// EditableValues during discovery.
type EditableValue struct {
	label    string
	kind     Kind
	current  any
	bounds   *Bounds
	category string
	action   func() error
}

// NewFloat creates a Float control with the given default.
func NewFloat(label string, def float64) *EditableValue {
	return &EditableValue{label: label, kind: KindFloat, current: def}
}

// NewInt creates an Int control with the given default.
func NewInt(label string, def int64) *EditableValue {
	return &EditableValue{label: label, kind: KindInt, current: def}
}

// NewBool creates a Bool control with the given default.
func NewBool(label string, def bool) *EditableValue {
	return &EditableValue{label: label, kind: KindBool, current: def}
}

// NewString creates a String control with the given default.
func NewString(label string, def string) *EditableValue {
	return &EditableValue{label: label, kind: KindString, current: def}
}

// NewAction creates an Action control bound to a zero-argument callable.
func NewAction(label string, fn func() error) *EditableValue {
	return &EditableValue{label: label, kind: KindAction, action: fn}
}

// WithBounds sets the allowed range of a numeric control. It panics if the
// control is not numeric or if the default lies outside the range, as both
// are programming errors at model-construction time.
func (v *EditableValue) WithBounds(min, max float64) *EditableValue {
	if v.kind != KindFloat && v.kind != KindInt {
		panic("control: bounds are only allowed on Float and Int controls")
	}

	v.bounds = &Bounds{Min: min, Max: max}

	if out, _ := outOfBounds(v.bounds, numeric(v.current)); out {
		panic(fmt.Sprintf(
			"control: default of %q lies outside [%v, %v]",
			v.label, min, max))
	}

	return v
}

// WithCategory assigns the control to a display category.
func (v *EditableValue) WithCategory(category string) *EditableValue {
	v.category = category
	return v
}

// Label returns the display name of the control.
func (v *EditableValue) Label() string {
	return v.label
}

// Kind returns the kind of the control.
func (v *EditableValue) Kind() Kind {
	return v.kind
}

// Value returns the current value of the control.
func (v *EditableValue) Value() any {
	return v.current
}

// Bounds returns the allowed range, or nil if the control is unbounded.
func (v *EditableValue) Bounds() *Bounds {
	return v.bounds
}

// Category returns the display category of the control, if any.
func (v *EditableValue) Category() string {
	return v.category
}

func numeric(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}

	return 0
}

func outOfBounds(b *Bounds, v float64) (bool, *Bounds) {
	if b == nil {
		return false, nil
	}

	return v < b.Min || v > b.Max, b
}
