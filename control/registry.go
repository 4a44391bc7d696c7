package control

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode"
)

// Errors reported by the registry.
var (
	ErrDuplicateControlName = errors.New("control: duplicate control name")
	ErrUnknownControl       = errors.New("control: unknown control")
	ErrTypeMismatch         = errors.New("control: type mismatch")
	ErrOutOfBounds          = errors.New("control: value out of bounds")
	ErrNotAnAction          = errors.New("control: not an action")
)

// Markers recognized during discovery. A field "ValueWindowsOpen" becomes
// the control "windows open"; a niladic method "ActionReset" becomes the
// action "reset".
const (
	valueMarker  = "Value"
	actionMarker = "Action"
)

// A ControlEntry binds an EditableValue to its concrete storage: either
// the value itself (explicit controls), a struct field on the model
// (convention-named controls), or a zero-argument callable (actions).
type ControlEntry struct {
	value  *EditableValue
	slot   reflect.Value
	action func() error
}

// Label returns the resolved name of the control.
func (e *ControlEntry) Label() string {
	return e.value.label
}

// Kind returns the kind of the control.
func (e *ControlEntry) Kind() Kind {
	return e.value.kind
}

// Value returns the current value of the control, read through to the
// bound storage location.
func (e *ControlEntry) Value() any {
	if e.slot.IsValid() {
		return normalize(e.slot)
	}

	return e.value.current
}

// Descriptor is the plain representation of a control that crosses the
// transport boundary. It carries only numbers, strings and booleans.
type Descriptor struct {
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	Value    any      `json:"value"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Descriptor returns the transport representation of the entry.
func (e *ControlEntry) Descriptor() Descriptor {
	d := Descriptor{
		Label:    e.value.label,
		Kind:     e.value.kind.String(),
		Value:    e.Value(),
		Category: e.value.category,
	}

	if b := e.value.bounds; b != nil {
		min, max := b.Min, b.Max
		d.Min, d.Max = &min, &max
	}

	return d
}

// A Registry holds the controls discovered on one model. Discovery runs
// exactly once, at construction; the resulting entry list is fixed
// afterwards. The registry itself is not synchronized: the engine
// serializes all mutating access under its step-boundary lock.
type Registry struct {
	entries    map[string]*ControlEntry
	order      []string
	discovered bool
}

// NewRegistry creates an empty control registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*ControlEntry)}
}

// Discover scans the model's declared state and registers one entry per
// recognized control. Three paths produce entries, in this order:
//
//   - exported fields of type *EditableValue register directly, keyed by
//     their label;
//   - exported fields whose name carries the "Value" marker register with
//     the kind inferred from the field's Go type and the label derived
//     from the remainder of the identifier (each upper-case rune starts a
//     new lower-case word);
//   - exported niladic methods carrying the "Action" marker register as
//     Action controls, after all fields, in Go's method order.
//
// Two entries resolving to the same label fail discovery; the model must
// not start. Calling Discover a second time is a no-op.
func (r *Registry) Discover(m any) error {
	if r.discovered {
		return nil
	}

	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf(
			"control: model must be a pointer to a struct, got %T", m)
	}

	if err := r.discoverFields(v.Elem()); err != nil {
		return err
	}

	if err := r.discoverActions(v); err != nil {
		return err
	}

	r.discovered = true

	return nil
}

func (r *Registry) discoverFields(s reflect.Value) error {
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		if f.Type == reflect.TypeOf((*EditableValue)(nil)) {
			if err := r.addExplicit(s.Field(i)); err != nil {
				return err
			}

			continue
		}

		if err := r.addConvention(f, s.Field(i)); err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) addExplicit(fv reflect.Value) error {
	if fv.IsNil() {
		return nil
	}

	ev := fv.Interface().(*EditableValue)

	return r.Add(&ControlEntry{value: ev, action: ev.action})
}

func (r *Registry) addConvention(f reflect.StructField, fv reflect.Value) error {
	rest, ok := strings.CutPrefix(f.Name, valueMarker)
	if !ok || rest == "" {
		return nil
	}

	kind, ok := kindOf(fv.Kind())
	if !ok {
		return nil
	}

	entry := &ControlEntry{
		value: &EditableValue{label: spacedLabel(rest), kind: kind},
		slot:  fv,
	}

	return r.Add(entry)
}

func (r *Registry) discoverActions(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)

		rest, ok := strings.CutPrefix(m.Name, actionMarker)
		if !ok || rest == "" {
			continue
		}

		if m.Type.NumIn() != 1 || !niladicResult(m.Type) {
			continue
		}

		fn := v.Method(i)
		entry := &ControlEntry{
			value:  &EditableValue{label: spacedLabel(rest), kind: KindAction},
			action: callable(fn),
		}

		if err := r.Add(entry); err != nil {
			return err
		}
	}

	return nil
}

// Add registers an entry. It fails if another entry already resolved to
// the same label.
func (r *Registry) Add(e *ControlEntry) error {
	label := e.value.label
	if _, ok := r.entries[label]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateControlName, label)
	}

	r.entries[label] = e
	r.order = append(r.order, label)

	return nil
}

// Get returns the current value of the named control.
func (r *Registry) Get(name string) (any, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownControl, name)
	}

	return e.Value(), nil
}

// Set validates the value against the control's kind and bounds and then
// applies it. The underlying storage is updated immediately, so the next
// step observes the new value.
func (r *Registry) Set(name string, value any) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownControl, name)
	}

	return e.set(value)
}

// Invoke calls the callable bound to an Action control.
func (r *Registry) Invoke(name string) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownControl, name)
	}

	if e.value.kind != KindAction || e.action == nil {
		return fmt.Errorf("%w: %q", ErrNotAnAction, name)
	}

	return e.action()
}

// List returns all entries in discovery order.
func (r *Registry) List() []*ControlEntry {
	entries := make([]*ControlEntry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.entries[name])
	}

	return entries
}

func (e *ControlEntry) set(value any) error {
	switch e.value.kind {
	case KindAction:
		return fmt.Errorf("%w: %q takes no value", ErrTypeMismatch, e.Label())
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return e.typeError(value)
		}

		e.store(b)
	case KindString:
		s, ok := value.(string)
		if !ok {
			return e.typeError(value)
		}

		e.store(s)
	case KindInt:
		n, ok := asInt(value)
		if !ok {
			return e.typeError(value)
		}

		if err := e.checkBounds(float64(n)); err != nil {
			return err
		}

		e.store(n)
	case KindFloat:
		f, ok := asFloat(value)
		if !ok {
			return e.typeError(value)
		}

		if err := e.checkBounds(f); err != nil {
			return err
		}

		e.store(f)
	}

	return nil
}

func (e *ControlEntry) store(v any) {
	if e.slot.IsValid() {
		e.slot.Set(reflect.ValueOf(v).Convert(e.slot.Type()))
		return
	}

	e.value.current = v
}

func (e *ControlEntry) typeError(value any) error {
	return fmt.Errorf("%w: %q expects %s, got %T",
		ErrTypeMismatch, e.Label(), e.value.kind, value)
}

func (e *ControlEntry) checkBounds(v float64) error {
	if out, b := outOfBounds(e.value.bounds, v); out {
		return fmt.Errorf("%w: %v is outside [%v, %v] of %q",
			ErrOutOfBounds, v, b.Min, b.Max, e.Label())
	}

	return nil
}

func kindOf(k reflect.Kind) (Kind, bool) {
	switch k {
	case reflect.Bool:
		return KindBool, true
	case reflect.Int, reflect.Int8, reflect.Int16,
		reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16,
		reflect.Uint32, reflect.Uint64:
		return KindInt, true
	case reflect.Float32, reflect.Float64:
		return KindFloat, true
	case reflect.String:
		return KindString, true
	}

	return 0, false
}

func normalize(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16,
		reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16,
		reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.String:
		return v.String()
	}

	panic(fmt.Sprintf("kind %s not supported", v.Kind()))
}

func asInt(value any) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float32:
		return asInt(float64(n))
	case float64:
		// JSON decodes all numbers as float64. The conversion is only
		// defined inside the int64 range; note float64(MaxInt64) is 2^63,
		// which itself overflows.
		if n == math.Trunc(n) &&
			n >= math.MinInt64 && n < math.MaxInt64 {
			return int64(n), true
		}
	}

	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}

	if i, ok := asInt(value); ok {
		return float64(i), true
	}

	return 0, false
}

func callable(fn reflect.Value) func() error {
	return func() error {
		out := fn.Call(nil)
		if len(out) == 1 {
			if err, ok := out[0].Interface().(error); ok && err != nil {
				return err
			}
		}

		return nil
	}
}

func niladicResult(t reflect.Type) bool {
	switch t.NumOut() {
	case 0:
		return true
	case 1:
		return t.Out(0) == reflect.TypeOf((*error)(nil)).Elem()
	}

	return false
}

func spacedLabel(ident string) string {
	var b strings.Builder
	for i, r := range ident {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}

			r = unicode.ToLower(r)
		}

		b.WriteRune(r)
	}

	return b.String()
}
