package field

import (
	"errors"
	"fmt"
)

// Errors reported by the registry.
var (
	ErrDuplicateFieldName = errors.New("field: duplicate field name")
	ErrUnknownField       = errors.New("field: unknown field")
)

// A GenerationError reports a generator failure. It is scoped to the one
// field: other fields and the step loop are unaffected.
type GenerationError struct {
	Field string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("field: generating %q: %v", e.Field, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// TimeTeller reports the current step of the owning model's clock.
type TimeTeller interface {
	Now() int64
}

type entry struct {
	name      string
	gen       Generator
	cached    Array
	stamp     int64
	generated bool
}

// A Registry holds the fields of one model. Values are regenerated
// lazily: a read first serves the cache and only invokes the generator
// when the cache's stamp no longer matches the clock. The registry is not
// synchronized; the engine serializes access under its step-boundary
// lock.
type Registry struct {
	clock   TimeTeller
	entries map[string]*entry
	order   []string
	strict  bool
}

// NewRegistry creates a registry whose cache stamps follow the given
// clock.
func NewRegistry(clock TimeTeller) *Registry {
	return &Registry{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Strict makes Add fail on re-registration instead of replacing.
func (r *Registry) Strict() *Registry {
	r.strict = true
	return r
}

// Add registers a generator under the given name. By default the last
// writer wins: re-registering replaces the generator and invalidates the
// cache, but keeps the field's original position in Names.
func (r *Registry) Add(name string, gen Generator) error {
	if e, ok := r.entries[name]; ok {
		if r.strict {
			return fmt.Errorf("%w: %q", ErrDuplicateFieldName, name)
		}

		e.gen = gen
		e.generated = false

		return nil
	}

	r.entries[name] = &entry{name: name, gen: gen}
	r.order = append(r.order, name)

	return nil
}

// Get returns the value of the named field. The cache is served when its
// stamp equals the clock's current step; otherwise the generator runs
// once and the result is cached with the current stamp. A generator
// failure leaves the previous cache untouched.
func (r *Registry) Get(name string) (Array, error) {
	e, ok := r.entries[name]
	if !ok {
		return Array{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}

	now := r.clock.Now()
	if e.generated && e.stamp == now {
		return e.cached, nil
	}

	a, err := e.gen()
	if err != nil {
		return Array{}, &GenerationError{Field: name, Err: err}
	}

	e.cached = a
	e.stamp = now
	e.generated = true

	return a, nil
}

// Cached returns the last value produced for the named field, regardless
// of its stamp. It reports false if the field was never generated.
func (r *Registry) Cached(name string) (Array, bool) {
	e, ok := r.entries[name]
	if !ok || !e.generated {
		return Array{}, false
	}

	return e.cached, true
}

// Names returns the field names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)

	return names
}
