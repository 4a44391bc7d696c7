// Package model defines the base abstraction that a user computation
// builds on: a named model owning one clock, one control registry and one
// field registry, driven by an engine through its Step operation.
package model

import (
	"github.com/steerlab/steer/control"
	"github.com/steerlab/steer/field"
)

// A Model is a user-defined iterative computation. Users embed Base,
// which provides everything except Step.
type Model interface {
	Name() string
	Description() string
	Clock() *Clock
	Controls() *control.Registry
	Fields() *field.Registry

	// Step advances the computation's internal state by one step. The
	// engine increments the clock immediately before each invocation.
	Step() error
}

// Base owns the clock and the registries of one model. No two models
// share a clock: the field registry's cache stamps follow the clock
// created here.
type Base struct {
	name        string
	description string
	clock       *Clock
	controls    *control.Registry
	fields      *field.Registry
}

// NewBase creates the base for a model with the given name and short
// description.
func NewBase(name, description string) *Base {
	clock := NewClock()

	return &Base{
		name:        name,
		description: description,
		clock:       clock,
		controls:    control.NewRegistry(),
		fields:      field.NewRegistry(clock),
	}
}

// Name returns the name of the model.
func (b *Base) Name() string {
	return b.name
}

// Description returns the short description of the model.
func (b *Base) Description() string {
	return b.description
}

// Clock returns the model's clock.
func (b *Base) Clock() *Clock {
	return b.clock
}

// Controls returns the model's control registry.
func (b *Base) Controls() *control.Registry {
	return b.controls
}

// Fields returns the model's field registry.
func (b *Base) Fields() *field.Registry {
	return b.fields
}

// AddField registers a field generator under the given name. It may be
// called any number of times, including after construction.
func (b *Base) AddField(name string, gen field.Generator) error {
	return b.fields.Add(name, gen)
}
