// Package training layers a training loop on the computation model:
// checkpointable parameter scopes, per-step minimizers, scalar summaries
// and record-store-backed fields. The differentiable backend stays
// external behind the Optimizer contract.
package training

import (
	"errors"
	"fmt"

	"github.com/steerlab/steer/field"
	"github.com/steerlab/steer/model"
)

// ErrNoCheckpointFound is returned when loading a scope that was never
// saved. Loading never silently initializes.
var ErrNoCheckpointFound = errors.New("training: no checkpoint found")

// DefaultScope is the scope that parameters belong to outside any
// BeginScope/EndScope pair.
const DefaultScope = "default"

const summaryTable = "summaries"

// Loss produces the current value of a scalar objective.
type Loss func() float64

// An Optimizer performs exactly one update of params against loss per
// call. Implementations wrap an external differentiable backend.
type Optimizer interface {
	Minimize(params []*Parameter, loss Loss) error
}

// A Checkpointer persists parameter scopes by name. Save and Load are
// idempotent.
type Checkpointer interface {
	Save(scope string, params map[string][]float64) error
	Load(scope string) (map[string][]float64, error)
}

// A RecordSource is an opaque name-to-record lookup that returns the most
// recently stored record for a name.
type RecordSource interface {
	Latest(name string) (field.Array, error)
}

// A SummaryRecorder stores per-step scalar summaries as structured rows.
type SummaryRecorder interface {
	CreateTable(tableName string, sampleEntry any) error
	InsertData(tableName string, entry any) error
}

// A Summary is one recorded scalar sample.
type Summary struct {
	Step  int64
	Name  string
	Value float64
}

type minimizer struct {
	name  string
	loss  Loss
	opt   Optimizer
	scope *Scope
}

type scalar struct {
	name    string
	fn      func() float64
	history []float64
}

// A Model is a computation model with a training loop. Users embed it and
// either rely on its default Step or override Step wholesale.
type Model struct {
	*model.Base

	scopes     map[string]*Scope
	scopeOrder []string
	current    *Scope

	minimizers []*minimizer
	scalars    []*scalar

	checkpoints Checkpointer
	source      RecordSource
	recorder    SummaryRecorder
}

// NewModel creates a training model with the given name and description.
func NewModel(name, description string) *Model {
	m := &Model{
		Base:   model.NewBase(name, description),
		scopes: make(map[string]*Scope),
	}
	m.current = m.scope(DefaultScope)

	return m
}

// WithCheckpointer sets the store that Save and Load operate on.
func (m *Model) WithCheckpointer(c Checkpointer) *Model {
	m.checkpoints = c
	return m
}

// WithSource binds the record store that stored fields resolve against.
func (m *Model) WithSource(src RecordSource) *Model {
	m.source = src
	return m
}

// WithRecorder sets the recorder that scalar summaries are written to
// after each default step.
func (m *Model) WithRecorder(r SummaryRecorder) *Model {
	err := r.CreateTable(summaryTable, Summary{})
	if err != nil {
		panic(err)
	}

	m.recorder = r

	return m
}

func (m *Model) scope(name string) *Scope {
	s, ok := m.scopes[name]
	if !ok {
		s = newScope(name)
		m.scopes[name] = s
		m.scopeOrder = append(m.scopeOrder, name)
	}

	return s
}

// BeginScope marks subsequent Parameter creation as belonging to the
// named, persistable scope.
func (m *Model) BeginScope(name string) {
	m.current = m.scope(name)
}

// EndScope returns to the default scope.
func (m *Model) EndScope() {
	m.current = m.scope(DefaultScope)
}

// Parameter creates a parameter in the current scope, initialized with a
// copy of init. Declaring the same name twice in one scope panics, as it
// is a programming error at model-construction time.
func (m *Model) Parameter(name string, init []float64) *Parameter {
	return m.current.add(name, init)
}

// ScopeNames returns the scope names in creation order.
func (m *Model) ScopeNames() []string {
	names := make([]string, len(m.scopeOrder))
	copy(names, m.scopeOrder)

	return names
}

// Minimizer designates one scalar objective to be optimized once per
// step by the default Step, in registration order. The minimizer operates
// on the parameters of the scope current at registration. The loss is
// also tracked as a scalar summary under the minimizer's name.
func (m *Model) Minimizer(name string, loss Loss, opt Optimizer) {
	m.minimizers = append(m.minimizers, &minimizer{
		name:  name,
		loss:  loss,
		opt:   opt,
		scope: m.current,
	})

	m.TrackScalar(name, func() float64 { return loss() })
}

// TrackScalar records fn after every default step and exposes the history
// as a field under the given name.
func (m *Model) TrackScalar(name string, fn func() float64) {
	s := &scalar{name: name, fn: fn}
	m.scalars = append(m.scalars, s)

	err := m.AddField(name, func() (field.Array, error) {
		return field.Vector(s.history), nil
	})
	if err != nil {
		panic(err)
	}
}

// AddStoredField registers a field that resolves against the bound record
// store, serving the most recently stored record for the name. The lazy
// per-step cache rule applies: the store is re-read at most once per
// step.
func (m *Model) AddStoredField(name string) error {
	if m.source == nil {
		return fmt.Errorf("training: no record source bound for field %q", name)
	}

	src := m.source

	return m.AddField(name, func() (field.Array, error) {
		return src.Latest(name)
	})
}

// Step performs exactly one optimization update per registered minimizer,
// in registration order, then appends all tracked scalar summaries.
func (m *Model) Step() error {
	for _, mn := range m.minimizers {
		err := mn.opt.Minimize(mn.scope.params, mn.loss)
		if err != nil {
			return fmt.Errorf("training: minimizer %q: %w", mn.name, err)
		}
	}

	m.recordSummaries()

	return nil
}

func (m *Model) recordSummaries() {
	now := m.Clock().Now()
	for _, s := range m.scalars {
		v := s.fn()
		s.history = append(s.history, v)

		if m.recorder != nil {
			err := m.recorder.InsertData(summaryTable, Summary{
				Step:  now,
				Name:  s.name,
				Value: v,
			})
			if err != nil {
				panic(err)
			}
		}
	}
}

// Save persists the named scope through the checkpointer.
func (m *Model) Save(scope string) error {
	s, err := m.persistableScope(scope)
	if err != nil {
		return err
	}

	return m.checkpoints.Save(scope, s.values())
}

// Load restores the named scope from its most recent checkpoint. Loading
// a scope with no prior save fails with ErrNoCheckpointFound.
func (m *Model) Load(scope string) error {
	s, err := m.persistableScope(scope)
	if err != nil {
		return err
	}

	values, err := m.checkpoints.Load(scope)
	if err != nil {
		return err
	}

	s.restore(values)

	return nil
}

func (m *Model) persistableScope(scope string) (*Scope, error) {
	s, ok := m.scopes[scope]
	if !ok {
		return nil, fmt.Errorf("training: unknown scope %q", scope)
	}

	if m.checkpoints == nil {
		return nil, fmt.Errorf("training: no checkpointer configured")
	}

	return s, nil
}
