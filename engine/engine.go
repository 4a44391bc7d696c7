// Package engine drives a model's step loop and reconciles it with the
// viewer-facing query loop. One exclusive lock guards "advance one step"
// and "apply a control mutation", so the user step always observes a
// consistent control snapshot and the viewer never observes a partially
// updated step.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/steerlab/steer/control"
	"github.com/steerlab/steer/field"
	"github.com/steerlab/steer/model"
)

// ErrModelStopped is returned by mutating operations after Stop.
var ErrModelStopped = errors.New("engine: model stopped")

// A StepError records a failed user step and the step index at which it
// occurred.
type StepError struct {
	Step int64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("engine: step %d failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// An Engine owns the step loop of one model. The engine holds a
// non-owning reference: the model keeps exclusive ownership of its clock
// and registries.
type Engine struct {
	model model.Model

	// stepLock serializes step execution with control mutation, action
	// invocation and field regeneration.
	stepLock sync.Mutex

	stateLock sync.Mutex
	stateCond *sync.Cond
	state     State
	lastErr   *StepError

	period          time.Duration
	continueOnError bool

	singleRunLock sync.Mutex
}

// New creates an engine for the model and runs control discovery.
// Discovery failures are fatal: the model must not start.
func New(m model.Model) (*Engine, error) {
	if err := m.Controls().Discover(m); err != nil {
		return nil, err
	}

	e := &Engine{
		model: m,
		state: StateConstructed,
	}
	e.stateCond = sync.NewCond(&e.stateLock)

	return e, nil
}

// WithStepRate throttles the step loop to at most stepsPerSecond. Zero
// (the default) runs unthrottled.
func (e *Engine) WithStepRate(stepsPerSecond float64) *Engine {
	if stepsPerSecond <= 0 {
		e.period = 0
		return e
	}

	e.period = time.Duration(float64(time.Second) / stepsPerSecond)

	return e
}

// WithContinueOnError keeps the step loop running after a failed step,
// for unattended batch runs. The default pauses on the first failure.
func (e *Engine) WithContinueOnError() *Engine {
	e.continueOnError = true
	return e
}

// Model returns the driven model.
func (e *Engine) Model() model.Model {
	return e.model
}

// Run drives the step loop until the engine is stopped. Only one Run may
// be active at a time.
func (e *Engine) Run() error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	if err := e.beginRunning(); err != nil {
		return err
	}

	for e.waitRunnable() {
		start := time.Now()
		e.step()
		e.throttle(start)
	}

	return nil
}

func (e *Engine) beginRunning() error {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	switch e.state {
	case StateStopped:
		return ErrModelStopped
	case StateConstructed:
		e.state = StateRunning
	}

	return nil
}

// waitRunnable blocks while the engine is paused. It reports false once
// the engine is stopped.
func (e *Engine) waitRunnable() bool {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	for e.state == StatePaused {
		e.stateCond.Wait()
	}

	return e.state == StateRunning
}

func (e *Engine) step() {
	e.stepLock.Lock()
	err := e.model.Clock().Advance(e.model.Step)
	e.stepLock.Unlock()

	if err == nil {
		return
	}

	stepErr := &StepError{Step: e.model.Clock().Now(), Err: err}

	e.stateLock.Lock()
	e.lastErr = stepErr
	if !e.continueOnError && e.state == StateRunning {
		e.state = StatePaused
	}
	e.stateLock.Unlock()
}

func (e *Engine) throttle(start time.Time) {
	if e.period == 0 {
		return
	}

	if d := e.period - time.Since(start); d > 0 {
		time.Sleep(d)
	}
}

// Pause stops further step invocations at the next step boundary. A step
// already in flight completes first. Control and field access stay
// available while paused.
func (e *Engine) Pause() {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	if e.state == StateRunning || e.state == StateConstructed {
		e.state = StatePaused
	}
}

// Continue resumes a paused engine.
func (e *Engine) Continue() {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	if e.state == StatePaused {
		e.state = StateRunning
		e.stateCond.Broadcast()
	}
}

// Stop terminates the engine. No further steps run; mutating operations
// fail with ErrModelStopped afterwards, while last-known values stay
// readable.
func (e *Engine) Stop() {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	if e.state != StateStopped {
		e.state = StateStopped
		e.stateCond.Broadcast()
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	return e.state
}

// CurrentStep returns the model clock's current step.
func (e *Engine) CurrentStep() int64 {
	return e.model.Clock().Now()
}

// LastError returns the most recent step failure, or nil.
func (e *Engine) LastError() *StepError {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	return e.lastErr
}

// ListControls returns a consistent snapshot of all controls.
func (e *Engine) ListControls() []control.Descriptor {
	e.stepLock.Lock()
	defer e.stepLock.Unlock()

	entries := e.model.Controls().List()
	descriptors := make([]control.Descriptor, 0, len(entries))
	for _, entry := range entries {
		descriptors = append(descriptors, entry.Descriptor())
	}

	return descriptors
}

// GetControl returns the current value of the named control.
func (e *Engine) GetControl(name string) (any, error) {
	e.stepLock.Lock()
	defer e.stepLock.Unlock()

	return e.model.Controls().Get(name)
}

// SetControl validates and applies a control mutation. The mutation is
// applied strictly between two step invocations.
func (e *Engine) SetControl(name string, value any) error {
	if e.State() == StateStopped {
		return ErrModelStopped
	}

	e.stepLock.Lock()
	defer e.stepLock.Unlock()

	return e.model.Controls().Set(name, value)
}

// InvokeAction calls the named action between two step invocations.
func (e *Engine) InvokeAction(name string) error {
	if e.State() == StateStopped {
		return ErrModelStopped
	}

	e.stepLock.Lock()
	defer e.stepLock.Unlock()

	return e.model.Controls().Invoke(name)
}

// ListFields returns the field names in registration order. A step may
// register fields at any time, so the listing takes a snapshot under the
// step lock like every other viewer operation.
func (e *Engine) ListFields() []string {
	e.stepLock.Lock()
	defer e.stepLock.Unlock()

	return e.model.Fields().Names()
}

// ReadField returns the value of the named field, regenerating it first
// if its cache predates the current step. After Stop, the last cached
// value is served; a field that was never generated fails with
// ErrModelStopped since regeneration would run user code.
func (e *Engine) ReadField(name string) (field.Array, error) {
	e.stepLock.Lock()
	defer e.stepLock.Unlock()

	if e.State() == StateStopped {
		if a, ok := e.model.Fields().Cached(name); ok {
			return a, nil
		}

		return field.Array{}, ErrModelStopped
	}

	return e.model.Fields().Get(name)
}
