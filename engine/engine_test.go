package engine

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/steerlab/steer/control"
	"github.com/steerlab/steer/field"
	"github.com/steerlab/steer/model"
)

type loopModel struct {
	*model.Base

	stepFn func() error
}

func newLoopModel(stepFn func() error) *loopModel {
	return &loopModel{
		Base:   model.NewBase("loop", "test model"),
		stepFn: stepFn,
	}
}

func (m *loopModel) Step() error {
	return m.stepFn()
}

type counterModel struct {
	*model.Base

	ValueCounter int

	tornSteps int
}

func (m *counterModel) Step() error {
	first := m.ValueCounter
	for i := 0; i < 100; i++ {
		if m.ValueCounter != first {
			m.tornSteps++
			return nil
		}
	}

	return nil
}

type duplicateModel struct {
	*model.Base

	ValueSpeed float64
	Speed      *control.EditableValue
}

func (m *duplicateModel) Step() error {
	return nil
}

var _ = Describe("Engine", func() {
	It("should refuse to start a model that fails discovery", func() {
		m := &duplicateModel{
			Base:  model.NewBase("dup", ""),
			Speed: control.NewFloat("speed", 1),
		}

		_, err := New(m)

		Expect(err).To(MatchError(control.ErrDuplicateControlName))
	})

	It("should advance the clock by one per step", func() {
		var e *Engine
		m := newLoopModel(nil)
		m.stepFn = func() error {
			if m.Clock().Now() == 5 {
				e.Stop()
			}
			return nil
		}

		e, err := New(m)
		Expect(err).To(Succeed())

		Expect(e.Run()).To(Succeed())
		Expect(e.CurrentStep()).To(Equal(int64(5)))
	})

	It("should pause on a failed step and resume on Continue", func() {
		m := newLoopModel(nil)
		m.stepFn = func() error {
			if m.Clock().Now() == 3 {
				return errors.New("state corrupted")
			}
			return nil
		}

		e, err := New(m)
		Expect(err).To(Succeed())

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			Expect(e.Run()).To(Succeed())
		}()

		Eventually(e.State).Should(Equal(StatePaused))
		Expect(e.CurrentStep()).To(Equal(int64(3)))
		Consistently(e.CurrentStep).Should(Equal(int64(3)))

		stepErr := e.LastError()
		Expect(stepErr).NotTo(BeNil())
		Expect(stepErr.Step).To(Equal(int64(3)))
		Expect(stepErr.Err).To(MatchError("state corrupted"))

		m.stepFn = func() error {
			if m.Clock().Now() == 6 {
				e.Stop()
			}
			return nil
		}
		e.Continue()

		Eventually(done).Should(BeClosed())
		Expect(e.CurrentStep()).To(Equal(int64(6)))
	})

	It("should keep stepping after failures when configured to", func() {
		var e *Engine
		m := newLoopModel(nil)
		m.stepFn = func() error {
			if m.Clock().Now() == 5 {
				e.Stop()
			}
			return fmt.Errorf("step %d failed", m.Clock().Now())
		}

		e, err := New(m)
		Expect(err).To(Succeed())
		e.WithContinueOnError()

		Expect(e.Run()).To(Succeed())

		Expect(e.CurrentStep()).To(Equal(int64(5)))
		Expect(e.LastError().Step).To(Equal(int64(5)))
	})

	It("should take pause requests at the next step boundary", func() {
		m := newLoopModel(func() error { return nil })

		e, err := New(m)
		Expect(err).To(Succeed())

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			Expect(e.Run()).To(Succeed())
		}()

		Eventually(e.CurrentStep).Should(BeNumerically(">", 0))

		e.Pause()
		Eventually(e.State).Should(Equal(StatePaused))

		// One in-flight step may still complete after the pause request.
		var paused int64
		Eventually(func() bool {
			s := e.CurrentStep()
			if s == paused {
				return true
			}
			paused = s

			return false
		}).Should(BeTrue())
		Consistently(e.CurrentStep).Should(Equal(paused))

		// Controls stay available while paused.
		Expect(e.ListControls()).To(BeEmpty())

		e.Continue()
		Eventually(e.CurrentStep).Should(BeNumerically(">", paused))

		e.Stop()
		Eventually(done).Should(BeClosed())
	})

	It("should never expose a mutation to a step partway", func() {
		m := &counterModel{Base: model.NewBase("counter", "")}

		e, err := New(m)
		Expect(err).To(Succeed())

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			Expect(e.Run()).To(Succeed())
		}()

		for i := 0; i < 2000; i++ {
			Expect(e.SetControl("counter", i)).To(Succeed())
		}

		e.Stop()
		Eventually(done).Should(BeClosed())

		Expect(m.tornSteps).To(Equal(0))
	})

	It("should list fields consistently while steps register new ones", func() {
		var e *Engine
		m := newLoopModel(nil)
		m.stepFn = func() error {
			name := fmt.Sprintf("sensor %d", m.Clock().Now())
			if err := m.AddField(name, func() (field.Array, error) {
				return field.Scalar(0), nil
			}); err != nil {
				return err
			}

			if m.Clock().Now() == 200 {
				e.Stop()
			}

			return nil
		}

		e, err := New(m)
		Expect(err).To(Succeed())

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			Expect(e.Run()).To(Succeed())
		}()

		for i := 0; i < 2000; i++ {
			names := e.ListFields()
			Expect(len(names)).To(BeNumerically("<=", 200))
		}

		Eventually(done).Should(BeClosed())
		Expect(e.ListFields()).To(HaveLen(200))
	})

	It("should reject mutations after Stop and keep last values readable", func() {
		m := newLoopModel(func() error { return nil })
		err := m.AddField("probe", func() (field.Array, error) {
			return field.Scalar(4), nil
		})
		Expect(err).To(Succeed())
		err = m.AddField("never read", func() (field.Array, error) {
			return field.Scalar(0), nil
		})
		Expect(err).To(Succeed())

		e, newErr := New(m)
		Expect(newErr).To(Succeed())

		a, err := e.ReadField("probe")
		Expect(err).To(Succeed())
		Expect(a.Data).To(Equal([]float64{4}))

		e.Stop()

		Expect(e.SetControl("x", 1)).To(MatchError(ErrModelStopped))
		Expect(e.InvokeAction("x")).To(MatchError(ErrModelStopped))
		Expect(e.Run()).To(MatchError(ErrModelStopped))

		cached, err := e.ReadField("probe")
		Expect(err).To(Succeed())
		Expect(cached.Data).To(Equal([]float64{4}))

		_, err = e.ReadField("never read")
		Expect(err).To(MatchError(ErrModelStopped))
	})

	It("should serve fields lazily under the step lock", func() {
		calls := 0
		m := newLoopModel(func() error { return nil })
		err := m.AddField("wave", func() (field.Array, error) {
			calls++
			return field.Scalar(float64(calls)), nil
		})
		Expect(err).To(Succeed())

		e, newErr := New(m)
		Expect(newErr).To(Succeed())

		_, _ = e.ReadField("wave")
		_, _ = e.ReadField("wave")
		Expect(calls).To(Equal(1))

		Expect(e.ListFields()).To(Equal([]string{"wave"}))
	})
})
