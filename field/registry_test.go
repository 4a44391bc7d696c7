package field

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type manualClock struct {
	time int64
}

func (c *manualClock) Now() int64 {
	return c.time
}

var _ = Describe("Registry", func() {
	var (
		clock *manualClock
		r     *Registry
	)

	BeforeEach(func() {
		clock = &manualClock{}
		r = NewRegistry(clock)
	})

	It("should serve the cache while the step does not change", func() {
		calls := 0
		err := r.Add("wave", func() (Array, error) {
			calls++
			return Vector([]float64{1, 2, 3}), nil
		})
		Expect(err).To(Succeed())

		first, err := r.Get("wave")
		Expect(err).To(Succeed())

		second, err := r.Get("wave")
		Expect(err).To(Succeed())

		Expect(calls).To(Equal(1))
		Expect(second).To(Equal(first))
	})

	It("should regenerate exactly once after a step boundary", func() {
		calls := 0
		_ = r.Add("wave", func() (Array, error) {
			calls++
			return Scalar(float64(calls)), nil
		})

		_, _ = r.Get("wave")

		clock.time++

		a, err := r.Get("wave")
		Expect(err).To(Succeed())
		Expect(a.Data).To(Equal([]float64{2}))

		_, _ = r.Get("wave")
		Expect(calls).To(Equal(2))
	})

	It("should not regenerate on steps nobody observed", func() {
		calls := 0
		_ = r.Add("wave", func() (Array, error) {
			calls++
			return Scalar(0), nil
		})

		clock.time += 100

		_, _ = r.Get("wave")
		Expect(calls).To(Equal(1))
	})

	It("should scope a generation failure to the one field", func() {
		_ = r.Add("broken", func() (Array, error) {
			return Array{}, errors.New("solver diverged")
		})
		_ = r.Add("fine", func() (Array, error) {
			return Scalar(1), nil
		})

		_, err := r.Get("broken")

		var genErr *GenerationError
		Expect(errors.As(err, &genErr)).To(BeTrue())
		Expect(genErr.Field).To(Equal("broken"))

		a, err := r.Get("fine")
		Expect(err).To(Succeed())
		Expect(a.Data).To(Equal([]float64{1}))
	})

	It("should keep the previous cache when regeneration fails", func() {
		ok := true
		_ = r.Add("flaky", func() (Array, error) {
			if !ok {
				return Array{}, errors.New("source offline")
			}
			return Scalar(7), nil
		})

		_, _ = r.Get("flaky")

		clock.time++
		ok = false

		_, err := r.Get("flaky")
		Expect(err).To(HaveOccurred())

		cached, found := r.Cached("flaky")
		Expect(found).To(BeTrue())
		Expect(cached.Data).To(Equal([]float64{7}))
	})

	It("should fail on unknown fields", func() {
		_, err := r.Get("missing")

		Expect(err).To(MatchError(ErrUnknownField))
	})

	It("should let the last writer win and keep the original order", func() {
		_ = r.Add("a", func() (Array, error) { return Scalar(1), nil })
		_ = r.Add("b", func() (Array, error) { return Scalar(2), nil })
		_ = r.Add("a", func() (Array, error) { return Scalar(3), nil })

		Expect(r.Names()).To(Equal([]string{"a", "b"}))

		a, err := r.Get("a")
		Expect(err).To(Succeed())
		Expect(a.Data).To(Equal([]float64{3}))
	})

	It("should reject replacement in strict mode", func() {
		r = NewRegistry(clock).Strict()

		_ = r.Add("a", func() (Array, error) { return Scalar(1), nil })
		err := r.Add("a", func() (Array, error) { return Scalar(2), nil })

		Expect(err).To(MatchError(ErrDuplicateFieldName))
	})
})

var _ = Describe("Array", func() {
	It("should copy the data it wraps", func() {
		source := []float64{1, 2}
		a := Vector(source)

		source[0] = 99

		Expect(a.Data).To(Equal([]float64{1, 2}))
	})

	It("should panic on a shape mismatch", func() {
		Expect(func() {
			Grid(2, 3, []float64{1, 2, 3})
		}).To(Panic())
	})
})
