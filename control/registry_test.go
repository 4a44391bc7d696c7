package control

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type greenhouse struct {
	ValueTemperature float64
	ValueWindowsOpen bool
	ValueLabel       string
	ValueSeedCount   int

	Vent *EditableValue

	ventilated int
	watered    int
}

func (g *greenhouse) ActionVentilate() {
	g.ventilated++
}

func (g *greenhouse) ActionWaterPlants() error {
	g.watered++
	return nil
}

type collidingModel struct {
	ValueSpeed float64
	Speed      *EditableValue
}

var _ = Describe("Registry", func() {
	var (
		r *Registry
		g *greenhouse
	)

	BeforeEach(func() {
		r = NewRegistry()
		g = &greenhouse{
			ValueTemperature: 39.5,
			ValueWindowsOpen: false,
			ValueLabel:       "bed A",
			ValueSeedCount:   12,
			Vent:             NewFloat("vent opening", 0.5).WithBounds(0, 1),
		}

		Expect(r.Discover(g)).To(Succeed())
	})

	It("should discover convention-named fields with inferred kinds", func() {
		entries := r.List()
		labels := make([]string, 0, len(entries))
		for _, e := range entries {
			labels = append(labels, e.Label())
		}

		Expect(labels).To(Equal([]string{
			"temperature",
			"windows open",
			"label",
			"seed count",
			"vent opening",
			"ventilate",
			"water plants",
		}))

		Expect(entries[0].Kind()).To(Equal(KindFloat))
		Expect(entries[1].Kind()).To(Equal(KindBool))
		Expect(entries[2].Kind()).To(Equal(KindString))
		Expect(entries[3].Kind()).To(Equal(KindInt))
		Expect(entries[4].Kind()).To(Equal(KindFloat))
		Expect(entries[5].Kind()).To(Equal(KindAction))
		Expect(entries[6].Kind()).To(Equal(KindAction))
	})

	It("should read current values through to the model", func() {
		Expect(r.Get("temperature")).To(Equal(39.5))
		Expect(r.Get("windows open")).To(Equal(false))
		Expect(r.Get("seed count")).To(Equal(int64(12)))
		Expect(r.Get("vent opening")).To(Equal(0.5))
	})

	It("should apply a mutation immediately", func() {
		Expect(r.Set("temperature", 22.0)).To(Succeed())
		Expect(g.ValueTemperature).To(Equal(22.0))

		Expect(r.Set("windows open", true)).To(Succeed())
		Expect(g.ValueWindowsOpen).To(BeTrue())

		Expect(r.Set("vent opening", 0.75)).To(Succeed())
		Expect(r.Get("vent opening")).To(Equal(0.75))
	})

	It("should accept integral JSON numbers for Int controls", func() {
		Expect(r.Set("seed count", 7.0)).To(Succeed())
		Expect(g.ValueSeedCount).To(Equal(7))
	})

	It("should reject values of the wrong kind", func() {
		err := r.Set("temperature", "hot")

		Expect(err).To(MatchError(ErrTypeMismatch))
		Expect(g.ValueTemperature).To(Equal(39.5))
	})

	It("should reject non-integral numbers for Int controls", func() {
		err := r.Set("seed count", 7.5)

		Expect(err).To(MatchError(ErrTypeMismatch))
		Expect(g.ValueSeedCount).To(Equal(12))
	})

	It("should reject integral numbers beyond the int64 range", func() {
		Expect(r.Set("seed count", 1e300)).To(MatchError(ErrTypeMismatch))
		Expect(r.Set("seed count", -1e300)).To(MatchError(ErrTypeMismatch))
		Expect(r.Set("seed count", 9.3e18)).To(MatchError(ErrTypeMismatch))
		Expect(g.ValueSeedCount).To(Equal(12))
	})

	It("should reject out-of-bounds values and keep the stored value", func() {
		err := r.Set("vent opening", 1.5)

		Expect(err).To(MatchError(ErrOutOfBounds))
		Expect(r.Get("vent opening")).To(Equal(0.5))
	})

	It("should fail on unknown controls", func() {
		_, err := r.Get("humidity")
		Expect(err).To(MatchError(ErrUnknownControl))

		Expect(r.Set("humidity", 1.0)).To(MatchError(ErrUnknownControl))
		Expect(r.Invoke("humidity")).To(MatchError(ErrUnknownControl))
	})

	It("should invoke actions", func() {
		Expect(r.Invoke("ventilate")).To(Succeed())
		Expect(r.Invoke("ventilate")).To(Succeed())
		Expect(g.ventilated).To(Equal(2))

		Expect(r.Invoke("water plants")).To(Succeed())
		Expect(g.watered).To(Equal(1))
	})

	It("should refuse to invoke a value control", func() {
		Expect(r.Invoke("temperature")).To(MatchError(ErrNotAnAction))
	})

	It("should refuse to set an action control", func() {
		Expect(r.Set("ventilate", 1.0)).To(MatchError(ErrTypeMismatch))
	})

	It("should reject a manual registration under a taken label", func() {
		e := &ControlEntry{value: NewFloat("temperature", 1)}

		Expect(r.Add(e)).To(MatchError(ErrDuplicateControlName))
	})

	It("should describe controls with plain values", func() {
		d := r.List()[4].Descriptor()

		Expect(d.Label).To(Equal("vent opening"))
		Expect(d.Kind).To(Equal("Float"))
		Expect(d.Value).To(Equal(0.5))
		Expect(*d.Min).To(Equal(0.0))
		Expect(*d.Max).To(Equal(1.0))
	})
})

var _ = Describe("Registry discovery", func() {
	It("should fail when two controls resolve to the same label", func() {
		m := &collidingModel{
			Speed: NewFloat("speed", 1.0),
		}

		err := NewRegistry().Discover(m)

		Expect(err).To(MatchError(ErrDuplicateControlName))
	})

	It("should require a pointer to a struct", func() {
		err := NewRegistry().Discover(42)

		Expect(err).To(HaveOccurred())
	})

	It("should be a no-op on the second call", func() {
		r := NewRegistry()
		g := &greenhouse{Vent: NewFloat("vent opening", 0.5)}

		Expect(r.Discover(g)).To(Succeed())
		Expect(r.Discover(g)).To(Succeed())
		Expect(r.List()).To(HaveLen(7))
	})
})
