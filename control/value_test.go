package control

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EditableValue", func() {
	It("should carry kind, default and category", func() {
		v := NewInt("batch size", 32).WithCategory("training")

		Expect(v.Label()).To(Equal("batch size"))
		Expect(v.Kind()).To(Equal(KindInt))
		Expect(v.Value()).To(Equal(int64(32)))
		Expect(v.Category()).To(Equal("training"))
		Expect(v.Bounds()).To(BeNil())
	})

	It("should panic when bounds are put on a non-numeric control", func() {
		Expect(func() {
			NewBool("windows open", false).WithBounds(0, 1)
		}).To(Panic())
	})

	It("should panic when the default lies outside the bounds", func() {
		Expect(func() {
			NewFloat("temperature", 50).WithBounds(0, 40)
		}).To(Panic())
	})
})
