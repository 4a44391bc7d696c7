// Package field maps display names to generators of array-valued
// quantities and caches the last value produced for each, stamped with
// the step at which it was produced.
package field

// An Array is a structured numeric value as it crosses the transport
// boundary: a shape and the flattened data in row-major order.
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Scalar wraps a single value as a rank-1 array of length 1.
func Scalar(v float64) Array {
	return Array{Shape: []int{1}, Data: []float64{v}}
}

// Vector copies data into a rank-1 array. Copying keeps served values
// stable while the computation keeps mutating its own buffers.
func Vector(data []float64) Array {
	d := make([]float64, len(data))
	copy(d, data)

	return Array{Shape: []int{len(data)}, Data: d}
}

// Grid copies data into a rank-2 array of the given dimensions. It panics
// if the data length does not match rows*cols.
func Grid(rows, cols int, data []float64) Array {
	if len(data) != rows*cols {
		panic("field: grid data length does not match shape")
	}

	d := make([]float64, len(data))
	copy(d, data)

	return Array{Shape: []int{rows, cols}, Data: d}
}

// A Generator produces the current value of a field. Generators run
// between steps under the engine's lock, so they observe a consistent
// model state; they must return data that the model will not mutate
// afterwards.
type Generator func() (Array, error)
