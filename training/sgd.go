package training

import "fmt"

// SGD is a reference Optimizer that applies one plain gradient-descent
// update per call. The Grad hook is the seam where a differentiable
// backend plugs in: it receives the parameters and returns one gradient
// slice per parameter, matching lengths.
type SGD struct {
	LearningRate float64
	Grad         func(params []*Parameter) ([][]float64, error)
}

// Minimize applies params[i] -= LearningRate * grad[i] once.
func (s SGD) Minimize(params []*Parameter, _ Loss) error {
	grads, err := s.Grad(params)
	if err != nil {
		return fmt.Errorf("training: gradient evaluation: %w", err)
	}

	if len(grads) != len(params) {
		return fmt.Errorf("training: got %d gradients for %d parameters",
			len(grads), len(params))
	}

	for i, p := range params {
		g := grads[i]
		if len(g) != len(p.Values) {
			return fmt.Errorf(
				"training: gradient length %d does not match parameter %q (%d)",
				len(g), p.Name, len(p.Values))
		}

		for j := range p.Values {
			p.Values[j] -= s.LearningRate * g[j]
		}
	}

	return nil
}
