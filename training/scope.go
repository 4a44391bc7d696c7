package training

import "fmt"

// A Parameter is one named group of checkpointable values. Optimizers
// mutate Values in place.
type Parameter struct {
	Name   string
	Values []float64
}

// A Scope is a named group of parameters that is saved and loaded as a
// unit.
type Scope struct {
	name   string
	params []*Parameter
	index  map[string]*Parameter
}

func newScope(name string) *Scope {
	return &Scope{
		name:  name,
		index: make(map[string]*Parameter),
	}
}

// Name returns the name of the scope.
func (s *Scope) Name() string {
	return s.name
}

// Parameters returns the parameters of the scope in creation order.
func (s *Scope) Parameters() []*Parameter {
	params := make([]*Parameter, len(s.params))
	copy(params, s.params)

	return params
}

func (s *Scope) add(name string, init []float64) *Parameter {
	if _, ok := s.index[name]; ok {
		panic(fmt.Sprintf(
			"training: parameter %q already declared in scope %q",
			name, s.name))
	}

	values := make([]float64, len(init))
	copy(values, init)

	p := &Parameter{Name: name, Values: values}
	s.params = append(s.params, p)
	s.index[name] = p

	return p
}

func (s *Scope) values() map[string][]float64 {
	values := make(map[string][]float64, len(s.params))
	for _, p := range s.params {
		v := make([]float64, len(p.Values))
		copy(v, p.Values)
		values[p.Name] = v
	}

	return values
}

func (s *Scope) restore(values map[string][]float64) {
	for _, p := range s.params {
		saved, ok := values[p.Name]
		if !ok {
			continue
		}

		p.Values = make([]float64, len(saved))
		copy(p.Values, saved)
	}
}
