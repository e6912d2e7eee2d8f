package nma

import (
	"fmt"
	"slices"
)

// Draws is an ordered collection of posterior draws on the constrained
// scale. Values are row-major: draw i, parameter j at Values[i*len(Names)+j].
type Draws struct {
	Names  []string
	Values []float64
	index  map[string]int
}

// NewDraws validates shape and indexes parameter names.
func NewDraws(names []string, values []float64) (*Draws, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("draws: no parameters")
	}
	if len(values)%len(names) != 0 {
		return nil, fmt.Errorf("draws: %d values not divisible by %d parameters", len(values), len(names))
	}
	d := &Draws{Names: slices.Clone(names), Values: values, index: make(map[string]int, len(names))}
	for i, n := range names {
		if _, dup := d.index[n]; dup {
			return nil, fmt.Errorf("draws: duplicate parameter %q", n)
		}
		d.index[n] = i
	}
	return d, nil
}

// Len returns the number of draws.
func (d *Draws) Len() int {
	return len(d.Values) / len(d.Names)
}

// Index returns the column of a parameter.
func (d *Draws) Index(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Has reports whether a parameter is present.
func (d *Draws) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Row returns draw i. The slice aliases Values.
func (d *Draws) Row(i int) []float64 {
	p := len(d.Names)
	return d.Values[i*p : (i+1)*p : (i+1)*p]
}

// Column copies all draws of one parameter.
func (d *Draws) Column(name string) ([]float64, error) {
	j, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("draws: unknown parameter %q", name)
	}
	n := d.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = d.Values[i*len(d.Names)+j]
	}
	return out, nil
}

// Get returns parameter name in draw i, or 0 when the parameter is absent.
// Absent coefficients (e.g. d for the reference treatment) are zero.
func (d *Draws) Get(i int, name string) float64 {
	j, ok := d.index[name]
	if !ok {
		return 0
	}
	return d.Values[i*len(d.Names)+j]
}
