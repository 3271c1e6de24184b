package potential

import (
	"errors"
	"fmt"
	"math"
)

// Function is a temperature-dependent scalar potential over field space
type Function interface {
	NumberOfFields() int
	Value(fields []float64, temperature float64) float64
}

// ErrBadTerm is returned when a term does not match the number of fields
var ErrBadTerm = errors.New("potential: term powers do not match number of fields")

// Term is Coefficient * T^TemperaturePower * prod_i fields[i]^Powers[i]
type Term struct {
	Coefficient      float64 `yaml:"coefficient" json:"coefficient"`
	Powers           []int   `yaml:"powers" json:"powers"`
	TemperaturePower int     `yaml:"temperaturePower,omitempty" json:"temperaturePower,omitempty"`
}

// Polynomial is a sum of monomial terms in the fields and temperature.
// It is immutable after construction.
type Polynomial struct {
	numberOfFields int
	terms          []Term
}

// NewPolynomial validates and copies terms.
func NewPolynomial(numberOfFields int, terms []Term) (*Polynomial, error) {
	if numberOfFields < 1 {
		return nil, fmt.Errorf("%d fields: %w", numberOfFields, ErrBadTerm)
	}
	copied := make([]Term, len(terms))
	for i, term := range terms {
		if len(term.Powers) != numberOfFields {
			return nil, fmt.Errorf("term %d has %d powers for %d fields: %w",
				i, len(term.Powers), numberOfFields, ErrBadTerm)
		}
		for _, power := range term.Powers {
			if power < 0 {
				return nil, fmt.Errorf("term %d has negative power %d: %w", i, power, ErrBadTerm)
			}
		}
		if term.TemperaturePower < 0 {
			return nil, fmt.Errorf("term %d has negative temperature power: %w", i, ErrBadTerm)
		}
		copied[i] = Term{
			Coefficient:      term.Coefficient,
			Powers:           append([]int(nil), term.Powers...),
			TemperaturePower: term.TemperaturePower,
		}
	}
	return &Polynomial{numberOfFields: numberOfFields, terms: copied}, nil
}

// NumberOfFields implements Function
func (p *Polynomial) NumberOfFields() int {
	return p.numberOfFields
}

// Terms returns a copy of the terms
func (p *Polynomial) Terms() []Term {
	terms := make([]Term, len(p.terms))
	for i, term := range p.terms {
		terms[i] = term
		terms[i].Powers = append([]int(nil), term.Powers...)
	}
	return terms
}

// Value implements Function
func (p *Polynomial) Value(fields []float64, temperature float64) float64 {
	total := 0.0
	for _, term := range p.terms {
		product := term.Coefficient * intPow(temperature, term.TemperaturePower)
		for i, power := range term.Powers {
			product *= intPow(fields[i], power)
		}
		total += product
	}
	return total
}

// Gradient writes dV/dfields into dst and returns it. dst is allocated when nil.
func (p *Polynomial) Gradient(fields []float64, temperature float64, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, p.numberOfFields)
	}
	for i := range dst {
		dst[i] = 0
	}
	for _, term := range p.terms {
		scale := term.Coefficient * intPow(temperature, term.TemperaturePower)
		for i, power := range term.Powers {
			if power == 0 {
				continue
			}
			derivative := scale * float64(power) * intPow(fields[i], power-1)
			for j, other := range term.Powers {
				if j != i {
					derivative *= intPow(fields[j], other)
				}
			}
			dst[i] += derivative
		}
	}
	return dst
}

func intPow(x float64, n int) float64 {
	switch n {
	case 0:
		return 1
	case 1:
		return x
	case 2:
		return x * x
	}
	return math.Pow(x, float64(n))
}
