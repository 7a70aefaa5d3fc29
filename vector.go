/*
Copyright © 2019 the EMIC authors.
This file is part of EMIC.

EMIC is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EMIC is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EMIC.  If not, see <http://www.gnu.org/licenses/>.
*/

package emic

import "gonum.org/v1/gonum/floats"

// Half identifies one of the two parts of a coupled vector.
type Half int

// Vector halves.
const (
	OceanHalf Half = iota
	AtmosHalf
)

func (h Half) String() string {
	if h == OceanHalf {
		return "ocean"
	}
	return "atmosphere"
}

// A Vector is a coupled vector: the ocean unknowns followed by the
// atmosphere unknowns in one contiguous slice. The halves returned by
// Ocean and Atmos alias Data.
type Vector struct {
	Data  []float64
	split int
}

// NewVector returns a zero vector with no ocean and na atmosphere
// unknowns.
func NewVector(no, na int) *Vector {
	return &Vector{Data: make([]float64, no+na), split: no}
}

// viewVector wraps data, which must have the same split as like.
func viewVector(data []float64, like *Vector) *Vector {
	return &Vector{Data: data, split: like.split}
}

// Ocean returns the ocean half.
func (v *Vector) Ocean() []float64 { return v.Data[:v.split:v.split] }

// Atmos returns the atmosphere half.
func (v *Vector) Atmos() []float64 { return v.Data[v.split:] }

// Half returns the requested half.
func (v *Vector) Half(h Half) []float64 {
	if h == OceanHalf {
		return v.Ocean()
	}
	return v.Atmos()
}

// Len returns the total number of unknowns.
func (v *Vector) Len() int { return len(v.Data) }

// Copy returns an independent copy of v.
func (v *Vector) Copy() *Vector {
	return &Vector{Data: append([]float64(nil), v.Data...), split: v.split}
}

// Zero sets all elements to zero.
func (v *Vector) Zero() { zero(v.Data) }

// ZeroHalf sets one half to zero.
func (v *Vector) ZeroHalf(h Half) { zero(v.Half(h)) }

// Update sets v = a*w + b*v.
func (v *Vector) Update(a float64, w *Vector, b float64) {
	for i, x := range w.Data {
		v.Data[i] = a*x + b*v.Data[i]
	}
}

// Add sets v = v + w.
func (v *Vector) Add(w *Vector) { floats.Add(v.Data, w.Data) }

// Scale multiplies v by s.
func (v *Vector) Scale(s float64) { floats.Scale(s, v.Data) }

// Norm returns the Euclidean norm of v.
func (v *Vector) Norm() float64 { return floats.Norm(v.Data, 2) }

// Dot returns the dot product of v and w.
func (v *Vector) Dot(w *Vector) float64 { return floats.Dot(v.Data, w.Data) }

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
