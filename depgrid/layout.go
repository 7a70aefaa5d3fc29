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

// Package depgrid turns per-grid-point finite-difference stencils into
// sparse matrices in compressed row storage.
//
// Grid indices (i,j,k), neighbour locations and unknown numbers are
// 1-based in every exported accessor; conversion to the 0-based
// storage happens inside this package only.
package depgrid

import "fmt"

// Layout describes the ordering of unknowns in a structured-grid model
// vector: nun unknowns per grid point, points ordered with i varying
// fastest, followed by aux auxiliary (global) unknowns.
type Layout struct {
	N, M, L int // grid dimensions
	Nun     int // unknowns per grid point
	Aux     int // auxiliary unknowns appended after the grid unknowns
}

// Points returns the number of grid points.
func (l Layout) Points() int { return l.N * l.M * l.L }

// GridDim returns the number of grid unknowns, excluding auxiliary ones.
func (l Layout) GridDim() int { return l.Points() * l.Nun }

// Dim returns the total number of unknowns.
func (l Layout) Dim() int { return l.GridDim() + l.Aux }

// FindRow returns the 0-based row of unknown xx at grid point (i,j,k).
// All arguments are 1-based.
func (l Layout) FindRow(i, j, k, xx int) int {
	return l.Nun*((k-1)*l.N*l.M+(j-1)*l.N+(i-1)) + xx - 1
}

// AuxRow returns the 0-based row of auxiliary unknown a (1-based).
func (l Layout) AuxRow(a int) int {
	return l.GridDim() + a - 1
}

// Surface returns the 0-based index of horizontal point (i,j) in a
// field that holds one value per column.
func (l Layout) Surface(i, j int) int {
	return (j-1)*l.N + i - 1
}

// Locate is the inverse of FindRow and AuxRow. For grid rows it returns
// the 1-based (i,j,k,xx) and aux == 0; for auxiliary rows it returns the
// 1-based auxiliary index in aux.
func (l Layout) Locate(row int) (i, j, k, xx, aux int) {
	if row >= l.GridDim() {
		return 0, 0, 0, 0, row - l.GridDim() + 1
	}
	xx = row%l.Nun + 1
	p := row / l.Nun
	i = p%l.N + 1
	j = (p/l.N)%l.M + 1
	k = p/(l.N*l.M) + 1
	return
}

func (l Layout) String() string {
	return fmt.Sprintf("%dx%dx%d, %d unknowns, %d aux", l.N, l.M, l.L, l.Nun, l.Aux)
}
