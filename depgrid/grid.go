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

package depgrid

import (
	"fmt"
	"sort"

	"github.com/ctessum/sparse"
)

// A DependencyGrid holds, for every grid point and neighbour location,
// the dependence of unknown A at the point on unknown B at the
// neighbour. It is the un-assembled form of a Jacobian or linear
// operator.
type DependencyGrid struct {
	Layout
	np int
	g  *sparse.DenseArray
}

// NewDependencyGrid returns a zeroed grid for the given layout with np
// neighbour locations (Stencil2D or Stencil3D).
func NewDependencyGrid(l Layout, np int) *DependencyGrid {
	if np != Stencil2D && np != Stencil3D {
		panic(fmt.Errorf("depgrid: unsupported stencil size %d", np))
	}
	return &DependencyGrid{
		Layout: l,
		np:     np,
		g:      sparse.ZerosDense(l.N, l.M, l.L, np, l.Nun, l.Nun),
	}
}

// Stencil returns the number of neighbour locations.
func (d *DependencyGrid) Stencil() int { return d.np }

// index converts 0-based indices into the storage offset.
func (d *DependencyGrid) index(i, j, k, loc, a, b int) int {
	return ((((i*d.M+j)*d.L+k)*d.np+loc)*d.Nun+a)*d.Nun + b
}

// Get returns the coefficient of unknown b at location loc in the
// equation for unknown a at grid point (i,j,k).
func (d *DependencyGrid) Get(i, j, k, loc, a, b int) float64 {
	return d.g.Get(i-1, j-1, k-1, loc-1, a-1, b-1)
}

// Set sets the coefficient of unknown b at location loc in the
// equation for unknown a at grid point (i,j,k).
func (d *DependencyGrid) Set(i, j, k, loc, a, b int, v float64) {
	d.g.Elements[d.g.Index1d(i-1, j-1, k-1, loc-1, a-1, b-1)] = v
}

// AddVal adds v to a single coefficient.
func (d *DependencyGrid) AddVal(i, j, k, loc, a, b int, v float64) {
	d.g.AddVal(v, i-1, j-1, k-1, loc-1, a-1, b-1)
}

// SetRange sets the (a,b) coefficient to v over the inclusive range
// r = {i0, i1, j0, j1, k0, k1, loc0, loc1}.
func (d *DependencyGrid) SetRange(r [8]int, a, b int, v float64) {
	for i := r[0]; i <= r[1]; i++ {
		for j := r[2]; j <= r[3]; j++ {
			for k := r[4]; k <= r[5]; k++ {
				for loc := r[6]; loc <= r[7]; loc++ {
					d.Set(i, j, k, loc, a, b, v)
				}
			}
		}
	}
}

// SetAtom copies the coefficients of atom into the (a,b) pair over the
// inclusive range r = {i0, i1, j0, j1, k0, k1, loc0, loc1}.
func (d *DependencyGrid) SetAtom(r [8]int, a, b int, atom *Atom) {
	for i := r[0]; i <= r[1]; i++ {
		for j := r[2]; j <= r[3]; j++ {
			for k := r[4]; k <= r[5]; k++ {
				for loc := r[6]; loc <= r[7]; loc++ {
					d.Set(i, j, k, loc, a, b, atom.Get(i, j, k, loc))
				}
			}
		}
	}
}

// Add accumulates s*atom into the dependence of unknown a on unknown b.
func (d *DependencyGrid) Add(a, b int, s float64, atom *Atom) {
	if atom.n != d.N || atom.m != d.M || atom.l != d.L || atom.np != d.np {
		panic(fmt.Errorf("depgrid: atom shape %v does not match grid %v", atom.a.Shape, d.Layout))
	}
	if s == 0 {
		return
	}
	nn := d.Nun * d.Nun
	off := (a-1)*d.Nun + b - 1
	for t, v := range atom.a.Elements {
		if v != 0 {
			d.g.Elements[t*nn+off] += s * v
		}
	}
}

// Zero resets every coefficient.
func (d *DependencyGrid) Zero() {
	for i := range d.g.Elements {
		d.g.Elements[i] = 0
	}
}

// RowFunc adds entries to a matrix row during assembly, beyond those
// coming from the stencils. It is called once for every row, including
// auxiliary rows, with the 0-based row number.
type RowFunc func(row int, add func(col int, v float64))

// Assemble converts the grid into a Dim()×Dim() CRS matrix.
// Rows are ordered as in Layout.FindRow, followed by the auxiliary rows.
// Neighbours beyond the domain boundary are dropped, except in i when
// periodic is true, where they wrap around. Coefficients that land on
// the same column of a row are summed. extra may be nil.
//
// A row that receives no entries stays empty; see CRS.EmptyRows.
func (d *DependencyGrid) Assemble(periodic bool, extra RowFunc) *CRS {
	dim := d.Dim()
	a := &CRS{
		NCols:  dim,
		RowPtr: make([]int, 0, dim+1),
	}
	a.RowPtr = append(a.RowPtr, 0)
	var row rowBuilder
	add := row.add

	for k := 0; k < d.L; k++ {
		for j := 0; j < d.M; j++ {
			for i := 0; i < d.N; i++ {
				for xa := 0; xa < d.Nun; xa++ {
					row.reset()
					for loc := 0; loc < d.np; loc++ {
						di, dj, dk := Shift(loc + 1)
						i2, j2, k2 := i+di, j+dj, k+dk
						if i2 < 0 || i2 >= d.N {
							if !periodic {
								continue
							}
							i2 = (i2 + d.N) % d.N
						}
						if j2 < 0 || j2 >= d.M || k2 < 0 || k2 >= d.L {
							continue
						}
						base := d.index(i, j, k, loc, xa, 0)
						for xb := 0; xb < d.Nun; xb++ {
							v := d.g.Elements[base+xb]
							if v == 0 {
								continue
							}
							add(d.FindRow(i2+1, j2+1, k2+1, xb+1), v)
						}
					}
					if extra != nil {
						extra(d.FindRow(i+1, j+1, k+1, xa+1), add)
					}
					row.appendTo(a)
				}
			}
		}
	}
	for x := 1; x <= d.Aux; x++ {
		row.reset()
		if extra != nil {
			extra(d.AuxRow(x), add)
		}
		row.appendTo(a)
	}
	return a
}

// rowBuilder collects the entries of one matrix row.
type rowBuilder struct {
	cols []int
	vals []float64
}

func (r *rowBuilder) reset() {
	r.cols = r.cols[:0]
	r.vals = r.vals[:0]
}

func (r *rowBuilder) add(col int, v float64) {
	r.cols = append(r.cols, col)
	r.vals = append(r.vals, v)
}

func (r *rowBuilder) Len() int           { return len(r.cols) }
func (r *rowBuilder) Less(i, j int) bool { return r.cols[i] < r.cols[j] }
func (r *rowBuilder) Swap(i, j int) {
	r.cols[i], r.cols[j] = r.cols[j], r.cols[i]
	r.vals[i], r.vals[j] = r.vals[j], r.vals[i]
}

// appendTo sorts the row, sums duplicate columns and appends it to a.
func (r *rowBuilder) appendTo(a *CRS) {
	sort.Stable(r)
	for p := 0; p < len(r.cols); p++ {
		n := len(a.Cols)
		if n > a.RowPtr[len(a.RowPtr)-1] && a.Cols[n-1] == r.cols[p] {
			a.Values[n-1] += r.vals[p]
			continue
		}
		a.Cols = append(a.Cols, r.cols[p])
		a.Values = append(a.Values, r.vals[p])
	}
	a.RowPtr = append(a.RowPtr, len(a.Cols))
}
