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
	"gonum.org/v1/gonum/mat"
)

// CRS is a sparse matrix in compressed row storage. The entries of
// row r are Values[RowPtr[r]:RowPtr[r+1]] in the columns
// Cols[RowPtr[r]:RowPtr[r+1]], which are sorted and unique.
// All indices are 0-based.
type CRS struct {
	Values []float64
	Cols   []int
	RowPtr []int
	NCols  int
}

// FromSparse compresses a two dimensional sparse array.
func FromSparse(s *sparse.SparseArray) *CRS {
	if len(s.Shape) != 2 {
		panic(fmt.Errorf("depgrid: FromSparse needs a 2D array, got shape %v", s.Shape))
	}
	nz := s.Nonzero()
	sort.Ints(nz) // row-major, so this sorts by (row, col)
	a := &CRS{
		NCols:  s.Shape[1],
		RowPtr: make([]int, s.Shape[0]+1),
		Cols:   make([]int, 0, len(nz)),
		Values: make([]float64, 0, len(nz)),
	}
	for _, idx := range nz {
		r, c := idx/s.Shape[1], idx%s.Shape[1]
		a.Cols = append(a.Cols, c)
		a.Values = append(a.Values, s.Elements[idx])
		a.RowPtr[r+1]++
	}
	for r := 0; r < s.Shape[0]; r++ {
		a.RowPtr[r+1] += a.RowPtr[r]
	}
	return a
}

// Rows returns the number of rows.
func (a *CRS) Rows() int { return len(a.RowPtr) - 1 }

// NNZ returns the number of stored entries.
func (a *CRS) NNZ() int { return len(a.Values) }

// MulVec sets y = A x.
func (a *CRS) MulVec(x, y []float64) {
	if len(x) != a.NCols || len(y) != a.Rows() {
		panic(fmt.Errorf("depgrid: MulVec dimension mismatch: %dx%d matrix, len(x)=%d, len(y)=%d",
			a.Rows(), a.NCols, len(x), len(y)))
	}
	for r := range y {
		var s float64
		for p := a.RowPtr[r]; p < a.RowPtr[r+1]; p++ {
			s += a.Values[p] * x[a.Cols[p]]
		}
		y[r] = s
	}
}

// find returns the storage position of (r,c), or -1.
func (a *CRS) find(r, c int) int {
	lo, hi := a.RowPtr[r], a.RowPtr[r+1]
	p := lo + sort.SearchInts(a.Cols[lo:hi], c)
	if p < hi && a.Cols[p] == c {
		return p
	}
	return -1
}

// At returns the entry at row r and column c.
func (a *CRS) At(r, c int) float64 {
	if p := a.find(r, c); p >= 0 {
		return a.Values[p]
	}
	return 0
}

// Row returns the columns and values of row r. The slices alias the
// matrix storage.
func (a *CRS) Row(r int) ([]int, []float64) {
	return a.Cols[a.RowPtr[r]:a.RowPtr[r+1]], a.Values[a.RowPtr[r]:a.RowPtr[r+1]]
}

// ReplaceRow replaces the entries of row r. cols need not be sorted
// but must be unique.
func (a *CRS) ReplaceRow(r int, cols []int, vals []float64) {
	if len(cols) != len(vals) {
		panic("depgrid: ReplaceRow: len(cols) != len(vals)")
	}
	rb := rowBuilder{cols: append([]int(nil), cols...), vals: append([]float64(nil), vals...)}
	sort.Stable(&rb)

	lo, hi := a.RowPtr[r], a.RowPtr[r+1]
	shift := len(cols) - (hi - lo)
	newCols := make([]int, 0, len(a.Cols)+shift)
	newVals := make([]float64, 0, len(a.Values)+shift)
	newCols = append(append(append(newCols, a.Cols[:lo]...), rb.cols...), a.Cols[hi:]...)
	newVals = append(append(append(newVals, a.Values[:lo]...), rb.vals...), a.Values[hi:]...)
	a.Cols, a.Values = newCols, newVals
	for rr := r + 1; rr < len(a.RowPtr); rr++ {
		a.RowPtr[rr] += shift
	}
}

// EmptyRows returns the rows that have no stored entries. Such rows
// make the matrix structurally singular.
func (a *CRS) EmptyRows() []int {
	var empty []int
	for r := 0; r < a.Rows(); r++ {
		if a.RowPtr[r] == a.RowPtr[r+1] {
			empty = append(empty, r)
		}
	}
	return empty
}

// Diagonal returns the diagonal entries.
func (a *CRS) Diagonal() []float64 {
	d := make([]float64, a.Rows())
	for r := range d {
		d[r] = a.At(r, r)
	}
	return d
}

// Dense returns a dense copy of the matrix.
func (a *CRS) Dense() *mat.Dense {
	d := mat.NewDense(a.Rows(), a.NCols, nil)
	for r := 0; r < a.Rows(); r++ {
		for p := a.RowPtr[r]; p < a.RowPtr[r+1]; p++ {
			d.Set(r, a.Cols[p], a.Values[p])
		}
	}
	return d
}

// ILU is an incomplete LU factorization with zero fill-in. The unit
// lower triangle and the upper triangle share the sparsity pattern of
// the factored matrix.
type ILU struct {
	a    *CRS
	lu   []float64
	diag []int
}

// ILU0 computes the incomplete LU factorization of a square matrix.
// Every row must have a nonzero diagonal entry.
func (a *CRS) ILU0() (*ILU, error) {
	n := a.Rows()
	if n != a.NCols {
		return nil, fmt.Errorf("depgrid: ILU0 of non-square %dx%d matrix", n, a.NCols)
	}
	f := &ILU{a: a, lu: append([]float64(nil), a.Values...), diag: make([]int, n)}
	for r := 0; r < n; r++ {
		f.diag[r] = a.find(r, r)
		if f.diag[r] < 0 {
			return nil, fmt.Errorf("depgrid: ILU0: row %d has no diagonal entry", r)
		}
	}
	for i := 0; i < n; i++ {
		for p := a.RowPtr[i]; p < f.diag[i]; p++ {
			k := a.Cols[p]
			piv := f.lu[f.diag[k]]
			if piv == 0 {
				return nil, fmt.Errorf("depgrid: ILU0: zero pivot in row %d", k)
			}
			f.lu[p] /= piv
			for q := p + 1; q < a.RowPtr[i+1]; q++ {
				if kq := a.find(k, a.Cols[q]); kq >= 0 {
					f.lu[q] -= f.lu[p] * f.lu[kq]
				}
			}
		}
		if f.lu[f.diag[i]] == 0 {
			return nil, fmt.Errorf("depgrid: ILU0: zero pivot in row %d", i)
		}
	}
	return f, nil
}

// Solve sets x to the solution of L U x = b.
func (f *ILU) Solve(b, x []float64) {
	a := f.a
	n := a.Rows()
	for i := 0; i < n; i++ {
		s := b[i]
		for p := a.RowPtr[i]; p < f.diag[i]; p++ {
			s -= f.lu[p] * x[a.Cols[p]]
		}
		x[i] = s
	}
	for i := n - 1; i >= 0; i-- {
		s := x[i]
		for p := f.diag[i] + 1; p < a.RowPtr[i+1]; p++ {
			s -= f.lu[p] * x[a.Cols[p]]
		}
		x[i] = s / f.lu[f.diag[i]]
	}
}
