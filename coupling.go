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

import (
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"
	"github.com/spatialmodel/emic/depgrid"
	"github.com/spatialmodel/emic/internal/hash"
)

// A CouplingBlock holds the derivatives of the equations in one half
// of a coupled system with respect to the unknowns in the other half.
// It is immutable once built.
type CouplingBlock struct {
	From, To Half
	m        *depgrid.CRS
}

// NewCouplingBlock compresses the derivatives d (a To-dimension ×
// From-dimension array) into a coupling block.
func NewCouplingBlock(from, to Half, d *sparse.SparseArray) *CouplingBlock {
	if from == to {
		panic(fmt.Errorf("emic: coupling block from %v to itself", from))
	}
	return &CouplingBlock{From: from, To: to, m: depgrid.FromSparse(d)}
}

// Apply sets the To half of out to the block times the From half of in,
// and zeros the From half of out.
func (b *CouplingBlock) Apply(in, out *Vector) {
	b.m.MulVec(in.Half(b.From), out.Half(b.To))
	out.ZeroHalf(b.From)
}

// NNZ returns the number of stored derivatives.
func (b *CouplingBlock) NNZ() int { return b.m.NNZ() }

func (b *CouplingBlock) String() string {
	return fmt.Sprintf("%v <- %v coupling, %d nonzeros", b.To, b.From, b.NNZ())
}

// couplingPair is a pair of coupling blocks for one land/sea mask.
type couplingPair struct {
	b, c *CouplingBlock // ocean <- atmosphere, atmosphere <- ocean
}

// blockCache holds coupling blocks for recently used land/sea masks.
type blockCache struct {
	*lru.Cache
}

func newBlockCache(size int) blockCache {
	return blockCache{lru.New(size)}
}

// get returns the coupling blocks for mask, building them if they are
// not in the cache. It reports whether the blocks were rebuilt.
func (bc blockCache) get(mask []int, build func() couplingPair) (couplingPair, bool) {
	key := hash.Key(mask)
	if p, ok := bc.Get(key); ok {
		return p.(couplingPair), false
	}
	p := build()
	bc.Add(key, p)
	return p, true
}
