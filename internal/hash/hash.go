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
along with EMIC.  If not, see <http://www.gnu.org/licenses/>.*/

// Package hash computes cache keys for model inputs.
package hash

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"math"

	"github.com/davecgh/go-spew/spew"
)

// Part tags keep parts of different types from colliding.
const (
	tagInts byte = iota + 1
	tagFloats
	tagOther
)

var printer = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	DisableMethods:          true,
	SpewKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Key returns a cache key for the inputs that coupling blocks are
// built from, such as the land/sea mask. []int and []float64 parts are
// hashed by value; any other part through its deterministic dump.
func Key(parts ...interface{}) string {
	h := fnv.New128a()
	for _, p := range parts {
		switch v := p.(type) {
		case []int:
			h.Write([]byte{tagInts})
			writeLen(h, len(v))
			var buf [8]byte
			for _, x := range v {
				binary.LittleEndian.PutUint64(buf[:], uint64(int64(x)))
				h.Write(buf[:])
			}
		case []float64:
			h.Write([]byte{tagFloats})
			writeFloats(h, v)
		default:
			h.Write([]byte{tagOther})
			printer.Fprintf(h, "%T %#v", p, p)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Floats returns a hash key over the IEEE-754 bit patterns of
// the values in vs. The key depends on the order of the values and
// on how they are split between the slices, so that
// Floats(a, b) != Floats(append(a, b...)) in general.
// NaN values with identical bit patterns hash identically.
func Floats(vs ...[]float64) string {
	h := fnv.New128a()
	for _, v := range vs {
		writeFloats(h, v)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func writeLen(h hash.Hash, n int) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}

func writeFloats(h hash.Hash, v []float64) {
	writeLen(h, len(v))
	var buf [8]byte
	for _, f := range v {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
}
