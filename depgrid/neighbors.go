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

// Neighbour locations. The 27 locations around a grid point are split
// into three horizontal planes: the point's own plane (1-9), the plane
// below it (10-18) and the plane above it (19-27). Within each plane the
// locations form a 3x3 block, numbered row-major over (i-1..i+1, j-1..j+1):
//
//	 3  6  9        12 15 18        21 24 27
//	 2  5  8        11 14 17        20 23 26
//	 1  4  7        10 13 16        19 22 25
//	(center)        (below)         (above)
//
// j increases upwards and i to the right. A two dimensional model uses
// the first nine locations only.
const (
	SouthWest = 1
	West      = 2
	NorthWest = 3
	South     = 4
	Center    = 5
	North     = 6
	SouthEast = 7
	East      = 8
	NorthEast = 9
	Below     = 14
	Above     = 23
)

// Stencil sizes.
const (
	Stencil2D = 9
	Stencil3D = 27
)

// Shift returns the grid offset (di,dj,dk) of neighbour location loc.
func Shift(loc int) (di, dj, dk int) {
	p := (loc - 1) / 9
	r := (loc - 1) % 9
	di = r/3 - 1
	dj = r%3 - 1
	switch p {
	case 1:
		dk = -1
	case 2:
		dk = 1
	}
	return
}
