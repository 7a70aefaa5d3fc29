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
	"math"
)

// Grid is a horizontal longitude/latitude grid shared by the ocean and
// the atmosphere. Limits are in degrees.
type Grid struct {
	N, M       int
	XMin, XMax float64 // longitude
	YMin, YMax float64 // latitude

	// Periodic makes the grid wrap around in longitude.
	Periodic bool
}

// Validate checks that the grid is usable.
func (g Grid) Validate() error {
	switch {
	case g.N < 1 || g.M < 1:
		return fmt.Errorf("emic: invalid grid size %dx%d", g.N, g.M)
	case g.XMax <= g.XMin || g.YMax <= g.YMin:
		return fmt.Errorf("emic: invalid grid limits [%g,%g]x[%g,%g]", g.XMin, g.XMax, g.YMin, g.YMax)
	case g.YMin <= -90 || g.YMax >= 90:
		return fmt.Errorf("emic: grid latitudes [%g,%g] include a pole", g.YMin, g.YMax)
	}
	return nil
}

// Coordinates holds the grid positions in radians.
type Coordinates struct {
	DX, DY float64
	XC     []float64 // cell centers, length N
	YC     []float64 // cell centers, length M
	YV     []float64 // cell faces in latitude, length M+1
}

// Coordinates returns the positions of the cell centers and faces.
func (g Grid) Coordinates() Coordinates {
	const deg = math.Pi / 180
	c := Coordinates{
		DX: (g.XMax - g.XMin) * deg / float64(g.N),
		DY: (g.YMax - g.YMin) * deg / float64(g.M),
		XC: make([]float64, g.N),
		YC: make([]float64, g.M),
		YV: make([]float64, g.M+1),
	}
	for i := range c.XC {
		c.XC[i] = g.XMin*deg + (float64(i)+0.5)*c.DX
	}
	for j := range c.YC {
		c.YC[j] = g.YMin*deg + (float64(j)+0.5)*c.DY
	}
	for j := range c.YV {
		c.YV[j] = g.YMin*deg + float64(j)*c.DY
	}
	return c
}

// AreaWeights returns cos(latitude)·dx·dy for every horizontal point,
// ordered with longitude varying fastest.
func (g Grid) AreaWeights() []float64 {
	c := g.Coordinates()
	w := make([]float64, 0, g.N*g.M)
	for j := 0; j < g.M; j++ {
		for i := 0; i < g.N; i++ {
			w = append(w, math.Cos(c.YC[j])*c.DX*c.DY)
		}
	}
	return w
}
