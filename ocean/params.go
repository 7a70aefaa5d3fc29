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

package ocean

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// Params holds the nondimensional coefficients of the slab ocean.
type Params struct {
	KT    float64 // horizontal diffusivity of temperature
	KS    float64 // horizontal diffusivity of salinity
	Ooa   float64 // ocean-atmosphere heat exchange
	LHF   float64 // latent heat loss per unit evaporation
	Eta   float64 // evaporation per unit humidity deficit
	DQSO  float64 // saturation humidity slope at the reference temperature
	Gamma float64 // salinity change per unit freshwater flux
	TauS  float64 // salinity damping time scale
	Os    float64 // absorbed shortwave radiation
	Gs    float64 // surface salinity flux amplitude

	// Solver controls the ILU(0) preconditioned GMRES solve of the
	// ocean Jacobian.
	Solver SolverParams

	// Forcing holds the initial values of the continuation parameters.
	Forcing Forcing
}

// SolverParams are the stopping criteria of the ocean linear solve.
type SolverParams struct {
	Tolerance     float64
	MaxIterations int
	Restart       int
}

// Forcing holds the continuation parameters of the ocean.
type Forcing struct {
	Combined float64 // "Combined Forcing"
	Salinity float64 // "Salinity Forcing"
}

// DefaultParams returns the default parameters.
func DefaultParams() Params {
	return Params{
		KT:    0.05,
		KS:    0.05,
		Ooa:   0.6,
		LHF:   0.4,
		Eta:   0.8,
		DQSO:  0.6,
		Gamma: 0.2,
		TauS:  5,
		Os:    2,
		Gs:    0.5,
		Solver: SolverParams{
			Tolerance:     1e-10,
			MaxIterations: 500,
			Restart:       50,
		},
		Forcing: Forcing{Combined: 0, Salinity: 1},
	}
}

// ReadParams reads parameters in TOML format. Parameters that are not
// in r keep their default values.
func ReadParams(r io.Reader) (Params, error) {
	p := DefaultParams()
	if _, err := toml.DecodeReader(r, &p); err != nil {
		return p, fmt.Errorf("ocean: reading parameters: %v", err)
	}
	return p, nil
}
