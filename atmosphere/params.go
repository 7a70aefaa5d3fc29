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

package atmosphere

import (
	"fmt"
	"io"
	"math"

	"github.com/BurntSushi/toml"
)

// Params holds the physical parameters of the atmosphere model, in SI
// units unless noted.
type Params struct {
	RhoA  float64 // atmospheric density
	RhoO  float64 // ocean density
	HDimA float64 // atmospheric scale height
	HDimQ float64 // humidity scale height
	HDim  float64 // ocean vertical length scale
	CpA   float64 // atmospheric heat capacity
	CpO   float64 // ocean heat capacity
	D0    float64 // constant eddy diffusivity of heat
	Kappa float64 // eddy diffusivity of humidity
	ARad  float64 // longwave radiation constant
	BRad  float64 // longwave radiation slope
	Sun0  float64 // solar constant
	C0    float64 // atmospheric absorption coefficient
	CE    float64 // Dalton number
	CH    float64 // Stanton number
	UW    float64 // mean surface wind speed
	T0A   float64 // reference temperature of the atmosphere (°C)
	T0O   float64 // reference temperature of the ocean (°C)
	T0I   float64 // reference temperature of sea ice (°C)
	TDim  float64 // temperature scale (K)
	QDim  float64 // humidity scale (kg/kg)
	LV    float64 // latent heat of vaporization
	UDim  float64 // horizontal velocity scale of the ocean
	R0    float64 // radius of the earth
	PRef  float64 // surface pressure for saturation humidity (hPa)
	Cs    float64 // sublimation correction factor

	A0   float64 // reference albedo
	DA   float64 // albedo excursion
	TauC float64 // albedo adjustment time scale
	Tm   float64 // albedo switch temperature (nondimensional)
	EpM  float64 // albedo switch width in temperature
	Pa   float64 // albedo switch precipitation offset
	EpA  float64 // albedo switch width in precipitation

	// Forcing holds the initial values of the continuation parameters.
	Forcing Forcing
}

// Forcing holds the continuation parameters of the atmosphere.
type Forcing struct {
	Combined   float64 // "Combined Forcing"
	Solar      float64 // "Solar Forcing"
	Longwave   float64 // "Longwave Forcing"
	Humidity   float64 // "Humidity Forcing"
	LatentHeat float64 // "Latent Heat Forcing"
	Albedo     float64 // "Albedo Forcing"
	TDiffusion float64 // "Temperature Diffusion"
}

// DefaultParams returns present-day parameter values.
func DefaultParams() Params {
	return Params{
		RhoA:  1.25,
		RhoO:  1.024e3,
		HDimA: 8400,
		HDimQ: 1800,
		HDim:  4000,
		CpA:   1000,
		CpO:   4000,
		D0:    3.1e6,
		Kappa: 1e6,
		ARad:  216,
		BRad:  1.5,
		Sun0:  1360,
		C0:    0.43,
		CE:    1.3e-3,
		CH:    0.94e-3,
		UW:    8.5,
		T0A:   15,
		T0O:   15,
		T0I:   -15,
		TDim:  1,
		QDim:  0.01,
		LV:    2.5e6,
		UDim:  0.1,
		R0:    6.37e6,
		PRef:  1013.25,
		Cs:    0.9,
		A0:    0.3,
		DA:    0.2,
		TauC:  1,
		Tm:    0,
		EpM:   1,
		Pa:    0,
		EpA:   0.1,
		Forcing: Forcing{
			Combined:   0,
			Solar:      1,
			Longwave:   1,
			Humidity:   1,
			LatentHeat: 1,
			Albedo:     1,
			TDiffusion: 1,
		},
	}
}

// ReadParams reads parameters in TOML format. Parameters that are not
// in r keep their default values.
func ReadParams(r io.Reader) (Params, error) {
	p := DefaultParams()
	if _, err := toml.DecodeReader(r, &p); err != nil {
		return p, fmt.Errorf("atmosphere: reading parameters: %v", err)
	}
	return p, nil
}

// coefficients are the nondimensional groups derived from Params.
type coefficients struct {
	muoa    float64 // exchange coefficient
	bmua    float64 // longwave slope
	amua    float64 // longwave constant
	ad      float64 // heat diffusion
	as      float64 // shortwave absorbed by the atmosphere
	os      float64 // shortwave absorbed at the surface
	ooa     float64 // ocean-atmosphere heat exchange
	lvscale float64 // latent heat release
	phv     float64 // humidity diffusion
	eta     float64 // evaporation
	dqso    float64 // saturation humidity slope at the ocean temperature
	dqsi    float64 // saturation humidity slope at the ice temperature
}

func (p Params) coefficients() coefficients {
	var c coefficients
	c.muoa = p.RhoA * p.CH * p.CpA * p.UW
	c.bmua = p.BRad / c.muoa
	c.amua = (p.ARad + p.BRad*p.T0A) / c.muoa
	c.ad = p.RhoA * p.HDimA * p.CpA * p.D0 / (c.muoa * p.R0 * p.R0)
	c.as = p.Sun0 * (1 - p.C0) / (4 * c.muoa)
	c.os = p.Sun0 * p.C0 * p.R0 / (4 * p.UDim * p.RhoO * p.CpO * p.HDim)
	c.ooa = c.muoa * p.R0 / (p.UDim * p.RhoO * p.CpO * p.HDim)
	c.lvscale = p.LV * p.RhoA * p.CE * p.UW * p.QDim / c.muoa
	c.phv = p.Kappa / (p.UDim * p.R0)
	c.eta = p.CE * p.UW * p.R0 / (p.UDim * p.HDimQ)
	c.dqso = SaturationSlope(p.T0O, p.PRef) * p.TDim / p.QDim
	c.dqsi = SaturationSlope(p.T0I, p.PRef) * p.TDim / p.QDim
	return c
}

// SaturationHumidity returns the saturation specific humidity (kg/kg)
// at temperature t (°C) and pressure p (hPa), using Bolton's (1980) fit
// of the saturation vapour pressure.
func SaturationHumidity(t, p float64) float64 {
	es := 6.112 * math.Exp(17.67*t/(t+243.5))
	return 0.622 * es / (p - 0.378*es)
}

// SaturationSlope returns the derivative of SaturationHumidity with
// respect to temperature.
func SaturationSlope(t, p float64) float64 {
	es := 6.112 * math.Exp(17.67*t/(t+243.5))
	des := es * 17.67 * 243.5 / ((t + 243.5) * (t + 243.5))
	d := p - 0.378*es
	return 0.622 * p / (d * d) * des
}
