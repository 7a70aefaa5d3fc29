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
	"testing"

	"github.com/Knetic/govaluate"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestOutputter(t *testing.T) {
	fields := map[string][]float64{
		"TT":  {1, 2, 3, 6},
		"QSW": {0.5, 1.5, 2.5, 3.5},
		"E":   {0, 1, 0, 1},
	}
	tests := []struct {
		name, expr string
		want       []float64
	}{
		{"meanT", "mean(TT)", []float64{3}},
		{"rangeSW", "max(QSW) - min(QSW)", []float64{3}},
		{"totalE", "sum(E)", []float64{2}},
		{"T2", "TT * 2", []float64{2, 4, 6, 12}},
		{"expE", "exp(E)", []float64{1, math.E, 1, math.E}},
		{"TT", "TT", []float64{1, 2, 3, 6}},
	}
	vars := make(map[string]string)
	for _, tt := range tests {
		vars[tt.name] = tt.expr
	}
	o, err := NewOutputter(vars, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"E", "QSW", "TT"}; !cmp.Equal(o.ModelVariables(), want) {
		t.Errorf("model variables = %v, want %v", o.ModelVariables(), want)
	}
	r, err := o.Evaluate(fields)
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !cmp.Equal(r[tt.name], tt.want, cmpopts.EquateApprox(0, 1e-12)) {
				t.Errorf("%s = %v, want %v", tt.expr, r[tt.name], tt.want)
			}
		})
	}
}

func TestOutputterDerived(t *testing.T) {
	o, err := NewOutputter(map[string]string{
		"Tk":    "TT + 273.15",
		"TkMax": "max(Tk)",
		"T":     "Tk - TT",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"TT"}; !cmp.Equal(o.ModelVariables(), want) {
		t.Errorf("model variables = %v, want %v", o.ModelVariables(), want)
	}
	r, err := o.Evaluate(map[string][]float64{"TT": {1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]float64{
		"Tk":    {274.15, 275.15},
		"TkMax": {275.15},
		"T":     {273.15, 273.15},
	}
	if !cmp.Equal(r, want, cmpopts.EquateApprox(0, 1e-12)) {
		t.Errorf("got %v, want %v", r, want)
	}
}

func TestOutputterErrors(t *testing.T) {
	if _, err := NewOutputter(map[string]string{"a": "b + ", "b": "1"}, nil); err == nil {
		t.Error("invalid expression accepted")
	}
	if _, err := NewOutputter(map[string]string{"a": "b + 1", "b": "a + 1"}, nil); err == nil {
		t.Error("circular definition accepted")
	}
	o, err := NewOutputter(map[string]string{"a": "XX * 2"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Evaluate(map[string][]float64{"TT": {1}}); err == nil {
		t.Error("undefined field accepted")
	}
}

func TestOutputterCustomFunction(t *testing.T) {
	o, err := NewOutputter(map[string]string{"n": "count(TT)"}, map[string]govaluate.ExpressionFunction{
		"count": func(arg ...interface{}) (interface{}, error) {
			v, ok := arg[0].([]float64)
			if !ok {
				return nil, fmt.Errorf("count: %T", arg[0])
			}
			return float64(len(v)), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	r, err := o.Evaluate(map[string][]float64{"TT": {1, 2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(r["n"], []float64{3}) {
		t.Errorf("n = %v", r["n"])
	}
}
