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
	"sort"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/Knetic/govaluate"
)

// Outputter computes output variables from the diagnostic fields of a
// model.
//
// outputVariables maps the names of the requested output variables to
// expressions that define how they are calculated. Expressions can use
// the diagnostic fields (for example TT or QSW), other output variables
// and functions. A scalar output used in another expression is applied
// at every point.
//
// An expression that reduces the fields to a single number, such as
// 'mean(TT)' or 'max(QSW) - min(QSW)', gives a scalar output. Any other
// expression is evaluated point by point, and the reducing functions
// then act on the value at each point.
type Outputter struct {
	outputVariables map[string]string
	modelVariables  []string
	sorted          []string // in dependency order
	outputFunctions map[string]govaluate.ExpressionFunction
}

// NewOutputter initializes a new Outputter and adds a set of default
// output functions:
//
// 'exp(x)' which applies the exponential function e^x.
//
// 'sum(x)', 'mean(x)', 'min(x)' and 'max(x)' which reduce a field over
// all grid points.
//
// outputFunctions may add to or replace the defaults.
func NewOutputter(outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	reduce := func(name string, f func([]float64) float64) govaluate.ExpressionFunction {
		return func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("emic: got %d arguments for function '%s', but needs 1", len(arg), name)
			}
			switch v := arg[0].(type) {
			case []float64:
				if len(v) == 0 {
					return nil, fmt.Errorf("emic: function '%s' of an empty field", name)
				}
				return f(v), nil
			case float64:
				return f([]float64{v}), nil
			default:
				return nil, fmt.Errorf("emic: invalid argument type %T for function '%s'", v, name)
			}
		}
	}
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"exp": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("emic: got %d arguments for function 'exp', but needs 1", len(arg))
			}
			v, ok := arg[0].(float64)
			if !ok {
				return nil, fmt.Errorf("emic: invalid argument type %T for function 'exp'", arg[0])
			}
			return math.Exp(v), nil
		},
		"sum":  reduce("sum", stats.StatsSum),
		"mean": reduce("mean", stats.StatsMean),
		"min":  reduce("min", stats.StatsMin),
		"max":  reduce("max", stats.StatsMax),
	}
	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}

	o := Outputter{
		outputVariables: make(map[string]string, len(outputVariables)),
		outputFunctions: defaultOutputFuncs,
	}
	for k, v := range outputVariables {
		o.outputVariables[k] = v
	}
	if err := o.order(); err != nil {
		return nil, err
	}
	return &o, nil
}

// order sorts the output variables so that each comes after the
// output variables its expression uses, and records the diagnostic
// fields that are needed to compute the outputs.
func (o *Outputter) order() error {
	deps := make(map[string][]string, len(o.outputVariables))
	var model []string
	for key, val := range o.outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(val, o.outputFunctions)
		if err != nil {
			return fmt.Errorf("emic: output variable %s: %v", key, err)
		}
		for _, v := range removeDuplicates(expression.Vars()) {
			if def, ok := o.outputVariables[v]; ok && def != v {
				deps[key] = append(deps[key], v)
			} else {
				model = append(model, v)
			}
		}
	}
	o.modelVariables = removeDuplicates(model)
	sort.Strings(o.modelVariables)

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(o.outputVariables))
	var visit func(k string) error
	visit = func(k string) error {
		switch state[k] {
		case visiting:
			return fmt.Errorf("emic: output variable %s is defined in terms of itself", k)
		case done:
			return nil
		}
		state[k] = visiting
		for _, d := range deps[k] {
			if err := visit(d); err != nil {
				return err
			}
		}
		state[k] = done
		o.sorted = append(o.sorted, k)
		return nil
	}
	for _, k := range o.Variables() {
		if err := visit(k); err != nil {
			return err
		}
	}
	return nil
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]struct{})
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = struct{}{}
		}
	}
	return result
}

// Variables returns the output variable names in sorted order.
func (o *Outputter) Variables() []string {
	names := make([]string, 0, len(o.outputVariables))
	for k := range o.outputVariables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ModelVariables returns the diagnostic fields that the output
// variables depend on.
func (o *Outputter) ModelVariables() []string { return o.modelVariables }

// CheckModelVars checks whether the diagnostic fields needed by the
// output variables are available.
func (o *Outputter) CheckModelVars(fields map[string][]float64) error {
	for _, v := range o.modelVariables {
		if _, ok := fields[v]; !ok {
			return fmt.Errorf("emic: undefined variable name '%s'", v)
		}
	}
	return nil
}

// Evaluate computes the output variables from fields. Scalar outputs
// are returned as slices of length one.
func (o *Outputter) Evaluate(fields map[string][]float64) (map[string][]float64, error) {
	if err := o.CheckModelVars(fields); err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(o.outputVariables))
	lookup := func(v string) []float64 {
		if def, ok := o.outputVariables[v]; ok && def != v {
			return out[v]
		}
		return fields[v]
	}
	for _, key := range o.sorted {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(o.outputVariables[key], o.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("emic: output variable %s: %v", key, err)
		}
		vars := removeDuplicates(expression.Vars())

		whole := make(map[string]interface{}, len(vars))
		for _, v := range vars {
			whole[v] = lookup(v)
		}
		if r, err := expression.Evaluate(whole); err == nil {
			if f, ok := r.(float64); ok {
				out[key] = []float64{f}
				continue
			}
		}

		n := 1
		for _, v := range vars {
			l := len(lookup(v))
			switch {
			case l == 1 || l == n:
			case n == 1:
				n = l
			default:
				return nil, fmt.Errorf("%w: output variable %s combines fields of length %d and %d",
					ErrDimensionMismatch, key, n, l)
			}
		}
		res := make([]float64, n)
		point := make(map[string]interface{}, len(vars))
		for i := range res {
			for _, v := range vars {
				if f := lookup(v); len(f) == 1 {
					point[v] = f[0]
				} else {
					point[v] = f[i]
				}
			}
			r, err := expression.Evaluate(point)
			if err != nil {
				return nil, fmt.Errorf("emic: output variable %s: %v", key, err)
			}
			f, ok := r.(float64)
			if !ok {
				return nil, fmt.Errorf("emic: output variable %s evaluates to %T", key, r)
			}
			res[i] = f
		}
		out[key] = res
	}
	return out, nil
}
