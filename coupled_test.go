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
	"bytes"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/mat"
)

// scalarPair returns a coupled model of two 1×1 systems with unit
// diagonal blocks and coupling coefficient b.
func scalarPair(t *testing.T, scheme SolvingScheme, b float64) (*CoupledModel, *linearModel, *linearModel) {
	ctx, _ := testContext()
	o := newLinearModel(ctx, 1, 1, diagonal(1, 1))
	a := newLinearModel(ctx, 1, 1, diagonal(1, 1))
	o.coupling = mat.NewDense(1, 1, []float64{b})
	a.coupling = mat.NewDense(1, 1, []float64{b})
	cfg := DefaultConfig()
	cfg.SolvingScheme = scheme
	c, err := NewCoupledModel(ctx, o, a, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c, o, a
}

// spdSystem returns a coupled model whose Jacobian is symmetric
// positive definite, with 24 ocean and 16 atmosphere unknowns.
func spdSystem(t *testing.T, cfg Config, couplingScale float64) (*CoupledModel, *linearModel, *linearModel) {
	ctx, _ := testContext()
	rng := rand.New(rand.NewSource(1))
	o := newLinearModel(ctx, 4, 6, randomSPD(rng, 24))
	a := newLinearModel(ctx, 4, 4, randomSPD(rng, 16))
	o.coupling = randomDense(rng, 24, 16, couplingScale)
	a.coupling = mat.DenseCopyOf(o.coupling.T())
	c, err := NewCoupledModel(ctx, o, a, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c, o, a
}

// fullJacobian assembles [A B; C D] densely.
func fullJacobian(o, a *linearModel) *mat.Dense {
	no, na := o.layout.Dim(), a.layout.Dim()
	j := mat.NewDense(no+na, no+na, nil)
	j.Slice(0, no, 0, no).(*mat.Dense).Copy(o.jac)
	j.Slice(0, no, no, no+na).(*mat.Dense).Copy(o.coupling)
	j.Slice(no, no+na, 0, no).(*mat.Dense).Copy(a.coupling)
	j.Slice(no, no+na, no, no+na).(*mat.Dense).Copy(a.jac)
	return j
}

func onesVector(c *CoupledModel) *Vector {
	v := c.NewVector()
	for i := range v.Data {
		v.Data[i] = 1
	}
	return v
}

func TestBlockGSScalar(t *testing.T) {
	c, _, _ := scalarPair(t, BlockGS, 0.1)
	hook := recordLog(c)

	if err := c.Solve(onesVector(c)); err != nil {
		t.Fatal(err)
	}
	want := []float64{1 / 1.1, 1 / 1.1}
	if !cmp.Equal(c.Solution(View).Data, want, cmpopts.EquateApprox(0, 1e-10)) {
		t.Errorf("solution = %v, want %v", c.Solution(View).Data, want)
	}
	if w := warnings(hook); len(w) != 0 {
		t.Errorf("unexpected warnings: %v", w)
	}
	s := c.LastSolve()
	if !s.Converged || s.Scheme != BlockGS || s.Iterations > 10 {
		t.Errorf("stats = %+v", s)
	}
}

func TestBlockGSNotConverged(t *testing.T) {
	c, _, _ := scalarPair(t, BlockGS, 0.1)
	c.cfg.MaxGSIterations = 1
	hook := recordLog(c)
	if err := c.Solve(onesVector(c)); err != nil {
		t.Fatal(err)
	}
	w := warnings(hook)
	found := false
	for _, m := range w {
		if strings.Contains(m, "tolerance not reached") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings %v do not report the tolerance", w)
	}
	if c.LastSolve().Converged {
		t.Error("solve reported convergence after one iteration")
	}
}

func TestSchemesAgreeUncoupled(t *testing.T) {
	var ref []float64
	for _, scheme := range []SolvingScheme{Decoupled, BlockGS, IDR, GMRES} {
		t.Run(scheme.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SolvingScheme = scheme
			c, _, _ := spdSystem(t, cfg, 0)
			b := c.NewVector()
			for i := range b.Data {
				b.Data[i] = math.Sin(float64(i))
			}
			if err := c.Solve(b); err != nil {
				t.Fatal(err)
			}
			x := c.Solution(Copy).Data
			if ref == nil {
				ref = x
				return
			}
			if !cmp.Equal(x, ref, cmpopts.EquateApprox(0, 1e-7)) {
				t.Errorf("solution differs from decoupled solve:\n%v\n%v", x, ref)
			}
		})
	}
}

func TestKrylovSchemesCoupled(t *testing.T) {
	for _, scheme := range []SolvingScheme{IDR, GMRES} {
		t.Run(scheme.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SolvingScheme = scheme
			cfg.Krylov.Tolerance = 1e-8
			c, o, a := spdSystem(t, cfg, 0.02)
			b := onesVector(c)
			if err := c.Solve(b); err != nil {
				t.Fatal(err)
			}
			s := c.LastSolve()
			if !s.Converged {
				t.Errorf("not converged: %+v", s)
			}
			if s.Iterations > 50 {
				t.Errorf("iterations = %d", s.Iterations)
			}
			if r := c.ComputeResidual(b); r > 1e-6 {
				t.Errorf("residual = %g", r)
			}

			// Independent check against the dense system.
			var want mat.VecDense
			if err := want.SolveVec(fullJacobian(o, a), mat.NewVecDense(b.Len(), b.Data)); err != nil {
				t.Fatal(err)
			}
			if !cmp.Equal(c.Solution(View).Data, want.RawVector().Data, cmpopts.EquateApprox(0, 1e-6)) {
				t.Error("solution does not match dense solve")
			}
		})
	}
}

func TestBlockGSCoupled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SolvingScheme = BlockGS
	cfg.MaxGSIterations = 50
	c, _, _ := spdSystem(t, cfg, 0.02)
	b := onesVector(c)
	if err := c.Solve(b); err != nil {
		t.Fatal(err)
	}
	if r := c.ComputeResidual(b); r > 1e-9 {
		t.Errorf("residual = %g", r)
	}
}

func TestApplyMatrix(t *testing.T) {
	c, o, a := spdSystem(t, DefaultConfig(), 0.1)
	rng := rand.New(rand.NewSource(2))
	v := c.NewVector()
	for i := range v.Data {
		v.Data[i] = rng.NormFloat64()
	}
	out := c.NewVector()
	c.ApplyMatrix(v, out)

	var want mat.VecDense
	want.MulVec(fullJacobian(o, a), mat.NewVecDense(v.Len(), v.Data))
	if !cmp.Equal(out.Data, want.RawVector().Data, cmpopts.EquateApprox(0, 1e-12)) {
		t.Errorf("ApplyMatrix = %v, want %v", out.Data, want.RawVector().Data)
	}

	// Linearity.
	w := v.Copy()
	w.Scale(-2.5)
	out2 := c.NewVector()
	c.ApplyMatrix(w, out2)
	out.Scale(-2.5)
	if !cmp.Equal(out.Data, out2.Data, cmpopts.EquateApprox(0, 1e-12)) {
		t.Error("ApplyMatrix is not linear")
	}
}

func TestCoupledPrecon(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CoupledPrecon = true
	cfg.PreconGSIterations = 8
	c, _, _ := spdSystem(t, cfg, 0.02)

	v := onesVector(c)
	pv := c.NewVector()
	c.ApplyPrecon(v, pv)
	jpv := c.NewVector()
	c.ApplyMatrix(pv, jpv)
	jpv.Update(-1, v, 1)
	if r := jpv.Norm() / v.Norm(); r > 1e-6 {
		t.Errorf("coupled preconditioner is not close to the inverse: %g", r)
	}

	if err := c.Solve(v); err != nil {
		t.Fatal(err)
	}
	if s := c.LastSolve(); !s.Converged || s.Iterations > 5 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCoupledPreconSweep(t *testing.T) {
	c, _, _ := scalarPair(t, GMRES, 0.1)
	c.cfg.CoupledPrecon = true
	c.cfg.PreconGSIterations = 1
	out := c.NewVector()
	c.ApplyPrecon(onesVector(c), out)
	// x2 = 1, x1 = 1 - 0.1*x2, x2 = 1 - 0.1*x1.
	want := []float64{0.9, 0.91}
	if !cmp.Equal(out.Data, want, cmpopts.EquateApprox(0, 1e-14)) {
		t.Errorf("one sweep = %v, want %v", out.Data, want)
	}
}

func TestBlockDiagonalPrecon(t *testing.T) {
	c, o, a := spdSystem(t, DefaultConfig(), 0.5)
	o.jacobiPrecon, a.jacobiPrecon = true, true
	v := onesVector(c)
	out := c.NewVector()
	c.ApplyPrecon(v, out)
	for i := 0; i < o.layout.Dim(); i++ {
		if want := 1 / o.jac.At(i, i); math.Abs(out.Data[i]-want) > 1e-14 {
			t.Errorf("ocean %d: %g != %g", i, out.Data[i], want)
		}
	}
	for i := 0; i < a.layout.Dim(); i++ {
		if want := 1 / a.jac.At(i, i); math.Abs(out.Atmos()[i]-want) > 1e-14 {
			t.Errorf("atmosphere %d: %g != %g", i, out.Atmos()[i], want)
		}
	}
}

func TestInvalidScheme(t *testing.T) {
	c, _, _ := scalarPair(t, SolvingScheme(9), 0.1)
	hook := recordLog(c)
	c.Solution(View).Data[0] = 42
	err := c.Solve(onesVector(c))
	if err != ErrInvalidScheme {
		t.Errorf("err = %v", err)
	}
	if len(warnings(hook)) != 1 {
		t.Errorf("warnings = %v", warnings(hook))
	}
	if c.Solution(View).Data[0] != 42 {
		t.Error("solution changed")
	}

	if _, err := ParseSolvingScheme("bicgstab"); !errors.Is(err, ErrInvalidScheme) {
		t.Errorf("err = %v", err)
	}
	for _, name := range []string{"decoupled", "BLOCKGS", "idr", "GMRES"} {
		s, err := ParseSolvingScheme(name)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.EqualFold(s.String(), name) {
			t.Errorf("%s parsed as %v", name, s)
		}
	}
}

func TestSolveDimensionMismatch(t *testing.T) {
	c, _, _ := scalarPair(t, GMRES, 0.1)
	if err := c.Solve(NewVector(1, 2)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v", err)
	}
}

func TestAccessModes(t *testing.T) {
	c, o, _ := scalarPair(t, GMRES, 0.1)
	hook := recordLog(c)

	c.State(View).Data[0] = 3
	if o.State(View)[0] != 3 {
		t.Error("view does not alias the ocean state")
	}
	cp := c.State(Copy)
	cp.Data[0] = 4
	if c.State(View).Data[0] != 3 {
		t.Error("copy aliases the state")
	}
	if c.RHS(AccessMode('X')) != nil {
		t.Error("invalid mode returned a vector")
	}
	if o.Solution(AccessMode('X')) != nil {
		t.Error("invalid mode returned a slice")
	}
	// The sub-models share the coupled model's context.
	if n := len(warnings(hook)); n != 2 {
		t.Errorf("%d warnings, want 2", n)
	}
}

func TestHashing(t *testing.T) {
	run := func(hashing bool) ([]float64, *linearModel) {
		ctx, _ := testContext()
		o := newLinearModel(ctx, 2, 1, diagonal(2, 2))
		a := newLinearModel(ctx, 2, 1, diagonal(2, 3))
		cfg := DefaultConfig()
		cfg.UseHashing = hashing
		c, err := NewCoupledModel(ctx, o, a, cfg)
		if err != nil {
			t.Fatal(err)
		}
		c.State(View).Data[1] = 1
		c.ComputeRHS()
		c.ComputeRHS()
		c.ComputeJacobian()
		c.ComputeJacobian()
		c.State(View).Data[2] = 1
		c.ComputeRHS()
		c.SetPar("Combined Forcing", 0.5)
		c.ComputeRHS()
		return c.RHS(Copy).Data, o
	}

	on, o := run(true)
	if o.nRHS != 3 {
		t.Errorf("with hashing: %d right-hand side evaluations, want 3", o.nRHS)
	}
	if o.nJac != 1 {
		t.Errorf("with hashing: %d Jacobian evaluations, want 1", o.nJac)
	}
	if o.nSync != 3 {
		t.Errorf("with hashing: %d synchronizations, want 3", o.nSync)
	}

	off, o := run(false)
	if o.nRHS != 4 || o.nJac != 2 {
		t.Errorf("without hashing: %d, %d evaluations", o.nRHS, o.nJac)
	}
	if !cmp.Equal(on, off) {
		t.Errorf("hashing changes the result: %v != %v", on, off)
	}
}

func TestPreconRebuildStride(t *testing.T) {
	ctx, _ := testContext()
	o := newLinearModel(ctx, 1, 1, diagonal(1, 1))
	a := newLinearModel(ctx, 1, 1, diagonal(1, 1))
	cfg := DefaultConfig()
	cfg.PreconRebuildStride = 2
	c, err := NewCoupledModel(ctx, o, a, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		c.State(View).Data[0] = float64(i + 1)
		c.ComputeJacobian()
	}
	// Synchronizations 2 and 4 fall on the stride.
	if c.SyncCount() != 5 {
		t.Errorf("sync count = %d", c.SyncCount())
	}
	if o.nPrecon != 2 {
		t.Errorf("%d preconditioner rebuilds, want 2", o.nPrecon)
	}
}

func TestDecoupledSync(t *testing.T) {
	c, o, a := scalarPair(t, Decoupled, 0.1)
	c.State(View).Data[0] = 2
	c.ComputeRHS()
	c.ComputeJacobian()
	if o.nSync != 1 || a.nSync != 1 {
		t.Fatalf("decoupled compute synchronized: %d, %d", o.nSync, a.nSync)
	}
	c.PostProcess()
	if a.nSync != 2 || a.received[0] != 2 {
		t.Errorf("post-processing did not synchronize: %d, %v", a.nSync, a.received)
	}
}

func TestPar(t *testing.T) {
	c, o, a := scalarPair(t, GMRES, 0.1)
	hook := recordLog(c)

	c.SetPar("Combined Forcing", 0.5)
	if o.pars["Combined Forcing"] != 0.5 || a.pars["Combined Forcing"] != 0.5 {
		t.Error("parameter not set in both models")
	}
	o.pars["Combined Forcing"] = 0.3
	a.pars["Combined Forcing"] = 0.7
	if v, ok := c.Par("Combined Forcing"); !ok || v != 0.7 {
		t.Errorf("Par = %g, %v", v, ok)
	}
	a.pars["Atmosphere Only"] = 1
	if v, ok := c.Par("Atmosphere Only"); !ok || v != 1 {
		t.Errorf("Par = %g, %v", v, ok)
	}
	if _, ok := c.Par("Nothing"); ok {
		t.Error("unknown parameter found")
	}
	c.SetPar("Nothing", 1)
	if n := len(warnings(hook)); n != 2 {
		t.Errorf("%d warnings, want 2", n)
	}
}

func TestBlockCache(t *testing.T) {
	ctx, _ := testContext()
	o := newLinearModel(ctx, 2, 1, diagonal(2, 1))
	a := newLinearModel(ctx, 2, 1, diagonal(2, 1))
	c, err := NewCoupledModel(ctx, o, a, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	check := func(step string, want int) {
		if o.nBlock != want || a.nBlock != want {
			t.Errorf("%s: %d, %d block builds, want %d", step, o.nBlock, a.nBlock, want)
		}
	}
	check("initial", 1)
	if err := c.UpdateCouplingBlocks(); err != nil {
		t.Fatal(err)
	}
	check("same mask", 1)
	o.mask = []int{1, 0}
	if err := c.UpdateCouplingBlocks(); err != nil {
		t.Fatal(err)
	}
	check("new mask", 2)
	if !cmp.Equal(a.mask, []int{1, 0}) {
		t.Errorf("atmosphere mask = %v", a.mask)
	}
	o.mask = []int{0, 0}
	if err := c.UpdateCouplingBlocks(); err != nil {
		t.Fatal(err)
	}
	check("cached mask", 2)
	if err := c.RebuildCouplingBlocks(); err != nil {
		t.Fatal(err)
	}
	check("rebuild", 3)
}

func TestRebuildDiscardsCachedBlocks(t *testing.T) {
	ctx, _ := testContext()
	o := newLinearModel(ctx, 2, 1, diagonal(2, 1))
	a := newLinearModel(ctx, 2, 1, diagonal(2, 1))
	a.coupling = mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	c, err := NewCoupledModel(ctx, o, a, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	o.mask = []int{1, 0}
	if err := c.UpdateCouplingBlocks(); err != nil {
		t.Fatal(err)
	}

	// The atmosphere derivatives change without a land/sea mask change.
	a.coupling = mat.NewDense(2, 2, []float64{3, 1, 0, 2})
	if err := c.RebuildCouplingBlocks(); err != nil {
		t.Fatal(err)
	}
	o.mask = []int{0, 0}
	if err := c.UpdateCouplingBlocks(); err != nil {
		t.Fatal(err)
	}
	if o.nBlock != 4 {
		t.Errorf("%d block builds, want 4", o.nBlock)
	}
	v := onesVector(c)
	out := c.NewVector()
	_, cb := c.Blocks()
	cb.Apply(v, out)
	if want := []float64{0, 0, 4, 2}; !cmp.Equal(out.Data, want) {
		t.Errorf("atmosphere <- ocean block applied to ones = %v, want %v", out.Data, want)
	}
}

func TestSurfaceMismatch(t *testing.T) {
	ctx, _ := testContext()
	o := newLinearModel(ctx, 2, 1, diagonal(2, 1))
	a := newLinearModel(ctx, 2, 1, diagonal(2, 1))
	if _, err := NewCoupledModel(ctx, o, a, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	b := newLinearModel(ctx, 2, 2, diagonal(4, 1))
	if _, err := NewCoupledModel(ctx, o, b, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	d := newLinearModel(ctx, 3, 1, diagonal(3, 1))
	if _, err := NewCoupledModel(ctx, o, d, DefaultConfig()); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v", err)
	}
}

func TestReady(t *testing.T) {
	ctx, _ := testContext()
	o := newLinearModel(ctx, 1, 1, diagonal(1, 1))
	a := newLinearModel(ctx, 1, 1, diagonal(1, 1))
	o.readyAfter = 2
	cfg := DefaultConfig()
	if _, err := NewCoupledModel(ctx, o, a, cfg); err != nil {
		t.Fatal(err)
	}
	if o.readyCalls != 3 {
		t.Errorf("%d readiness checks, want 3", o.readyCalls)
	}

	o = newLinearModel(ctx, 1, 1, diagonal(1, 1))
	o.readyAfter = math.MaxInt32
	cfg.ReadyTimeout = time.Millisecond
	if _, err := NewCoupledModel(ctx, o, a, cfg); !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v", err)
	}
}

func TestDiagnostics(t *testing.T) {
	ctx, _ := testContext()
	o := newLinearModel(ctx, 2, 2, diagonal(4, 1))
	a := newLinearModel(ctx, 2, 3, diagonal(6, 1))
	c, err := NewCoupledModel(ctx, o, a, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	d := c.Diagnostics()
	if len(d["X2"]) != 4 || len(d["X3"]) != 6 {
		t.Errorf("diagnostics = %v", d)
	}
}

func TestProfileWrite(t *testing.T) {
	c, _, _ := scalarPair(t, GMRES, 0.1)
	if err := c.Solve(onesVector(c)); err != nil {
		t.Fatal(err)
	}
	if _, n := c.ctx.Prof.Time("CoupledModel: solve GMRES"); n != 1 {
		t.Errorf("%d solve timings", n)
	}
	if _, ok := c.ctx.Prof.Last("CoupledModel: solve GMRES: iterations"); !ok {
		t.Error("iterations not tracked")
	}
	var buf bytes.Buffer
	if err := c.ctx.Prof.Write(&buf); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"CoupledModel: solve GMRES", "CoupledModel: apply matrix", "residual"} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("profile report does not contain %q:\n%s", s, buf.String())
		}
	}
}
