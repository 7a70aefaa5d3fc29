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
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emic/internal/hash"
	"github.com/spatialmodel/emic/krylov"
)

// Config holds the settings of a CoupledModel.
type Config struct {
	// SolvingScheme selects the linear solver.
	SolvingScheme SolvingScheme

	// UseHashing enables skipping synchronization, right-hand side and
	// Jacobian computations when the state and parameters have not
	// changed since the last computation.
	UseHashing bool

	// MaxGSIterations and GSTolerance are the iteration limit and
	// relative residual tolerance of the block Gauss-Seidel scheme.
	MaxGSIterations int
	GSTolerance     float64

	// PreconRebuildStride is the number of synchronizations between
	// rebuilds of the ocean preconditioner. Zero never requests a
	// rebuild.
	PreconRebuildStride int

	// CoupledPrecon enables block Gauss-Seidel preconditioning with
	// PreconGSIterations sub-iterations. Otherwise the preconditioner
	// is block diagonal.
	CoupledPrecon      bool
	PreconGSIterations int

	// Krylov holds the settings of the IDR and GMRES schemes.
	Krylov krylov.Settings

	// IDRS is the IDR shadow space dimension, and
	// ClearSearchSpacePeriod the number of IDR solves between clearing
	// of the shadow space. Zero never clears it.
	IDRS                   int
	ClearSearchSpacePeriod int

	// ReadyTimeout bounds the wait for sub-models to become ready.
	ReadyTimeout time.Duration

	// BlockCacheSize is the number of land/sea masks for which
	// coupling blocks are kept.
	BlockCacheSize int
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		SolvingScheme:          GMRES,
		UseHashing:             true,
		MaxGSIterations:        20,
		GSTolerance:            1e-10,
		PreconRebuildStride:    1,
		PreconGSIterations:     1,
		Krylov:                 krylov.DefaultSettings(),
		IDRS:                   4,
		ClearSearchSpacePeriod: 10,
		ReadyTimeout:           time.Minute,
		BlockCacheSize:         4,
	}
}

// CoupledModel combines an ocean and an atmosphere model into a single
// system
//
//	| A  B | |x1|   |b1|
//	| C  D | |x2| = |b2|
//
// where A and D are the Jacobians of the ocean and the atmosphere and
// B and C are the coupling blocks. The coupled model owns the state,
// right-hand side and solution vectors; the sub-models work on views
// of their halves.
type CoupledModel struct {
	ctx   *Context
	cfg   Config
	ocean OceanModel
	atmos AtmosphereModel

	state, rhs, sol *Vector

	b, c   *CouplingBlock
	blocks blockCache

	idr       *krylov.IDR
	idrSolves int

	pars                        map[string]float64
	syncHash, rhsHash, jacHash string
	syncCtr                     int
	lastSolve                   SolveStats
}

// NewCoupledModel couples ocean and atmos. It waits for sub-models that
// implement Readier to become ready, binds both models to the combined
// vectors, builds the coupling blocks and synchronizes the models.
func NewCoupledModel(ctx *Context, ocean OceanModel, atmos AtmosphereModel, cfg Config) (*CoupledModel, error) {
	if ctx == nil {
		ctx = NewContext(nil)
	}
	for _, m := range []struct {
		name  string
		model interface{}
	}{{"ocean", ocean}, {"atmosphere", atmos}} {
		if err := waitReady(ctx, m.name, m.model, cfg.ReadyTimeout); err != nil {
			return nil, err
		}
	}

	lo, la := ocean.Layout(), atmos.Layout()
	if lo.N*lo.M != la.N*la.M {
		return nil, fmt.Errorf("%w: ocean surface has %d points, atmosphere %d",
			ErrDimensionMismatch, lo.N*lo.M, la.N*la.M)
	}
	if cfg.IDRS < 1 {
		cfg.IDRS = 1
	}
	if cfg.BlockCacheSize < 1 {
		cfg.BlockCacheSize = 1
	}

	c := &CoupledModel{
		ctx:    ctx,
		cfg:    cfg,
		ocean:  ocean,
		atmos:  atmos,
		state:  NewVector(lo.Dim(), la.Dim()),
		rhs:    NewVector(lo.Dim(), la.Dim()),
		sol:    NewVector(lo.Dim(), la.Dim()),
		blocks: newBlockCache(cfg.BlockCacheSize),
		idr:    krylov.NewIDR(cfg.IDRS, 1),
		pars:   make(map[string]float64),
	}
	if err := ocean.Bind(Storage{State: c.state.Ocean(), RHS: c.rhs.Ocean(), Solution: c.sol.Ocean()}); err != nil {
		return nil, fmt.Errorf("emic: binding ocean storage: %v", err)
	}
	if err := atmos.Bind(Storage{State: c.state.Atmos(), RHS: c.rhs.Atmos(), Solution: c.sol.Atmos()}); err != nil {
		return nil, fmt.Errorf("emic: binding atmosphere storage: %v", err)
	}
	if err := c.UpdateCouplingBlocks(); err != nil {
		return nil, err
	}
	c.synchronize()

	ctx.Log.WithFields(logrus.Fields{
		"ocean":      lo.String(),
		"atmosphere": la.String(),
		"scheme":     cfg.SolvingScheme.String(),
		"hashing":    cfg.UseHashing,
	}).Info("coupled model initialized")
	return c, nil
}

// waitReady retries the readiness check of m with exponential backoff.
func waitReady(ctx *Context, name string, m interface{}, timeout time.Duration) error {
	r, ok := m.(Readier)
	if !ok {
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout
	err := backoff.RetryNotify(r.Ready, b, func(err error, d time.Duration) {
		ctx.Log.WithFields(logrus.Fields{
			"model": name,
			"retry": d,
		}).Warn(err)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotReady, name, err)
	}
	return nil
}

// UpdateCouplingBlocks passes the ocean's land/sea mask to the
// atmosphere and selects the coupling blocks for it, building them
// if they are not cached.
func (c *CoupledModel) UpdateCouplingBlocks() error {
	mask := c.ocean.SurfaceMask()
	c.atmos.SetSurfaceMask(mask)
	var err error
	p, rebuilt := c.blocks.get(mask, func() couplingPair {
		var p couplingPair
		p, err = c.buildCouplingBlocks()
		return p
	})
	if err != nil {
		c.blocks.Remove(hash.Key(mask))
		return err
	}
	c.setBlocks(p, rebuilt)
	return nil
}

// RebuildCouplingBlocks rebuilds the coupling blocks regardless of the
// cache, for changes in sub-model inputs other than the land/sea mask
// that affect the coupling derivatives, such as the sea ice mask. Blocks
// cached for other land/sea masks were built from the old inputs and
// are discarded.
func (c *CoupledModel) RebuildCouplingBlocks() error {
	mask := c.ocean.SurfaceMask()
	c.atmos.SetSurfaceMask(mask)
	p, err := c.buildCouplingBlocks()
	if err != nil {
		return err
	}
	c.blocks = newBlockCache(c.cfg.BlockCacheSize)
	c.blocks.Add(hash.Key(mask), p)
	c.setBlocks(p, true)
	return nil
}

func (c *CoupledModel) setBlocks(p couplingPair, rebuilt bool) {
	c.b, c.c = p.b, p.c
	c.Invalidate()
	c.ctx.Log.WithFields(logrus.Fields{
		"B":       c.b.String(),
		"C":       c.c.String(),
		"rebuilt": rebuilt,
	}).Debug("coupling blocks updated")
}

func (c *CoupledModel) buildCouplingBlocks() (couplingPair, error) {
	lo, la := c.ocean.Layout(), c.atmos.Layout()
	b := c.ocean.AtmosphereBlock(la)
	cc := c.atmos.OceanBlock(lo)
	if len(b.Shape) != 2 || b.Shape[0] != lo.Dim() || b.Shape[1] != la.Dim() {
		return couplingPair{}, fmt.Errorf("%w: ocean coupling block has shape %v, want [%d %d]",
			ErrDimensionMismatch, b.Shape, lo.Dim(), la.Dim())
	}
	if len(cc.Shape) != 2 || cc.Shape[0] != la.Dim() || cc.Shape[1] != lo.Dim() {
		return couplingPair{}, fmt.Errorf("%w: atmosphere coupling block has shape %v, want [%d %d]",
			ErrDimensionMismatch, cc.Shape, la.Dim(), lo.Dim())
	}
	return couplingPair{
		b: NewCouplingBlock(AtmosHalf, OceanHalf, b),
		c: NewCouplingBlock(OceanHalf, AtmosHalf, cc),
	}, nil
}

// Blocks returns the coupling blocks B (ocean <- atmosphere) and
// C (atmosphere <- ocean).
func (c *CoupledModel) Blocks() (b, cc *CouplingBlock) { return c.b, c.c }

// Invalidate forgets the synchronization, right-hand side and Jacobian
// hashes, so that the next computations are carried out regardless of
// the state. It must be called after changing sub-model inputs that
// are not part of the state or the continuation parameters.
func (c *CoupledModel) Invalidate() {
	c.syncHash, c.rhsHash, c.jacHash = "", "", ""
}

// parValues returns the continuation parameters set so far, ordered
// by name.
func (c *CoupledModel) parValues() []float64 {
	names := make([]string, 0, len(c.pars))
	for n := range c.pars {
		names = append(names, n)
	}
	sort.Strings(names)
	v := make([]float64, len(names))
	for i, n := range names {
		v[i] = c.pars[n]
	}
	return v
}

// getHash returns the hash of the state and the continuation parameters.
func (c *CoupledModel) getHash() string {
	return hash.Floats(c.state.Data, c.parValues())
}

// synchronize passes the atmosphere state to the ocean and the sea
// surface temperature to the atmosphere.
func (c *CoupledModel) synchronize() {
	h := hash.Floats(c.state.Data)
	if c.cfg.UseHashing && h == c.syncHash {
		return
	}
	c.ctx.Prof.Start("CoupledModel: synchronize")
	defer c.ctx.Prof.Stop("CoupledModel: synchronize")
	c.syncHash = h

	c.ocean.SetAtmosphere(c.state.Atmos(), c.atmos.Layout())
	c.atmos.SetOceanTemperature(c.ocean.SurfaceTemperature())
	c.syncCtr++
}

// SyncCount returns the number of synchronizations carried out.
func (c *CoupledModel) SyncCount() int { return c.syncCtr }

// ComputeRHS computes the right-hand sides of both sub-models.
func (c *CoupledModel) ComputeRHS() {
	if c.cfg.SolvingScheme != Decoupled {
		c.synchronize()
	}
	h := c.getHash()
	if c.cfg.UseHashing && h == c.rhsHash {
		c.ctx.Log.Debug("right-hand side up to date")
		return
	}
	c.ctx.Prof.Start("CoupledModel: compute RHS")
	defer c.ctx.Prof.Stop("CoupledModel: compute RHS")
	c.rhsHash = h
	c.ocean.ComputeRHS()
	c.atmos.ComputeRHS()
}

// ComputeJacobian computes the Jacobians of both sub-models. Every
// PreconRebuildStride synchronizations the ocean preconditioner is
// marked for rebuilding.
func (c *CoupledModel) ComputeJacobian() {
	if c.cfg.SolvingScheme != Decoupled {
		c.synchronize()
	}
	h := c.getHash()
	if c.cfg.UseHashing && h == c.jacHash {
		c.ctx.Log.Debug("Jacobian up to date")
		return
	}
	c.ctx.Prof.Start("CoupledModel: compute Jacobian")
	defer c.ctx.Prof.Stop("CoupledModel: compute Jacobian")
	c.jacHash = h
	if c.cfg.PreconRebuildStride > 0 && c.syncCtr%c.cfg.PreconRebuildStride == 0 {
		c.ocean.RecomputePreconditioner()
	}
	c.ocean.ComputeJacobian()
	c.atmos.ComputeJacobian()
}

// ComputeMassMat computes the mass matrices of both sub-models.
func (c *CoupledModel) ComputeMassMat() {
	c.ocean.ComputeMassMat()
	c.atmos.ComputeMassMat()
}

// Par returns the value of the named continuation parameter. If both
// sub-models know the parameter, the larger value is returned.
func (c *CoupledModel) Par(name string) (float64, bool) {
	vo, oko := c.ocean.Par(name)
	va, oka := c.atmos.Par(name)
	switch {
	case oko && oka:
		return math.Max(vo, va), true
	case oko:
		return vo, true
	case oka:
		return va, true
	}
	c.ctx.Log.WithField("parameter", name).Warn("unknown continuation parameter")
	return 0, false
}

// SetPar sets the named continuation parameter in both sub-models.
func (c *CoupledModel) SetPar(name string, value float64) {
	oko := c.ocean.SetPar(name, value)
	oka := c.atmos.SetPar(name, value)
	if !oko && !oka {
		c.ctx.Log.WithField("parameter", name).Warn("unknown continuation parameter")
		return
	}
	c.pars[name] = value
}

// PreProcess calls the sub-models' PreProcess.
func (c *CoupledModel) PreProcess() {
	c.ocean.PreProcess()
	c.atmos.PreProcess()
}

// PostProcess calls the sub-models' PostProcess. Without coupling in the
// solve, this is where the sub-models exchange their states.
func (c *CoupledModel) PostProcess() {
	if c.cfg.SolvingScheme == Decoupled {
		c.synchronize()
	}
	c.ocean.PostProcess()
	c.atmos.PostProcess()
}

func (c *CoupledModel) access(mode AccessMode, v *Vector) *Vector {
	switch mode {
	case View:
		return v
	case Copy:
		return v.Copy()
	default:
		c.ctx.Log.WithField("mode", string(mode)).Warn(ErrInvalidMode)
		return nil
	}
}

// State returns the combined state.
func (c *CoupledModel) State(mode AccessMode) *Vector { return c.access(mode, c.state) }

// RHS returns the combined right-hand side.
func (c *CoupledModel) RHS(mode AccessMode) *Vector { return c.access(mode, c.rhs) }

// Solution returns the combined solution of the last solve.
func (c *CoupledModel) Solution(mode AccessMode) *Vector { return c.access(mode, c.sol) }

// NewVector returns a zero vector with the dimensions of the coupled
// system.
func (c *CoupledModel) NewVector() *Vector {
	return NewVector(len(c.state.Ocean()), len(c.state.Atmos()))
}

// Config returns the settings of c.
func (c *CoupledModel) Config() Config { return c.cfg }

// Ocean returns the ocean model.
func (c *CoupledModel) Ocean() OceanModel { return c.ocean }

// Atmosphere returns the atmosphere model.
func (c *CoupledModel) Atmosphere() AtmosphereModel { return c.atmos }

// Diagnostics returns the diagnostic fields of the sub-models that
// provide them.
func (c *CoupledModel) Diagnostics() map[string][]float64 {
	out := make(map[string][]float64)
	for _, m := range []interface{}{c.ocean, c.atmos} {
		if d, ok := m.(Diagnoser); ok {
			for k, v := range d.Diagnostics() {
				out[k] = v
			}
		}
	}
	return out
}
