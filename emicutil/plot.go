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

package emicutil

import (
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotResiduals saves a PNG plot of the Newton residual history to
// path, on a logarithmic scale.
func PlotResiduals(path string, h History) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Newton convergence"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "‖F(x)‖"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{}

	xy := make(plotter.XYs, len(h.Residuals))
	n := 0
	for i, r := range h.Residuals {
		if r <= 0 {
			// Not representable on a log scale.
			continue
		}
		xy[n].X = float64(i)
		xy[n].Y = r
		n++
	}
	xy = xy[:n]
	if len(xy) == 0 {
		return fmt.Errorf("emicutil: no positive residuals to plot")
	}
	if err := plotutil.AddLinePoints(p, "residual", xy); err != nil {
		return err
	}

	wt, err := p.WriterTo(4*vg.Inch, 3*vg.Inch, "png")
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("emicutil: creating residual plot: %v", err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
