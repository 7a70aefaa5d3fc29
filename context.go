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
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
)

// Context carries the log sink and the profiler through every
// component of a model.
type Context struct {
	Log  logrus.FieldLogger
	Prof *Profile
}

// NewContext returns a context that logs to log. If log is nil,
// a new logrus.Logger writing to standard error is used.
func NewContext(log logrus.FieldLogger) *Context {
	if log == nil {
		log = logrus.New()
	}
	return &Context{Log: log, Prof: NewProfile()}
}

type timer struct {
	start time.Time
	total time.Duration
	calls int
}

type tracker struct {
	count int
	sum   float64
	last  float64
}

// Profile accumulates named timings and tracked quantities, such as
// iteration counts and residuals.
type Profile struct {
	timers   map[string]*timer
	trackers map[string]*tracker
}

// NewProfile returns an empty profile.
func NewProfile() *Profile {
	return &Profile{
		timers:   make(map[string]*timer),
		trackers: make(map[string]*tracker),
	}
}

// Start starts the named timer.
func (p *Profile) Start(name string) {
	t, ok := p.timers[name]
	if !ok {
		t = new(timer)
		p.timers[name] = t
	}
	t.start = time.Now()
}

// Stop stops the named timer and adds the elapsed time to its total.
func (p *Profile) Stop(name string) {
	t, ok := p.timers[name]
	if !ok || t.start.IsZero() {
		return
	}
	t.total += time.Since(t.start)
	t.calls++
	t.start = time.Time{}
}

// Time returns the total time and number of calls of the named timer.
func (p *Profile) Time(name string) (time.Duration, int) {
	if t, ok := p.timers[name]; ok {
		return t.total, t.calls
	}
	return 0, 0
}

// Track records a value of the named quantity.
func (p *Profile) Track(name string, v float64) {
	t, ok := p.trackers[name]
	if !ok {
		t = new(tracker)
		p.trackers[name] = t
	}
	t.count++
	t.sum += v
	t.last = v
}

// TrackIterations records an iteration count of the named solver.
func (p *Profile) TrackIterations(name string, n int) {
	p.Track(name+": iterations", float64(n))
}

// TrackResidual records a residual of the named solver.
func (p *Profile) TrackResidual(name string, r float64) {
	p.Track(name+": residual", r)
}

// Last returns the most recent value of the named quantity.
func (p *Profile) Last(name string) (float64, bool) {
	if t, ok := p.trackers[name]; ok {
		return t.last, true
	}
	return 0, false
}

// Write writes a tab-aligned report of the timers and tracked
// quantities.
func (p *Profile) Write(w io.Writer) error {
	ww := new(tabwriter.Writer)
	ww.Init(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(ww, "timer\tcumulative (s)\tcalls\taverage (s)\t")
	for _, name := range sortedKeys(p.timers) {
		t := p.timers[name]
		avg := 0.
		if t.calls > 0 {
			avg = t.total.Seconds() / float64(t.calls)
		}
		fmt.Fprintf(ww, "%s\t%.4f\t%d\t%.4g\t\n", name, t.total.Seconds(), t.calls, avg)
	}
	fmt.Fprintln(ww, "\t\t\t\t")
	fmt.Fprintln(ww, "quantity\tlast\tcount\taverage\t")
	for _, name := range sortedKeys(p.trackers) {
		t := p.trackers[name]
		fmt.Fprintf(ww, "%s\t%.4g\t%d\t%.4g\t\n", name, t.last, t.count, t.sum/float64(t.count))
	}
	return ww.Flush()
}

func sortedKeys(m interface{}) []string {
	var keys []string
	switch mm := m.(type) {
	case map[string]*timer:
		for k := range mm {
			keys = append(keys, k)
		}
	case map[string]*tracker:
		for k := range mm {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
