package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"chart-hub/src/client"
	"chart-hub/src/models"

	"github.com/hako/durafmt"
)

// -----------------------------------------------------------------------------

// renderer prints a compact summary of each View, skipping repeats.
type renderer struct {
	mu       sync.Mutex
	out      io.Writer
	category string
	last     string
	now      func() time.Time
}

func newRenderer(out io.Writer, category string) *renderer {
	return &renderer{out: out, category: category, now: time.Now}
}

func (r *renderer) render(v client.View) {
	text := r.format(v)

	r.mu.Lock()
	defer r.mu.Unlock()
	if text == r.last {
		return
	}
	r.last = text
	fmt.Fprint(r.out, text)
}

// format is pure apart from the clock, so it is what the tests look at.
func (r *renderer) format(v client.View) string {
	status := v.State.String()
	if v.Loading {
		status += ", loading"
	}
	header := fmt.Sprintf("[%s] connections=%d source=%s", status, v.Connections, sourceLabel(v.Source))
	if !v.LastUpdated.IsZero() {
		age := r.now().Sub(v.LastUpdated).Truncate(time.Second)
		header += " updated " + durafmt.Parse(age).LimitFirstN(2).String() + " ago"
	}
	if v.Error != "" {
		header += " error=" + v.Error
	}
	text := header + "\n"

	charts := v.Charts
	if r.category != "" {
		charts = v.ByCategory(r.category)
	}
	for _, c := range charts {
		text += "  " + formatChart(c) + "\n"
	}
	return text
}

func sourceLabel(s models.DataSource) string {
	if s == "" {
		return "-"
	}
	return string(s)
}

func formatChart(c models.MChartRecord) string {
	line := fmt.Sprintf("%-24s %-6s %-10s %3d pts", c.ChartName, c.ChartType, c.Category, len(c.DataPoints))
	if c.Bounds != nil {
		line += fmt.Sprintf("  x[%g..%g] y[%g..%g]", c.Bounds.MinX, c.Bounds.MaxX, c.Bounds.MinY, c.Bounds.MaxY)
	}
	return line
}
