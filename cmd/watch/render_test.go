package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"chart-hub/src/client"
	"chart-hub/src/models"

	"github.com/stretchr/testify/assert"
)

func fixedRenderer(out *bytes.Buffer, category string, now time.Time) *renderer {
	r := newRenderer(out, category)
	r.now = func() time.Time { return now }
	return r
}

func TestRenderer_FormatsViewAndSkipsRepeats(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	r := fixedRenderer(&out, "", now)

	view := client.View{
		State:       client.StateConnected,
		Source:      models.SourceFresh,
		Connections: 2,
		LastUpdated: now.Add(-90 * time.Second),
		Charts: []models.MChartRecord{
			{ID: "a", ChartName: "CPU", ChartType: models.ChartTypeLine, Category: "system",
				DataPoints: []models.MDataPoint{{X: 0, Y: 1}, {X: 1, Y: 3}},
				Bounds:     &models.MBounds{MinX: 0, MaxX: 1, MinY: 1, MaxY: 3}},
			{ID: "b", ChartName: "Heap", ChartType: models.ChartTypeArea, Category: "memory"},
		},
	}

	r.render(view)
	r.render(view)

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "[connected]"))
	assert.Contains(t, text, "connections=2 source=fresh")
	assert.Contains(t, text, "updated 1 minute 30 seconds ago")
	assert.Contains(t, text, "y[1..3]")
	assert.Contains(t, text, "Heap")
}

func TestRenderer_CategoryFilterAndError(t *testing.T) {
	var out bytes.Buffer
	r := fixedRenderer(&out, "memory", time.Now())

	text := r.format(client.View{
		State:   client.StateReconnecting,
		Loading: true,
		Error:   "boom",
		Charts: []models.MChartRecord{
			{ID: "a", ChartName: "CPU", Category: "system"},
			{ID: "b", ChartName: "Heap", Category: "memory"},
		},
	})

	assert.Contains(t, text, "[reconnecting, loading]")
	assert.Contains(t, text, "source=-")
	assert.Contains(t, text, "error=boom")
	assert.NotContains(t, text, "updated")
	assert.NotContains(t, text, "CPU")
	assert.Contains(t, text, "Heap")
}
