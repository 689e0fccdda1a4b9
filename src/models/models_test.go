package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBounds(t *testing.T) {
	assert.Nil(t, ComputeBounds(nil))
	assert.Nil(t, ComputeBounds([]MDataPoint{}))

	b := ComputeBounds([]MDataPoint{{X: 3, Y: -1}, {X: -2, Y: 7}, {X: 0, Y: 0}})
	require.NotNil(t, b)
	assert.Equal(t, MBounds{MinX: -2, MaxX: 3, MinY: -1, MaxY: 7}, *b)

	single := ComputeBounds([]MDataPoint{{X: 1, Y: 1}})
	assert.Equal(t, MBounds{MinX: 1, MaxX: 1, MinY: 1, MaxY: 1}, *single)
}

func TestNewChartRecord_CopiesPointsAndDerives(t *testing.T) {
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	raw := MRawChart{
		ID:         "c1",
		ChartName:  "CPU",
		ChartType:  ChartTypeLine,
		DataPoints: []MDataPoint{{X: 0, Y: 2}, {X: 1, Y: 4}},
	}

	rec := NewChartRecord(raw, at)
	raw.DataPoints[0].Y = 100

	assert.Equal(t, 2, rec.PointCount)
	assert.Equal(t, 2.0, rec.DataPoints[0].Y)
	assert.Equal(t, 4.0, rec.Bounds.MaxY)
	assert.Equal(t, at, rec.LastUpdated)

	empty := NewChartRecord(MRawChart{ID: "c2"}, at)
	assert.Nil(t, empty.Bounds)
	assert.Equal(t, 0, empty.PointCount)
	assert.NotNil(t, empty.DataPoints)
}

func TestChartTypeValid(t *testing.T) {
	assert.True(t, ChartTypeArea.Valid())
	assert.False(t, ChartType("pie").Valid())
}

func TestLookups(t *testing.T) {
	charts := []MChartRecord{
		{ID: "a", Category: "system"},
		{ID: "b", Category: "memory"},
		{ID: "c", Category: "system"},
	}

	got, ok := ChartByID(charts, "b")
	assert.True(t, ok)
	assert.Equal(t, "memory", got.Category)

	_, ok = ChartByID(charts, "zzz")
	assert.False(t, ok)

	system := ChartsByCategory(charts, "system")
	require.Len(t, system, 2)
	assert.Equal(t, "a", system[0].ID)
	assert.Equal(t, "c", system[1].ID)

	none := ChartsByCategory(nil, "system")
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSnapshotNilSafe(t *testing.T) {
	var snap *MSnapshot
	assert.Equal(t, 0, snap.Len())
	assert.Nil(t, snap.Records())
}

func TestClientMessageForce(t *testing.T) {
	var msg MClientMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"requestData"}`), &msg))
	assert.False(t, msg.Force())

	require.NoError(t, json.Unmarshal([]byte(`{"type":"requestData","payload":{"force":true}}`), &msg))
	assert.True(t, msg.Force())
}

func TestServerMessageWireShape(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	snap := &MSnapshot{Charts: []MChartRecord{{ID: "a"}}, FetchedAt: at}

	raw, err := json.Marshal(NewDataMessage(snap, SourceFresh))
	require.NoError(t, err)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "data", data["type"])
	assert.Equal(t, "fresh", data["source"])
	assert.Equal(t, 1700000000123.0, data["timestamp"])
	assert.NotContains(t, data, "error")
	assert.NotContains(t, data, "cacheStatus")

	raw, err = json.Marshal(NewPongMessage(3, CacheStatusEmpty, 0, 42))
	require.NoError(t, err)
	var pong map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &pong))
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, 3.0, pong["connections"])
	assert.Equal(t, "empty", pong["cacheStatus"])
	assert.NotContains(t, pong, "data")

	errMsg := NewErrorMessage("boom", 7)
	assert.Equal(t, MsgError, errMsg.Type)
	assert.Equal(t, int64(7), errMsg.Timestamp)

	nilSnap := NewDataMessage(nil, SourceCache)
	assert.NotNil(t, nilSnap.Data)
	assert.Zero(t, nilSnap.Timestamp)
}
