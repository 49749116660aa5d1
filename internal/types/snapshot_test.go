package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deliverySnapshot() Snapshot {
	return NewSnapshot(map[string]any{
		"id":            int64(42),
		"status":        "In Transit",
		"tracking_code": "TRK-42",
		"updated_at":    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		"rider": map[string]any{
			"id":                int64(7),
			"current_latitude":  1.0,
			"current_longitude": 2.0,
		},
		"organization": nil,
	})
}

func TestSnapshot_Accessors(t *testing.T) {
	s := deliverySnapshot()

	v, ok := s.Get("id")
	assert.True(t, ok)
	assert.Equal(t, int64(42), v)

	assert.True(t, s.Has("organization"))
	assert.True(t, s.IsAbsent("organization"))
	assert.True(t, s.IsAbsent("never_captured"))
	assert.False(t, s.Has("never_captured"))

	rider, ok := s.Nested("rider")
	require.True(t, ok)
	rid, _ := rider.Get("id")
	assert.Equal(t, int64(7), rid)

	lat, ok := s.Lookup("rider.current_latitude")
	assert.True(t, ok)
	assert.Equal(t, 1.0, lat)

	_, ok = s.Lookup("organization.owner.email")
	assert.False(t, ok, "lookup through an absent relation must fail")

	text, ok := s.Text("id")
	assert.True(t, ok)
	assert.Equal(t, "42", text)

	assert.Equal(t, []string{"id", "organization", "rider", "status", "tracking_code", "updated_at"}, s.Keys())
}

func TestSnapshot_MarshalIsDeterministic(t *testing.T) {
	a, err := json.Marshal(deliverySnapshot())
	require.NoError(t, err)
	b, err := json.Marshal(deliverySnapshot())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.JSONEq(t, `{
		"version": 1,
		"fields": {
			"id": 42,
			"organization": null,
			"rider": {"current_latitude": 1, "current_longitude": 2, "id": 7},
			"status": "In Transit",
			"tracking_code": "TRK-42",
			"updated_at": "2026-03-01T09:30:00Z"
		}
	}`, string(a))
}

func TestSnapshot_MapIsACopy(t *testing.T) {
	s := deliverySnapshot()
	m := s.Map()
	m["status"] = "Delivered"
	m["rider"].(map[string]any)["id"] = int64(99)

	got, _ := s.Get("status")
	assert.Equal(t, "In Transit", got)
	rid, _ := s.Lookup("rider.id")
	assert.Equal(t, int64(7), rid)
}

func TestSnapshot_EqualSurvivesJSONRoundTrip(t *testing.T) {
	s := deliverySnapshot()

	raw, err := json.Marshal(s.JSONMap())
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.True(t, ValuesEqual(s, decoded))
	assert.True(t, s.Equal(NewSnapshot(decoded)))
}

func TestValuesEqual(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int vs float", int64(1), 1.0, true},
		{"different numbers", int64(1), 2.0, false},
		{"number vs string", int64(1), "1", false},
		{"time vs text", ts, "2026-01-02T03:04:05Z", true},
		{"nil vs nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"bools", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValuesEqual(tt.a, tt.b))
		})
	}
}
