package status

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRGB(t *testing.T) {
	c, err := ParseRGB("12, 200,0")
	require.NoError(t, err)
	assert.Equal(t, RGB{R: 12, G: 200, B: 0}, c)
	assert.Equal(t, "12,200,0", c.String())

	for _, bad := range []string{"", "1,2", "1,2,3,4", "256,0,0", "-1,0,0", "a,b,c"} {
		_, err := ParseRGB(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestColorMap_UnmarshalPreservesOrder(t *testing.T) {
	raw := `{
		"zzz": "1,2,3",
		"focus": {"color": "0,0,255"},
		"available": {"color": "0,255,0", "power_off": true},
		"aaa": "4,5,6"
	}`

	var m ColorMap
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, []string{"zzz", "focus", "available", "aaa"}, m.Keys(),
		"declaration order, not sorted order")
}

func TestColorMap_EntryForms(t *testing.T) {
	raw := `{
		"legacy": "255,100,0",
		"structured": {"color": "10,20,30", "brightness": 40},
		"off": {"color": "0,255,0", "power_off": true},
		"broken": {"color": "not-a-color"},
		"brokenLegacy": "oops"
	}`

	var m ColorMap
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	legacy, ok := m.Get("legacy")
	require.True(t, ok)
	assert.Equal(t, ColorAction{Color: RGB{R: 255, G: 100, B: 0}}, legacy)

	structured, _ := m.Get("structured")
	assert.Equal(t, ColorAction{Color: RGB{R: 10, G: 20, B: 30}, Brightness: 40}, structured)

	off, _ := m.Get("off")
	assert.True(t, off.Off)

	// Unparseable colors degrade to white, never to a load failure.
	broken, _ := m.Get("broken")
	assert.Equal(t, White, broken.Color)
	brokenLegacy, _ := m.Get("brokenLegacy")
	assert.Equal(t, White, brokenLegacy.Color)
}

func TestColorMap_MarshalRoundTrip(t *testing.T) {
	m := NewColorMap()
	m.Set("in_meeting", ColorAction{Color: RGB{R: 255, G: 0, B: 0}})
	m.Set("available", ColorAction{Off: true})
	m.Set("focus", ColorAction{Color: RGB{R: 0, G: 0, B: 255}, Brightness: 80})

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var back ColorMap
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, m.Keys(), back.Keys())
	for _, k := range m.Keys() {
		want, _ := m.Get(k)
		got, _ := back.Get(k)
		assert.Equal(t, want, got, "entry %q", k)
	}
}

func TestColorMap_MatchSummary(t *testing.T) {
	m := NewColorMap()
	m.Set("standup", ColorAction{Color: White})
	m.Set("1:1", ColorAction{Color: White})

	key, ok := m.MatchSummary("Team STANDUP (weekly)")
	require.True(t, ok)
	assert.Equal(t, "standup", key)

	key, ok = m.MatchSummary("Alice / Bob 1:1")
	require.True(t, ok)
	assert.Equal(t, "1:1", key)

	_, ok = m.MatchSummary("Lunch")
	assert.False(t, ok)

	_, ok = (*ColorMap)(nil).MatchSummary("anything")
	assert.False(t, ok)
}

func TestColorMap_Clone(t *testing.T) {
	m := NewColorMap()
	m.Set("a", ColorAction{Color: RGB{R: 1, G: 2, B: 3}})

	c := m.Clone()
	c.Set("b", ColorAction{Off: true})

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, c.Len())
}
