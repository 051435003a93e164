package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RGB is a 24-bit light color.
type RGB struct {
	R, G, B uint8
}

// White is the fallback color when an entry cannot be parsed.
var White = RGB{R: 255, G: 255, B: 255}

// String renders the color in the "r,g,b" wire form used by the state file.
func (c RGB) String() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// ParseRGB parses an "r,g,b" string. Components must be 0..255.
func ParseRGB(s string) (RGB, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("color %q: want three comma-separated components", s)
	}

	var vals [3]uint8
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return RGB{}, fmt.Errorf("color %q: component %d: %w", s, i, err)
		}
		if n < 0 || n > 255 {
			return RGB{}, fmt.Errorf("color %q: component %d out of range", s, i)
		}
		vals[i] = uint8(n)
	}

	return RGB{R: vals[0], G: vals[1], B: vals[2]}, nil
}

// ColorAction is the parsed form of one color-map entry: either turn the
// light off, or turn it on with a color (and an optional brightness).
type ColorAction struct {
	Off        bool
	Color      RGB
	Brightness int // 0 means not configured
}

// ColorMap maps status labels to light actions. Key order is declaration
// order and is significant: keyword-match ties resolve in favor of the key
// declared first, so a plain Go map will not do.
type ColorMap struct {
	keys    []string
	entries map[string]ColorAction
}

// NewColorMap returns an empty color map.
func NewColorMap() *ColorMap {
	return &ColorMap{entries: make(map[string]ColorAction)}
}

// Set adds or replaces an entry, preserving first-declaration order.
func (m *ColorMap) Set(key string, action ColorAction) {
	if m.entries == nil {
		m.entries = make(map[string]ColorAction)
	}
	if _, ok := m.entries[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.entries[key] = action
}

// Get looks up the action for a status label.
func (m *ColorMap) Get(key string) (ColorAction, bool) {
	if m == nil || m.entries == nil {
		return ColorAction{}, false
	}
	a, ok := m.entries[key]
	return a, ok
}

// Keys returns the status labels in declaration order.
func (m *ColorMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *ColorMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// MatchSummary finds the first key (in declaration order) that appears as a
// case-insensitive substring of the event summary.
func (m *ColorMap) MatchSummary(summary string) (string, bool) {
	if m == nil {
		return "", false
	}
	lowered := strings.ToLower(summary)
	for _, k := range m.keys {
		if k != "" && strings.Contains(lowered, strings.ToLower(k)) {
			return k, true
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (m *ColorMap) Clone() *ColorMap {
	if m == nil {
		return nil
	}
	out := NewColorMap()
	for _, k := range m.keys {
		out.Set(k, m.entries[k])
	}
	return out
}

// colorMapEntry is the structured entry form in the state file.
type colorMapEntry struct {
	Color      string `json:"color"`
	PowerOff   bool   `json:"power_off,omitempty"`
	Brightness int    `json:"brightness,omitempty"`
}

// UnmarshalJSON accepts both entry forms found in state files: the legacy
// bare "r,g,b" string and the structured {color, power_off} object. Key
// order is read off the token stream so declaration order survives.
func (m *ColorMap) UnmarshalJSON(data []byte) error {
	m.keys = nil
	m.entries = make(map[string]ColorAction)

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("color map: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("color map: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("color map: %w", err)
		}
		key := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("color map entry %q: %w", key, err)
		}
		m.Set(key, parseColorEntry(raw))
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("color map: %w", err)
	}
	return nil
}

// parseColorEntry converts one raw entry into a ColorAction. Unparseable
// colors fall back to white rather than failing the whole load.
func parseColorEntry(raw json.RawMessage) ColorAction {
	var legacy string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		c, err := ParseRGB(legacy)
		if err != nil {
			c = White
		}
		return ColorAction{Color: c}
	}

	var entry colorMapEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return ColorAction{Color: White}
	}
	if entry.PowerOff {
		return ColorAction{Off: true}
	}

	c, err := ParseRGB(entry.Color)
	if err != nil {
		c = White
	}
	return ColorAction{Color: c, Brightness: entry.Brightness}
}

// MarshalJSON writes entries in declaration order, always in the structured
// form.
func (m *ColorMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		a := m.entries[k]
		entry := colorMapEntry{PowerOff: a.Off, Brightness: a.Brightness}
		if !a.Off {
			entry.Color = a.Color.String()
		}
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		buf.Write(entryJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
