package drink

import "fmt"

// Preset is a named calibration point on the milk scale.
type Preset struct {
	Level       int
	Label       string
	Description string
}

// presets are ordered by level; the order decides ties.
var presets = [...]Preset{
	{Level: 0, Label: "Pure Matcha Energy"},
	{Level: 25, Label: "Light Sweet, Balanced"},
	{Level: 50, Label: "Just Right"},
	{Level: 75, Label: "Creamy & Comforting"},
	{Level: 100, Label: "Full Sweet Indulgence"},
}

func init() {
	for i := range presets {
		presets[i].Description = fmt.Sprintf("%d%% Milk", presets[i].Level)
	}
}

// Presets returns the calibration points in ascending order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets[:])
	return out
}

// NearestPreset returns the preset closest to level by absolute distance.
// On a tie the lower preset wins.
func NearestPreset(level int) Preset {
	return nearest(presets[:], level)
}

func nearest(points []Preset, level int) Preset {
	best := points[0]
	for _, p := range points[1:] {
		if abs(p.Level-level) < abs(best.Level-level) {
			best = p
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
