package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestGradeBands(t *testing.T) {
	g := Default()
	tt := []struct {
		tech  string
		value *float64
		want  Band
	}{
		{"L800", fp(-90), Green},
		{"U900", fp(-90), Yellow},
		{"L1800", nil, Gray},
		{"L800", fp(0.5), Gray},
		{"L800", fp(-1), Gray},
		{"L800", fp(1), Gray},
		{"G900", fp(-80), Green},
		{"G900", fp(-80.01), Yellow},
		{"G900", fp(-90), Yellow},
		{"G900", fp(-90.5), Red},
		{"U2100", fp(-85), Green},
		{"U2100", fp(-96), Red},
		{"L2600", fp(-105), Yellow},
		{"L2600", fp(-105.01), Red},
		{"NR3500-643296", fp(-94), Green},
		{"NR700-152600", fp(-110), Red},
		{"X123", fp(-60), Gray},
	}
	for _, tc := range tt {
		assert.Equal(t, tc.want, g.Grade(tc.tech, tc.value), "%s %v", tc.tech, tc.value)
	}
}

func TestGradeIsMonotonicInValue(t *testing.T) {
	g := Default()
	for _, tech := range []string{"G900", "U900", "L800", "NR3500-648000"} {
		prev := Red
		for v := -140.0; v <= -2; v += 0.25 {
			b := g.Grade(tech, fp(v))
			require.NotEqual(t, Gray, b, "%s %v", tech, v)
			require.GreaterOrEqual(t, int(b), int(prev), "%s %v", tech, v)
			prev = b
		}
	}
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, Family2G, FamilyOf("G900"))
	assert.Equal(t, Family3G, FamilyOf("u2100"))
	assert.Equal(t, Family4G, FamilyOf("L1800"))
	assert.Equal(t, Family5G, FamilyOf("NR700-153600"))
	assert.Equal(t, Family5G, FamilyOf("n78"))
	assert.Equal(t, FamilyUnknown, FamilyOf("Unknown"))
	assert.Equal(t, FamilyUnknown, FamilyOf(""))
	assert.Equal(t, FamilyUnknown, FamilyOf("UNKNOWN"))
	assert.Equal(t, FamilyUnknown, FamilyOf("Nord"))
	assert.Equal(t, FamilyUnknown, FamilyOf("GSM"))
}

func TestGradeUnknownTechnologyIsGray(t *testing.T) {
	g := Default()
	assert.Equal(t, Gray, g.Grade("Unknown", fp(-100)))
	assert.Equal(t, Gray, g.Grade("Unknown", fp(-60)))
	assert.Equal(t, Red, g.Grade("U900", fp(-100)))
}

func TestNewValidatesThresholds(t *testing.T) {
	_, err := New(map[Family]Thresholds{Family2G: {GreenMin: -90, YellowMin: -80}}, 1)
	assert.Error(t, err)
	_, err = New(map[Family]Thresholds{"6G": {GreenMin: -90, YellowMin: -100}}, 1)
	assert.Error(t, err)
	_, err = New(nil, -1)
	assert.Error(t, err)
	_, err = New(map[Family]Thresholds{Family4G: {GreenMin: 5, YellowMin: -100}}, 1)
	assert.Error(t, err)
}

func TestNewMergesOverDefaults(t *testing.T) {
	g, err := New(map[Family]Thresholds{"4g": {GreenMin: -100, YellowMin: -110}}, 3)
	require.NoError(t, err)
	assert.Equal(t, Green, g.Grade("L800", fp(-99)))
	assert.Equal(t, Gray, g.Grade("L800", fp(-2.5)))
	th, ok := g.Thresholds(Family2G)
	require.True(t, ok)
	assert.Equal(t, -80.0, th.GreenMin)
}

func TestLegend(t *testing.T) {
	rows := Default().Legend([]Family{Family2G, Family3G, Family4G})
	require.Len(t, rows, 4)
	assert.Equal(t, Green, rows[0].Band)
	assert.Equal(t, []string{" > -80 dBm", " > -85 dBm", " > -95 dBm"}, rows[0].Ranges)
	assert.Equal(t, "-80 ÷ -90 dBm", rows[1].Ranges[0])
	assert.Equal(t, "< -105 dBm", rows[2].Ranges[2])
	assert.Equal(t, []string{"Assente", "Assente", "Assente"}, rows[3].Ranges)
	assert.Equal(t, "Grigio", rows[3].Band.String())
	assert.Equal(t, "#99FF99", rows[0].Band.Color())
}
