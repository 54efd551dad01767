package coverage

import (
	"testing"

	"covreport/aggregate"
	"covreport/freqplan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

var legacyRequired = freqplan.Default(freqplan.Legacy).Required()

func TestCompleteBackfillsEveryRequiredTechnology(t *testing.T) {
	rows := FromMeasurements([]aggregate.Measurement{
		{Operator: freqplan.OperatorTIM, Technology: "L800", Channel: 6300, Mean: -72},
	})
	c := Complete(rows, legacyRequired)
	require.Len(t, c.Rows, 7)
	assert.Equal(t, []freqplan.Operator{freqplan.OperatorTIM}, c.Operators)
	for i, r := range c.Rows {
		assert.Equal(t, freqplan.OperatorTIM, r.Operator)
		assert.Equal(t, legacyRequired[i], r.Technology)
		if r.Technology == "L800" {
			require.NotNil(t, r.Mean)
			assert.Equal(t, -72.0, *r.Mean)
			assert.Equal(t, 6300, *r.Channel)
			continue
		}
		assert.True(t, r.Backfilled())
		assert.Nil(t, r.Channel)
	}
	assert.Empty(t, c.Extra)
}

func TestCompleteOrdersByFirstSeenOperatorThenPriority(t *testing.T) {
	rows := []Row{
		{Operator: freqplan.OperatorVF, Technology: "L2600", Channel: ip(3025), Mean: fp(-100)},
		{Operator: freqplan.OperatorIliad, Technology: "L1800", Channel: ip(1500), Mean: fp(-91)},
		{Operator: freqplan.OperatorVF, Technology: "G900", Channel: ip(50), Mean: fp(-70)},
	}
	c := Complete(rows, legacyRequired)
	require.Len(t, c.Rows, 2*len(legacyRequired))
	assert.Equal(t, []freqplan.Operator{freqplan.OperatorVF, freqplan.OperatorIliad}, c.Operators)
	assert.Equal(t, freqplan.Technology("G900"), c.Rows[0].Technology)
	assert.Equal(t, 50, *c.Rows[0].Channel)
	assert.Equal(t, freqplan.Technology("L2600"), c.Rows[6].Technology)
	assert.Equal(t, freqplan.OperatorIliad, c.Rows[7].Operator)
	assert.Equal(t, -91.0, *c.Rows[9].Mean)
}

func TestCompleteIsIdempotent(t *testing.T) {
	rows := []Row{
		{Operator: freqplan.OperatorW3, Technology: "U2100", Channel: ip(10563), Mean: fp(-88.2)},
		{Operator: freqplan.OperatorTIM, Technology: "G900", Channel: ip(10), Mean: fp(-79)},
	}
	once := Complete(rows, legacyRequired)
	twice := Complete(once.Rows, legacyRequired)
	assert.Equal(t, once.Rows, twice.Rows)
	assert.Equal(t, once.Operators, twice.Operators)
	assert.Empty(t, twice.Extra)
}

func TestCompleteReportsUnknownAndOffListRows(t *testing.T) {
	rows := []Row{
		{Operator: freqplan.OperatorUnknown, Technology: freqplan.TechnologyUnknown, Channel: ip(999), Mean: fp(-100)},
		{Operator: freqplan.OperatorTIM, Technology: "NR700-152600", Channel: ip(152600), Mean: fp(-90)},
	}
	c := Complete(rows, legacyRequired)
	assert.Len(t, c.Extra, 2)
	// TIM was observed, so its grid still exists
	assert.Len(t, c.Rows, len(legacyRequired))
	for _, r := range c.Rows {
		assert.True(t, r.Backfilled())
	}
}

func TestCompleteEmptyInput(t *testing.T) {
	c := Complete(nil, legacyRequired)
	assert.Empty(t, c.Rows)
	assert.Empty(t, c.Operators)
}

func TestSummarizeUsesConfiguredOperatorOrder(t *testing.T) {
	c := Complete([]Row{
		{Operator: freqplan.OperatorIliad, Technology: "L1800", Channel: ip(1500), Mean: fp(-91.5)},
		{Operator: freqplan.OperatorTIM, Technology: "G900", Channel: ip(10), Mean: fp(-79)},
	}, legacyRequired)
	report := Summarize("Piano 1", c.Rows, legacyRequired, nil)
	require.Len(t, report, len(legacyRequired))

	g900 := report[0]
	assert.Equal(t, "Piano 1", g900.Area)
	assert.Equal(t, "VOCE", g900.TariffClass)
	require.Len(t, g900.Coverage, 4)
	assert.Equal(t, freqplan.OperatorTIM, g900.Coverage[0].Operator)
	assert.Equal(t, "-79", g900.Coverage[0].Display())
	assert.Equal(t, Absent, g900.Coverage[1].Display())

	l1800 := report[2]
	assert.Equal(t, "DATI PLUS", l1800.TariffClass)
	require.NotNil(t, l1800.Value(freqplan.OperatorIliad))
	assert.Equal(t, "-91.5", l1800.Coverage[3].Display())
	assert.Nil(t, l1800.Value(freqplan.OperatorVF))
}

func TestTariffClass(t *testing.T) {
	cases := map[freqplan.Technology]string{
		"G900":          "VOCE",
		"L800":          "DATI",
		"L1800":         "DATI PLUS",
		"U2100":         "Altro",
		"L2600":         "Altro",
		"NR3500-643296": "5G",
	}
	for tech, want := range cases {
		assert.Equal(t, want, TariffClass(tech), string(tech))
	}
}
