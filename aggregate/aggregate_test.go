package aggregate

import (
	"errors"
	"math"
	"testing"

	"covreport/freqplan"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legacy() Classifier { return freqplan.Default(freqplan.Legacy) }

func TestAggregateMeansRepeatedChannel(t *testing.T) {
	res, err := Aggregate([]Sample{
		{Channel: 6300, Values: []float64{-70}, Row: 2},
		{Channel: 6300, Values: []float64{-74}, Row: 3},
	}, legacy(), DefaultPrecision)
	require.NoError(t, err)
	require.Len(t, res.Measurements, 1)
	m := res.Measurements[0]
	assert.Equal(t, freqplan.OperatorTIM, m.Operator)
	assert.Equal(t, freqplan.Technology("L800"), m.Technology)
	assert.Equal(t, 6300, m.Channel)
	assert.Equal(t, -72.0, m.Mean)
	assert.Equal(t, 1, m.Channels)
	require.Len(t, res.Channels, 1)
	assert.Equal(t, 2, res.Channels[0].Rows)
}

func TestAggregateRowMeanAcrossMetrics(t *testing.T) {
	res, err := Aggregate([]Sample{
		{Channel: 10563, Values: []float64{-80, -90}},
		{Channel: 10563, Values: []float64{-70, math.NaN()}},
	}, legacy(), DefaultPrecision)
	require.NoError(t, err)
	require.Len(t, res.Measurements, 1)
	// row means -85 and -70
	assert.Equal(t, -77.5, res.Measurements[0].Mean)
}

func TestAggregateRepresentativeIsStrongestChannel(t *testing.T) {
	// channels 10 and 20 both fall in the TIM G900 block
	res, err := Aggregate([]Sample{
		{Channel: 10, Values: []float64{-85}},
		{Channel: 20, Values: []float64{-75}},
		{Channel: 20, Values: []float64{-77}},
	}, legacy(), DefaultPrecision)
	require.NoError(t, err)
	require.Len(t, res.Measurements, 1)
	m := res.Measurements[0]
	assert.Equal(t, 20, m.Channel)
	assert.Equal(t, 2, m.Channels)
	// unweighted mean of -85 and -76
	assert.Equal(t, -80.5, m.Mean)
}

func TestAggregateTieKeepsFirstChannel(t *testing.T) {
	res, err := Aggregate([]Sample{
		{Channel: 1010, Values: []float64{-80}},
		{Channel: 5, Values: []float64{-80}},
	}, legacy(), DefaultPrecision)
	require.NoError(t, err)
	require.Len(t, res.Measurements, 1)
	assert.Equal(t, 1010, res.Measurements[0].Channel)
}

func TestAggregateKeepsFirstEncounterOrder(t *testing.T) {
	res, err := Aggregate([]Sample{
		{Channel: 1500, Values: []float64{-90}},
		{Channel: 6300, Values: []float64{-80}},
		{Channel: 1500, Values: []float64{-92}},
		{Channel: 50, Values: []float64{-60}},
	}, legacy(), DefaultPrecision)
	require.NoError(t, err)
	got := make([]freqplan.Assignment, 0, len(res.Measurements))
	for _, m := range res.Measurements {
		got = append(got, m.Assignment())
	}
	assert.Equal(t, []freqplan.Assignment{
		{Operator: freqplan.OperatorIliad, Technology: "L1800"},
		{Operator: freqplan.OperatorTIM, Technology: "L800"},
		{Operator: freqplan.OperatorVF, Technology: "G900"},
	}, got)
}

func TestAggregateReturnsUnknownGroups(t *testing.T) {
	res, err := Aggregate([]Sample{
		{Channel: 999999, Values: []float64{-100}},
		{Channel: 888888, Values: []float64{-90}},
		{Channel: 6400, Values: []float64{-99}},
	}, legacy(), DefaultPrecision)
	require.NoError(t, err)
	require.Len(t, res.Measurements, 2)
	assert.Equal(t, freqplan.Unknown, res.Measurements[0].Assignment())
	assert.Equal(t, 888888, res.Measurements[0].Channel)
	assert.Len(t, res.Unclassified(), 2)
}

func TestAggregateSkipsSamplesWithoutValues(t *testing.T) {
	res, err := Aggregate([]Sample{
		{Channel: 6300},
		{Channel: 6300, Values: []float64{math.Inf(-1)}},
	}, legacy(), DefaultPrecision)
	require.NoError(t, err)
	assert.Empty(t, res.Channels)
	assert.Empty(t, res.Measurements)
}

func TestAggregateFifthGen(t *testing.T) {
	res, err := Aggregate([]Sample{
		{Channel: 643296, Values: []float64{-101.333}},
	}, freqplan.Default(freqplan.FifthGen), DefaultPrecision)
	require.NoError(t, err)
	require.Len(t, res.Measurements, 1)
	assert.Equal(t, freqplan.Technology("NR3500-643296"), res.Measurements[0].Technology)
	assert.Equal(t, -101.33, res.Measurements[0].Mean)
}

func TestRound(t *testing.T) {
	assert.Equal(t, -72.13, Round(-72.125, 2))
	assert.Equal(t, 72.13, Round(72.125, 2))
	assert.Equal(t, -72.0, Round(-72.004, 2))
	assert.Equal(t, -72.4, Round(-72.4, -1))
	assert.Equal(t, -72.0, Round(-72.4, 0))
}

func TestEmptyGroupErrorMatchesWithAs(t *testing.T) {
	var err error = &EmptyGroupError{Key: "TIM/L800"}
	var target *EmptyGroupError
	require.True(t, errors.As(err, &target))
	assert.Contains(t, err.Error(), "TIM/L800")
}
