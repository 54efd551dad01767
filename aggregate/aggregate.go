// Package aggregate folds raw per-row signal samples into per-channel means and
// then into one measurement per (operator, technology) pair.
package aggregate

import (
	"fmt"
	"math"

	"covreport/freqplan"
)

// DefaultPrecision is the number of decimals means are rounded to.
const DefaultPrecision = 2

// Sample is one survey row reduced to its channel id and the signal metrics
// present on it (RSRP, RSCP, RxLevel or SS-RSRP, in dBm).
type Sample struct {
	Channel int
	Values  []float64
	Row     int
}

// Classifier resolves a channel id; *freqplan.Plan satisfies it.
type Classifier interface {
	Classify(channel int) freqplan.Assignment
}

// ChannelMean is the rounded mean of every sample seen on one channel.
type ChannelMean struct {
	Channel    int
	Mean       float64
	Rows       int
	Assignment freqplan.Assignment
}

// Measurement is the aggregated level for one (operator, technology) pair.
// Channel is the representative (strongest) channel of the group and
// Channels counts the channel groups folded into Mean.
type Measurement struct {
	Operator   freqplan.Operator
	Technology freqplan.Technology
	Channel    int
	Mean       float64
	Channels   int
}

// Assignment returns the (operator, technology) key of the measurement.
func (m Measurement) Assignment() freqplan.Assignment {
	return freqplan.Assignment{Operator: m.Operator, Technology: m.Technology}
}

// Result carries both aggregation levels in first-encounter order.
type Result struct {
	Channels     []ChannelMean
	Measurements []Measurement
}

// Unclassified returns the channel means that mapped to the Unknown sentinel.
func (r Result) Unclassified() []ChannelMean {
	var out []ChannelMean
	for _, cm := range r.Channels {
		if cm.Assignment.IsUnknown() {
			out = append(out, cm)
		}
	}
	return out
}

// EmptyGroupError means a group reached averaging without a contributing
// sample. Grouping only creates groups for samples it has seen, so this
// signals a broken invariant rather than bad input.
type EmptyGroupError struct {
	Key string
}

func (e *EmptyGroupError) Error() string {
	return fmt.Sprintf("aggregate: group %s has no contributing samples", e.Key)
}

type channelGroup struct {
	channel int
	sum     float64
	rows    int
}

type assignmentGroup struct {
	assignment freqplan.Assignment
	sum        float64
	channels   int
	best       ChannelMean
}

// Purpose: Aggregate samples into channel means and (operator, technology) measurements.
// Key aspects: Per-row mean across present metrics, per-channel mean across rows,
// unweighted mean of rounded channel means per assignment, strongest channel as
// representative with ties going to the first channel encountered.
// Upstream: covreport per-source processing.
// Downstream: Classifier.Classify, Round.
func Aggregate(samples []Sample, classifier Classifier, precision int) (Result, error) {
	if precision < 0 {
		precision = DefaultPrecision
	}

	channelOrder := make([]int, 0)
	byChannel := make(map[int]*channelGroup)
	for _, s := range samples {
		rowMean, ok := mean(s.Values)
		if !ok {
			continue
		}
		g := byChannel[s.Channel]
		if g == nil {
			g = &channelGroup{channel: s.Channel}
			byChannel[s.Channel] = g
			channelOrder = append(channelOrder, s.Channel)
		}
		g.sum += rowMean
		g.rows++
	}

	result := Result{Channels: make([]ChannelMean, 0, len(channelOrder))}
	for _, ch := range channelOrder {
		g := byChannel[ch]
		if g.rows == 0 {
			return Result{}, &EmptyGroupError{Key: fmt.Sprintf("channel %d", ch)}
		}
		result.Channels = append(result.Channels, ChannelMean{
			Channel:    ch,
			Mean:       Round(g.sum/float64(g.rows), precision),
			Rows:       g.rows,
			Assignment: classifier.Classify(ch),
		})
	}

	groupOrder := make([]freqplan.Assignment, 0)
	byAssignment := make(map[freqplan.Assignment]*assignmentGroup)
	for _, cm := range result.Channels {
		g := byAssignment[cm.Assignment]
		if g == nil {
			g = &assignmentGroup{assignment: cm.Assignment, best: cm}
			byAssignment[cm.Assignment] = g
			groupOrder = append(groupOrder, cm.Assignment)
		} else if cm.Mean > g.best.Mean {
			// strictly greater keeps the earlier channel on ties
			g.best = cm
		}
		g.sum += cm.Mean
		g.channels++
	}

	result.Measurements = make([]Measurement, 0, len(groupOrder))
	for _, key := range groupOrder {
		g := byAssignment[key]
		if g.channels == 0 {
			return Result{}, &EmptyGroupError{Key: key.String()}
		}
		result.Measurements = append(result.Measurements, Measurement{
			Operator:   key.Operator,
			Technology: key.Technology,
			Channel:    g.best.Channel,
			Mean:       Round(g.sum/float64(g.channels), precision),
			Channels:   g.channels,
		})
	}
	return result, nil
}

// Round rounds v to the given number of decimals, halves away from zero.
func Round(v float64, precision int) float64 {
	if precision < 0 {
		return v
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}

func mean(values []float64) (float64, bool) {
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
