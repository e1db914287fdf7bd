package service

import "github.com/berfenger/healthrecorder/internal/core/domain"

const VALUE_COLOR_OUT_OF_RANGE = "red"

type ChartPoint struct {
	Timestamp  int64
	Value      domain.Value
	OutOfRange bool
}

func OutOfRange(value, min, max float64) bool {
	return value < min || value > max
}

// ValueColor returns the highlight color for an out of range value, or "" when in range.
func ValueColor(value, min, max float64) string {
	if OutOfRange(value, min, max) {
		return VALUE_COLOR_OUT_OF_RANGE
	}
	return ""
}

// ReadingOutOfRange reports whether any component of v falls outside the channel bounds.
func ReadingOutOfRange(ch domain.SensorChannel, v domain.Value) bool {
	values := v.Components()
	mins := ch.Min.Components()
	maxs := ch.Max.Components()
	for i := range values {
		if i >= len(mins) || i >= len(maxs) {
			break
		}
		if OutOfRange(values[i], mins[i], maxs[i]) {
			return true
		}
	}
	return false
}

// ChartSeries projects a channel's recordings in append order, which is time order.
func ChartSeries(machine domain.Machine, kind domain.SensorKind) ([]ChartPoint, bool) {
	ch, ok := machine.Channel(kind)
	if !ok {
		return nil, false
	}
	points := make([]ChartPoint, 0, len(ch.Recordings))
	for _, rec := range ch.Recordings {
		points = append(points, ChartPoint{
			Timestamp:  rec.Timestamp,
			Value:      rec.Value,
			OutOfRange: ReadingOutOfRange(ch, rec.Value),
		})
	}
	return points, true
}
