package domain

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

type SensorKind string

const (
	SENSOR_KIND_TEMPERATURE SensorKind = "temperature"
	SENSOR_KIND_VIBRATION   SensorKind = "vibration"
	SENSOR_KIND_PRESSURE    SensorKind = "pressure"
	SENSOR_KIND_HUMIDITY    SensorKind = "humidity"
)

type Axes struct {
	X float64
	Y float64
	Z float64
}

// Value is either a scalar or a three-axis reading. Axes is only meaningful
// when ThreeAxis is set.
type Value struct {
	Scalar    float64
	Axes      Axes
	ThreeAxis bool
}

func ScalarValue(v float64) Value {
	return Value{Scalar: v}
}

func AxesValue(x, y, z float64) Value {
	return Value{Axes: Axes{X: x, Y: y, Z: z}, ThreeAxis: true}
}

// Components returns the scalar as a single element or the three axes in x, y, z order.
func (v Value) Components() []float64 {
	if v.ThreeAxis {
		return []float64{v.Axes.X, v.Axes.Y, v.Axes.Z}
	}
	return []float64{v.Scalar}
}

type Recording struct {
	Timestamp int64 // wall-clock millis
	DeviceId  string
	Value     Value
}

type SensorChannel struct {
	Baseline   Value
	Min        Value
	Max        Value
	Unit       string
	Recordings []Recording
}

type Machine struct {
	Id       string
	Name     string
	Channels map[SensorKind]SensorChannel
}

func (m Machine) IsEmpty() bool {
	return m.Id == ""
}

func (m Machine) Channel(kind SensorKind) (SensorChannel, bool) {
	ch, ok := m.Channels[kind]
	return ch, ok
}

// Kinds lists the machine's channels, catalogue kinds first, then the rest sorted.
func (m Machine) Kinds() []SensorKind {
	return orderedKinds(m.Channels)
}

// WithRecording returns a copy of the machine with rec appended to kind's channel.
// The receiver, its channel map and its recording slices are left untouched.
func (m Machine) WithRecording(kind SensorKind, rec Recording) Machine {
	ch, ok := m.Channels[kind]
	if !ok {
		return m
	}
	channels := make(map[SensorKind]SensorChannel, len(m.Channels))
	for k, v := range m.Channels {
		channels[k] = v
	}
	// clipping forces append to allocate, so readers of the old slice never see rec
	ch.Recordings = append(slices.Clip(ch.Recordings), rec)
	channels[kind] = ch
	return Machine{
		Id:       m.Id,
		Name:     m.Name,
		Channels: channels,
	}
}

type SessionPhase string

const (
	PHASE_IDLE       SessionPhase = "idle"
	PHASE_CONNECTING SessionPhase = "connecting"
	PHASE_ACTIVE     SessionPhase = "active"
	PHASE_STOPPING   SessionPhase = "stopping"
)

type SessionConfig struct {
	MachineId       string       `json:"machine_id"`
	IntervalSeconds uint         `json:"interval_seconds"`
	Selection       []SensorKind `json:"selection"`
}

// Validate checks the config against the machine it will record.
func (c SessionConfig) Validate(machine Machine, minIntervalSeconds uint) error {
	if machine.IsEmpty() {
		return NewSessionError(ErrInvalidConfig, errors.New("no machine selected"))
	}
	if c.MachineId != "" && c.MachineId != machine.Id {
		return NewSessionError(ErrInvalidConfig, fmt.Errorf("config is for machine %s, got %s", c.MachineId, machine.Id))
	}
	if c.IntervalSeconds < minIntervalSeconds {
		return NewSessionError(ErrInvalidConfig, fmt.Errorf("interval must be >= %ds, got %ds", minIntervalSeconds, c.IntervalSeconds))
	}
	if len(c.Selection) == 0 {
		return NewSessionError(ErrInvalidConfig, errors.New("no sensors selected"))
	}
	seen := make(map[SensorKind]bool, len(c.Selection))
	for _, kind := range c.Selection {
		if seen[kind] {
			return NewSessionError(ErrInvalidConfig, fmt.Errorf("sensor %s selected twice", kind))
		}
		seen[kind] = true
		if _, ok := machine.Channels[kind]; !ok {
			return NewSessionError(ErrInvalidConfig, fmt.Errorf("machine %s has no %s sensor", machine.Id, kind))
		}
	}
	return nil
}

func orderedKinds[T any](m map[SensorKind]T) []SensorKind {
	kinds := make([]SensorKind, 0, len(m))
	for _, k := range CatalogueKinds() {
		if _, ok := m[k]; ok {
			kinds = append(kinds, k)
		}
	}
	var rest []SensorKind
	for k := range m {
		if _, known := catalogue[k]; !known {
			rest = append(rest, k)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(kinds, rest...)
}
