package service

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/port"
)

const DEFAULT_JITTER_FRACTION = 0.1

// Synthesize returns baseline moved up or down by at most baseline*jitterFraction.
// uniform supplies U(0,1) draws: one for the direction, one for the magnitude.
// A zero baseline always yields zero.
func Synthesize(baseline, jitterFraction float64, uniform func() float64) float64 {
	if baseline == 0 {
		return 0
	}
	increase := uniform() > 0.5
	delta := baseline * jitterFraction * uniform()
	if increase {
		return baseline + delta
	}
	return baseline - delta
}

func Round(value float64, decimals uint) float64 {
	p := math.Pow10(int(decimals))
	return math.Round(value*p) / p
}

type DefaultReadingSynthesizer struct {
	JitterFraction float64
	uniform        func() float64
	now            func() time.Time
}

func NewReadingSynthesizer(jitterFraction float64) *DefaultReadingSynthesizer {
	return &DefaultReadingSynthesizer{
		JitterFraction: jitterFraction,
		uniform:        rand.Float64,
		now:            time.Now,
	}
}

// NewSeededReadingSynthesizer is deterministic for a given seed and clock.
func NewSeededReadingSynthesizer(jitterFraction float64, seed uint64, now func() time.Time) *DefaultReadingSynthesizer {
	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &DefaultReadingSynthesizer{
		JitterFraction: jitterFraction,
		uniform:        rnd.Float64,
		now:            now,
	}
}

// Value synthesizes each axis independently and rounds to the sensor's precision.
func (s *DefaultReadingSynthesizer) Value(kind domain.SensorKind, baseline domain.Value) domain.Value {
	decimals := uint(1)
	if spec, ok := domain.SpecFor(kind); ok {
		decimals = spec.Decimals
	}
	next := func(b float64) float64 {
		return Round(Synthesize(b, s.JitterFraction, s.uniform), decimals)
	}
	if baseline.ThreeAxis {
		return domain.AxesValue(next(baseline.Axes.X), next(baseline.Axes.Y), next(baseline.Axes.Z))
	}
	return domain.ScalarValue(next(baseline.Scalar))
}

// Readings builds one recording per selected kind from the machine's baselines.
// Kinds the machine does not model are skipped.
func (s *DefaultReadingSynthesizer) Readings(machine domain.Machine, selection []domain.SensorKind) domain.DecodedMessage {
	ts := s.now().UnixMilli()
	readings := make(domain.DecodedMessage, len(selection))
	for _, kind := range selection {
		ch, ok := machine.Channel(kind)
		if !ok {
			continue
		}
		deviceId := string(kind)
		if spec, ok := domain.SpecFor(kind); ok {
			deviceId = spec.DeviceId
		}
		readings[kind] = domain.Recording{
			Timestamp: ts,
			DeviceId:  deviceId,
			Value:     s.Value(kind, ch.Baseline),
		}
	}
	return readings
}

// ensure interface compliance
var _ port.ReadingSynthesizer = (*DefaultReadingSynthesizer)(nil)
