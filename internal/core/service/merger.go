package service

import "github.com/berfenger/healthrecorder/internal/core/domain"

// Merge appends every recording in msg to the matching channel of machine and
// returns the result as a new value. Kinds the machine does not model are dropped.
// An empty message returns machine unchanged.
func Merge(machine domain.Machine, msg domain.DecodedMessage) domain.Machine {
	merged := machine
	for _, kind := range msg.Kinds() {
		merged = merged.WithRecording(kind, msg[kind])
	}
	return merged
}

// MergedKinds lists the kinds of msg that Merge would append, in merge order.
func MergedKinds(machine domain.Machine, msg domain.DecodedMessage) []domain.SensorKind {
	var kinds []domain.SensorKind
	for _, kind := range msg.Kinds() {
		if _, ok := machine.Channel(kind); ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
