package events

import (
	. "github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/service"
)

// MergedMessageToRecordedEvents emits one event per recording appended by a merge,
// flagging readings outside the channel's min/max.
func MergedMessageToRecordedEvents(session SessionEventMixIn, merged Machine, msg DecodedMessage) []any {
	var events []any

	for _, kind := range service.MergedKinds(merged, msg) {
		ch, _ := merged.Channel(kind)
		rec := msg[kind]
		events = append(events, ReadingRecordedEvent{
			SessionEventMixIn: session,
			Kind:              kind,
			Recording:         rec,
			OutOfRange:        service.ReadingOutOfRange(ch, rec.Value),
		})
	}

	return events
}

func PhaseChangedEvents(session SessionEventMixIn, from, to SessionPhase) []any {
	if from == to {
		return nil
	}
	return []any{PhaseChangedEvent{
		SessionEventMixIn: session,
		From:              from,
		To:                to,
	}}
}

func SessionErrorEvents(session SessionEventMixIn, err error) []any {
	return []any{SessionErrorEvent{
		SessionEventMixIn: session,
		Error:             err,
	}}
}

func PersistedEvents(session SessionEventMixIn, machine Machine) []any {
	total := 0
	for _, ch := range machine.Channels {
		total += len(ch.Recordings)
	}
	return []any{SnapshotPersistedEvent{
		SessionEventMixIn: session,
		Recordings:        total,
	}}
}
