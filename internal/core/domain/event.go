package domain

import "fmt"

type SessionEventMixIn struct {
	SessionId string
	MachineId string
}

type SessionEvent interface {
	SessionEvent() string
	Session() string
}

func (e SessionEventMixIn) SessionEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SessionEventMixIn) Session() string {
	return e.SessionId
}

type PhaseChangedEvent struct {
	SessionEventMixIn
	From SessionPhase
	To   SessionPhase
}

type SessionErrorEvent struct {
	SessionEventMixIn
	Error error
}

// SessionTickEvent fires for every publish tick, before readings are built.
type SessionTickEvent struct {
	SessionEventMixIn
}

type ReadingsPublishedEvent struct {
	SessionEventMixIn
	Kinds []SensorKind
}

type ReadingRecordedEvent struct {
	SessionEventMixIn
	Kind       SensorKind
	Recording  Recording
	OutOfRange bool
}

type SnapshotPersistedEvent struct {
	SessionEventMixIn
	Recordings int
}
