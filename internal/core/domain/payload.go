package domain

import (
	"encoding/json"
	"fmt"
)

// DecodedMessage is one broker message: at most one recording per sensor kind.
// A kind missing from the map was not part of that tick.
type DecodedMessage map[SensorKind]Recording

func (m DecodedMessage) Kinds() []SensorKind {
	return orderedKinds(m)
}

// EncodePayload renders readings as the health check wire object.
func EncodePayload(readings DecodedMessage) ([]byte, error) {
	obj := make(map[string]any, len(readings))
	for kind, rec := range readings {
		obj[string(kind)] = recordingFields(kind, rec)
	}
	return json.Marshal(obj)
}

// DecodePayload parses a health check wire object. Catalogue kinds must be well
// formed. Entries for other kinds are decoded when they can be (a scalar under
// their own name, or three axes when x_axis is present) and skipped otherwise.
func DecodePayload(payload []byte) (DecodedMessage, error) {
	return decodePayload(payload, SensorKind.IsKnown)
}

// DecodePayloadFor parses a message to be merged into machine. Only the kinds
// the machine models must be well formed; a bad entry for any other kind is
// skipped, since the merge would ignore it anyway.
func DecodePayloadFor(payload []byte, machine Machine) (DecodedMessage, error) {
	return decodePayload(payload, func(kind SensorKind) bool {
		_, ok := machine.Channels[kind]
		return ok
	})
}

func decodePayload(payload []byte, strict func(SensorKind) bool) (DecodedMessage, error) {
	if !isObject(payload) {
		return nil, NewSessionError(ErrMergeDecode, errNotObject)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, NewSessionError(ErrMergeDecode, err)
	}
	msg := make(DecodedMessage, len(fields))
	for key, raw := range fields {
		if isNull(raw) {
			continue
		}
		kind := SensorKind(key)
		rec, err := decodeEntry(kind, raw)
		if err != nil {
			if strict(kind) {
				return nil, NewSessionError(ErrMergeDecode, fmt.Errorf("%s: %w", key, err))
			}
			continue
		}
		msg[kind] = rec
	}
	return msg, nil
}

func decodeEntry(kind SensorKind, raw json.RawMessage) (Recording, error) {
	if !isObject(raw) {
		return Recording{}, errNotObject
	}
	threeAxis := kind.ThreeAxis()
	if !kind.IsKnown() {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil {
			_, threeAxis = fields[fieldXAxis]
		}
	}
	return decodeRecording(kind, raw, threeAxis)
}
