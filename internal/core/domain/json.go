package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Machines are stored by the persistence service as one document per machine:
//
//	{"id": "...", "name": "...",
//	 "temperature": {"normal": 80, "min": 60, "max": 100, "unit": "C", "recordings": [...]},
//	 "vibration": {"normal": {"x_axis": 1, "y_axis": 1, "z_axis": 1}, ...}}

const (
	fieldId        = "id"
	fieldName      = "name"
	fieldTimestamp = "timestamp"
	fieldDeviceId  = "device_id"
	fieldXAxis     = "x_axis"
	fieldYAxis     = "y_axis"
	fieldZAxis     = "z_axis"
)

type channelDocument struct {
	Normal     any    `json:"normal"`
	Min        any    `json:"min"`
	Max        any    `json:"max"`
	Unit       string `json:"unit"`
	Recordings []any  `json:"recordings"`
}

type rawChannelDocument struct {
	Normal     json.RawMessage   `json:"normal"`
	Min        json.RawMessage   `json:"min"`
	Max        json.RawMessage   `json:"max"`
	Unit       string            `json:"unit"`
	Recordings []json.RawMessage `json:"recordings"`
}

func (m Machine) MarshalJSON() ([]byte, error) {
	doc := map[string]any{
		fieldId:   m.Id,
		fieldName: m.Name,
	}
	for kind, ch := range m.Channels {
		recordings := make([]any, 0, len(ch.Recordings))
		for _, rec := range ch.Recordings {
			recordings = append(recordings, recordingFields(kind, rec))
		}
		doc[string(kind)] = channelDocument{
			Normal:     valueDocument(ch.Baseline),
			Min:        valueDocument(ch.Min),
			Max:        valueDocument(ch.Max),
			Unit:       ch.Unit,
			Recordings: recordings,
		}
	}
	return json.Marshal(doc)
}

func (m *Machine) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var out Machine
	if raw, ok := fields[fieldId]; ok {
		if err := json.Unmarshal(raw, &out.Id); err != nil {
			return fmt.Errorf("machine id: %w", err)
		}
	}
	if raw, ok := fields[fieldName]; ok {
		if err := json.Unmarshal(raw, &out.Name); err != nil {
			return fmt.Errorf("machine name: %w", err)
		}
	}
	out.Channels = make(map[SensorKind]SensorChannel)
	for key, raw := range fields {
		if key == fieldId || key == fieldName || !isObject(raw) {
			continue
		}
		var doc rawChannelDocument
		if err := json.Unmarshal(raw, &doc); err != nil || doc.Normal == nil {
			// not a sensor channel
			continue
		}
		kind := SensorKind(key)
		threeAxis := kind.ThreeAxis() || (!kind.IsKnown() && isObject(doc.Normal))
		ch, err := decodeChannel(kind, doc, threeAxis)
		if err != nil {
			return fmt.Errorf("machine %s sensor %s: %w", out.Id, key, err)
		}
		out.Channels[kind] = ch
	}
	*m = out
	return nil
}

func decodeChannel(kind SensorKind, doc rawChannelDocument, threeAxis bool) (SensorChannel, error) {
	var ch SensorChannel
	var err error
	if ch.Baseline, err = decodeValue(doc.Normal, threeAxis); err != nil {
		return ch, fmt.Errorf("normal: %w", err)
	}
	if ch.Min, err = decodeValue(doc.Min, threeAxis); err != nil {
		return ch, fmt.Errorf("min: %w", err)
	}
	if ch.Max, err = decodeValue(doc.Max, threeAxis); err != nil {
		return ch, fmt.Errorf("max: %w", err)
	}
	ch.Unit = doc.Unit
	if ch.Unit == "" {
		if spec, ok := SpecFor(kind); ok {
			ch.Unit = spec.Unit
		}
	}
	ch.Recordings = make([]Recording, 0, len(doc.Recordings))
	for i, raw := range doc.Recordings {
		if isNull(raw) {
			continue
		}
		rec, err := decodeRecording(kind, raw, threeAxis)
		if err != nil {
			return ch, fmt.Errorf("recording %d: %w", i, err)
		}
		ch.Recordings = append(ch.Recordings, rec)
	}
	return ch, nil
}

func valueDocument(v Value) any {
	if v.ThreeAxis {
		return map[string]float64{
			fieldXAxis: v.Axes.X,
			fieldYAxis: v.Axes.Y,
			fieldZAxis: v.Axes.Z,
		}
	}
	return v.Scalar
}

type axesDocument struct {
	X *float64 `json:"x_axis"`
	Y *float64 `json:"y_axis"`
	Z *float64 `json:"z_axis"`
}

// decodeValue is lenient: absent bounds and absent axes read as zero.
func decodeValue(raw json.RawMessage, threeAxis bool) (Value, error) {
	if isNull(raw) {
		if threeAxis {
			return AxesValue(0, 0, 0), nil
		}
		return ScalarValue(0), nil
	}
	if threeAxis {
		var doc axesDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Value{}, err
		}
		return AxesValue(deref(doc.X), deref(doc.Y), deref(doc.Z)), nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return Value{}, err
	}
	return ScalarValue(v), nil
}

// recordingFields renders a recording the way it travels on the wire and in
// machine documents: scalar readings live under a key named after the sensor.
func recordingFields(kind SensorKind, rec Recording) map[string]any {
	fields := map[string]any{
		fieldTimestamp: rec.Timestamp,
		fieldDeviceId:  rec.DeviceId,
	}
	if rec.Value.ThreeAxis {
		fields[fieldXAxis] = rec.Value.Axes.X
		fields[fieldYAxis] = rec.Value.Axes.Y
		fields[fieldZAxis] = rec.Value.Axes.Z
	} else {
		fields[string(kind)] = rec.Value.Scalar
	}
	return fields
}

// decodeRecording is strict: the timestamp and every value component must be present.
func decodeRecording(kind SensorKind, raw json.RawMessage, threeAxis bool) (Recording, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Recording{}, err
	}
	ts, err := requireNumber(fields, fieldTimestamp)
	if err != nil {
		return Recording{}, err
	}
	rec := Recording{Timestamp: int64(ts)}
	if raw, ok := fields[fieldDeviceId]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &rec.DeviceId); err != nil {
			return Recording{}, fmt.Errorf("%s: %w", fieldDeviceId, err)
		}
	}
	if threeAxis {
		x, err := requireNumber(fields, fieldXAxis)
		if err != nil {
			return Recording{}, err
		}
		y, err := requireNumber(fields, fieldYAxis)
		if err != nil {
			return Recording{}, err
		}
		z, err := requireNumber(fields, fieldZAxis)
		if err != nil {
			return Recording{}, err
		}
		rec.Value = AxesValue(x, y, z)
		return rec, nil
	}
	v, err := requireNumber(fields, string(kind))
	if err != nil {
		return Recording{}, err
	}
	rec.Value = ScalarValue(v)
	return rec, nil
}

func requireNumber(fields map[string]json.RawMessage, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return 0, fmt.Errorf("missing %s", key)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

var errNotObject = errors.New("payload is not a JSON object")
