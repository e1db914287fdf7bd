package domain

const (
	DEVICE_ID_TEMPERATURE_CHECK = "D5555"
	DEVICE_ID_VIBRATION_CHECK   = "D1234"
	DEVICE_ID_PRESSURE_CHECK    = "D5678"
	DEVICE_ID_HUMIDITY_CHECK    = "D9999"
)

type SensorSpec struct {
	Kind      SensorKind
	Name      string
	Unit      string
	DeviceId  string
	Decimals  uint
	ThreeAxis bool
}

var catalogue = map[SensorKind]SensorSpec{
	SENSOR_KIND_TEMPERATURE: {
		Kind:     SENSOR_KIND_TEMPERATURE,
		Name:     "Temperature",
		Unit:     "C",
		DeviceId: DEVICE_ID_TEMPERATURE_CHECK,
		Decimals: 1,
	},
	SENSOR_KIND_VIBRATION: {
		Kind:      SENSOR_KIND_VIBRATION,
		Name:      "Vibration",
		Unit:      "g",
		DeviceId:  DEVICE_ID_VIBRATION_CHECK,
		Decimals:  3,
		ThreeAxis: true,
	},
	SENSOR_KIND_PRESSURE: {
		Kind:     SENSOR_KIND_PRESSURE,
		Name:     "Pressure",
		Unit:     "kPa",
		DeviceId: DEVICE_ID_PRESSURE_CHECK,
		Decimals: 1,
	},
	SENSOR_KIND_HUMIDITY: {
		Kind:     SENSOR_KIND_HUMIDITY,
		Name:     "Humidity",
		Unit:     "%",
		DeviceId: DEVICE_ID_HUMIDITY_CHECK,
		Decimals: 1,
	},
}

// CatalogueKinds returns the modelled sensor kinds in display order.
func CatalogueKinds() []SensorKind {
	return []SensorKind{
		SENSOR_KIND_TEMPERATURE,
		SENSOR_KIND_VIBRATION,
		SENSOR_KIND_PRESSURE,
		SENSOR_KIND_HUMIDITY,
	}
}

func SpecFor(kind SensorKind) (SensorSpec, bool) {
	spec, ok := catalogue[kind]
	return spec, ok
}

func (k SensorKind) IsKnown() bool {
	_, ok := catalogue[k]
	return ok
}

func (k SensorKind) ThreeAxis() bool {
	return catalogue[k].ThreeAxis
}
