package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/service"
	"github.com/berfenger/healthrecorder/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	machines   []domain.Machine
	startErr   error
	stopped    bool
	reconfErr  error
	status     domain.SessionStatus
	healthy    bool
	snapshot   *domain.Machine
	lastConfig domain.SessionConfig
	reads      int
}

func (f *fakeRecorder) Machines() ([]domain.Machine, error) { return f.machines, nil }

func (f *fakeRecorder) Start(cfg domain.SessionConfig) (string, error) {
	f.lastConfig = cfg
	if f.startErr != nil {
		return "", f.startErr
	}
	return "s-1", nil
}

func (f *fakeRecorder) Stop() (bool, error) { return f.stopped, nil }

func (f *fakeRecorder) Reconfigure(cfg domain.SessionConfig) error {
	f.lastConfig = cfg
	return f.reconfErr
}

func (f *fakeRecorder) Status() (domain.SessionStatus, error) { return f.status, nil }

func (f *fakeRecorder) Health() (domain.ActorHealthResponse, error) {
	return domain.ActorHealthResponse{Healthy: f.healthy}, nil
}

func (f *fakeRecorder) Snapshot() (domain.Machine, bool) {
	f.reads++
	if f.snapshot == nil {
		return domain.Machine{}, false
	}
	return *f.snapshot, true
}

func (f *fakeRecorder) Series(kind domain.SensorKind) (domain.SensorChannel, []service.ChartPoint, bool) {
	f.reads++
	if f.snapshot == nil {
		return domain.SensorChannel{}, nil, false
	}
	ch, ok := f.snapshot.Channel(kind)
	if !ok {
		return domain.SensorChannel{}, nil, false
	}
	points, _ := service.ChartSeries(*f.snapshot, kind)
	return ch, points, true
}

func recordedMachine() *domain.Machine {
	return &domain.Machine{
		Id:   "m-1",
		Name: "Press 4",
		Channels: map[domain.SensorKind]domain.SensorChannel{
			domain.SENSOR_KIND_TEMPERATURE: {
				Baseline: domain.ScalarValue(80),
				Min:      domain.ScalarValue(60),
				Max:      domain.ScalarValue(100),
				Unit:     "C",
				Recordings: []domain.Recording{
					{Timestamp: 1000, DeviceId: "d", Value: domain.ScalarValue(85)},
					{Timestamp: 2000, DeviceId: "d", Value: domain.ScalarValue(120)},
				},
			},
		},
	}
}

func serve(rec Recorder, method, path, body string) *httptest.ResponseRecorder {
	cfg := util.LoadTestConfig()
	s := &Server{port: cfg.Port, recorder: rec, gatherer: prometheus.NewRegistry()}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	w := serve(&fakeRecorder{healthy: true}, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "health_check: OK", w.Body.String())

	w = serve(&fakeRecorder{}, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStartRecording(t *testing.T) {
	rec := &fakeRecorder{}
	w := serve(rec, http.MethodPost, "/recording/start",
		`{"machine_id":"m-1","interval_seconds":5,"selection":["temperature"]}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"session_id":"s-1"}`, w.Body.String())
	assert.Equal(t, domain.SessionConfig{
		MachineId:       "m-1",
		IntervalSeconds: 5,
		Selection:       []domain.SensorKind{domain.SENSOR_KIND_TEMPERATURE},
	}, rec.lastConfig)
}

func TestStartRecordingErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.NewSessionError(domain.ErrInvalidConfig, errors.New("interval")), http.StatusBadRequest},
		{domain.NewSessionError(domain.ErrAlreadyRunning, nil), http.StatusConflict},
		{domain.ErrMachineNotFound, http.StatusNotFound},
		{errors.New("future: timeout"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		w := serve(&fakeRecorder{startErr: c.err}, http.MethodPost, "/recording/start", `{"machine_id":"m-1"}`)
		assert.Equal(t, c.code, w.Code, c.err.Error())
	}
}

func TestStopAndReconfigure(t *testing.T) {
	w := serve(&fakeRecorder{stopped: true}, http.MethodPost, "/recording/stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"stopped":true}`, w.Body.String())

	rec := &fakeRecorder{}
	w = serve(rec, http.MethodPut, "/recording/config", `{"interval_seconds":10,"selection":["temperature"]}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, uint(10), rec.lastConfig.IntervalSeconds)

	w = serve(&fakeRecorder{reconfErr: domain.NewSessionError(domain.ErrNotRunning, nil)},
		http.MethodPut, "/recording/config", `{"interval_seconds":10}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRecordingStatus(t *testing.T) {
	rec := &fakeRecorder{status: domain.SessionStatus{
		SessionId: "s-1",
		Phase:     domain.PHASE_ACTIVE,
		LastError: domain.NewSessionError(domain.ErrPublish, errors.New("timeout")),
	}}
	w := serve(rec, http.MethodGet, "/recording", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body statusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "s-1", body.SessionId)
	assert.Equal(t, domain.PHASE_ACTIVE, body.Phase)
	assert.Contains(t, body.LastError, "timeout")
}

func TestSnapshotSeries(t *testing.T) {
	w := serve(&fakeRecorder{}, http.MethodGet, "/recording/snapshot", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	rec := &fakeRecorder{snapshot: recordedMachine()}
	w = serve(rec, http.MethodGet, "/recording/snapshot/temperature", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"kind": "temperature", "unit": "C", "min": 60, "max": 100,
		"points": [
			{"timestamp": 1000, "value": 85, "out_of_range": false},
			{"timestamp": 2000, "value": 120, "out_of_range": true, "color": "red"}
		]}`, w.Body.String())

	w = serve(rec, http.MethodGet, "/recording/snapshot/pressure", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(rec, http.MethodGet, "/recording/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"machine_id":"m-1"`)
}

func TestSnapshotReadsOnce(t *testing.T) {

	machine := recordedMachine()
	machine.Channels[domain.SENSOR_KIND_PRESSURE] = domain.SensorChannel{
		Baseline:   domain.ScalarValue(300),
		Min:        domain.ScalarValue(250),
		Max:        domain.ScalarValue(350),
		Unit:       "kPa",
		Recordings: []domain.Recording{{Timestamp: 1000, DeviceId: "d", Value: domain.ScalarValue(301)}},
	}
	rec := &fakeRecorder{snapshot: machine}

	w := serve(rec, http.MethodGet, "/recording/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rec.reads)

	var body struct {
		Series []seriesBody `json:"series"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Series, 2)
	assert.Equal(t, domain.SENSOR_KIND_TEMPERATURE, body.Series[0].Kind)
	assert.Len(t, body.Series[0].Points, 2)
	assert.Equal(t, domain.SENSOR_KIND_PRESSURE, body.Series[1].Kind)
	assert.Len(t, body.Series[1].Points, 1)
}

func TestMetricsAndVersion(t *testing.T) {
	w := serve(&fakeRecorder{}, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(&fakeRecorder{}, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "version")
}
