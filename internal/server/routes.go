package server

import (
	"errors"
	"net/http"

	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/service"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type sessionConfigBody struct {
	MachineId       string              `json:"machine_id"`
	IntervalSeconds uint                `json:"interval_seconds"`
	Selection       []domain.SensorKind `json:"selection"`
}

func (b sessionConfigBody) toConfig() domain.SessionConfig {
	return domain.SessionConfig{
		MachineId:       b.MachineId,
		IntervalSeconds: b.IntervalSeconds,
		Selection:       b.Selection,
	}
}

type statusBody struct {
	SessionId string               `json:"session_id,omitempty"`
	Phase     domain.SessionPhase  `json:"phase"`
	Config    domain.SessionConfig `json:"config"`
	LastError string               `json:"last_error,omitempty"`
}

type pointBody struct {
	Timestamp  int64  `json:"timestamp"`
	Value      any    `json:"value"`
	OutOfRange bool   `json:"out_of_range"`
	Color      string `json:"color,omitempty"`
}

type seriesBody struct {
	Kind   domain.SensorKind `json:"kind"`
	Unit   string            `json:"unit"`
	Min    any               `json:"min"`
	Max    any               `json:"max"`
	Points []pointBody       `json:"points"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	e.GET("/machines", s.MachinesHandler)

	e.GET("/recording", s.StatusHandler)
	e.POST("/recording/start", s.StartHandler)
	e.POST("/recording/stop", s.StopHandler)
	e.PUT("/recording/config", s.ReconfigureHandler)
	e.GET("/recording/snapshot", s.SnapshotHandler)
	e.GET("/recording/snapshot/:kind", s.SeriesHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	response, err := s.recorder.Health()
	if err == nil && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"version":     versioninfo.Short(),
		"revision":    versioninfo.Revision,
		"last_commit": versioninfo.LastCommit,
	})
}

func (s *Server) MachinesHandler(c echo.Context) error {
	machines, err := s.recorder.Machines()
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, machines)
}

func (s *Server) StatusHandler(c echo.Context) error {
	status, err := s.recorder.Status()
	if err != nil {
		return errorResponse(c, err)
	}
	body := statusBody{
		SessionId: status.SessionId,
		Phase:     status.Phase,
		Config:    status.Config,
	}
	if status.LastError != nil {
		body.LastError = status.LastError.Error()
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) StartHandler(c echo.Context) error {
	var body sessionConfigBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	sessionId, err := s.recorder.Start(body.toConfig())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"session_id": sessionId})
}

func (s *Server) StopHandler(c echo.Context) error {
	stopped, err := s.recorder.Stop()
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"stopped": stopped})
}

func (s *Server) ReconfigureHandler(c echo.Context) error {
	var body sessionConfigBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	if err := s.recorder.Reconfigure(body.toConfig()); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SnapshotHandler projects every series from a single snapshot load, so a
// merge landing mid-request cannot mix two snapshots.
func (s *Server) SnapshotHandler(c echo.Context) error {
	machine, ok := s.recorder.Snapshot()
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody{Error: "no recording yet"})
	}
	series := make([]seriesBody, 0, len(machine.Channels))
	for _, kind := range machine.Kinds() {
		ch, _ := machine.Channel(kind)
		points, _ := service.ChartSeries(machine, kind)
		series = append(series, newSeriesBody(kind, ch, points))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"machine_id": machine.Id,
		"name":       machine.Name,
		"series":     series,
	})
}

func (s *Server) SeriesHandler(c echo.Context) error {
	kind := domain.SensorKind(c.Param("kind"))
	ch, points, ok := s.recorder.Series(kind)
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody{Error: "no such sensor in the recording"})
	}
	return c.JSON(http.StatusOK, newSeriesBody(kind, ch, points))
}

func newSeriesBody(kind domain.SensorKind, ch domain.SensorChannel, points []service.ChartPoint) seriesBody {
	body := seriesBody{
		Kind:   kind,
		Unit:   ch.Unit,
		Min:    valueBody(ch.Min),
		Max:    valueBody(ch.Max),
		Points: make([]pointBody, 0, len(points)),
	}
	for _, p := range points {
		point := pointBody{
			Timestamp:  p.Timestamp,
			Value:      valueBody(p.Value),
			OutOfRange: p.OutOfRange,
		}
		if p.OutOfRange {
			point.Color = service.VALUE_COLOR_OUT_OF_RANGE
		}
		body.Points = append(body.Points, point)
	}
	return body
}

func valueBody(v domain.Value) any {
	if v.ThreeAxis {
		return map[string]float64{"x_axis": v.Axes.X, "y_axis": v.Axes.Y, "z_axis": v.Axes.Z}
	}
	return v.Scalar
}

func errorResponse(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidConfig):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrMachineNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyRunning), errors.Is(err, domain.ErrNotRunning):
		code = http.StatusConflict
	}
	return c.JSON(code, errorBody{Error: err.Error()})
}
