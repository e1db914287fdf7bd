package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/berfenger/healthrecorder/internal/config"
	"github.com/berfenger/healthrecorder/internal/core/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const seedJSON = `[
  {"id": "m-1", "name": "Press 4",
   "temperature": {"normal": 80, "min": 60, "max": 100, "unit": "C", "recordings": []},
   "vibration": {"normal": {"x_axis": 1, "y_axis": 1, "z_axis": 1},
                 "min": {"x_axis": 0, "y_axis": 0, "z_axis": 0},
                 "max": {"x_axis": 2, "y_axis": 2, "z_axis": 2}, "unit": "g", "recordings": []}},
  {"id": "m-2", "name": "Lathe 1",
   "pressure": {"normal": 300, "min": 250, "max": 350, "unit": "kPa", "recordings": []}}
]`

func seedMachines(t *testing.T) []domain.Machine {
	var machines []domain.Machine
	require.NoError(t, json.Unmarshal([]byte(seedJSON), &machines))
	return machines
}

func TestSQLiteSeedFetchUpdate(t *testing.T) {

	require := require.New(t)
	ctx := context.Background()

	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "machines.db"), zap.NewNop())
	require.NoError(err)
	defer repo.Close()

	n, err := repo.Seed(ctx, seedMachines(t))
	require.NoError(err)
	require.Equal(2, n)

	// already populated, second seed is a no-op
	n, err = repo.Seed(ctx, seedMachines(t))
	require.NoError(err)
	require.Zero(n)

	machines, err := repo.FetchMachines(ctx)
	require.NoError(err)
	require.Equal(seedMachines(t), machines)

	updated := machines[0].WithRecording(domain.SENSOR_KIND_TEMPERATURE, domain.Recording{
		Timestamp: 1700000000000,
		DeviceId:  domain.DEVICE_ID_TEMPERATURE_CHECK,
		Value:     domain.ScalarValue(81.5),
	})
	got, err := repo.UpdateMachine(ctx, updated)
	require.NoError(err)
	require.Equal(updated, got)

	machines, err = repo.FetchMachines(ctx)
	require.NoError(err)
	require.Equal(updated, machines[0])
	require.Equal(seedMachines(t)[1], machines[1])
}

func TestSQLiteUpdateUnknownMachine(t *testing.T) {

	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "machines.db"), zap.NewNop())
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.UpdateMachine(context.Background(), domain.Machine{Id: "nope"})
	assert.ErrorIs(t, err, domain.ErrMachineNotFound)
}

func TestSQLiteUpdateFailure(t *testing.T) {

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLiteMachineRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE machines SET name = ?, document = ?, updated_at = ? WHERE id = ?")).
		WithArgs("Press 4", sqlmock.AnyArg(), sqlmock.AnyArg(), "m-1").
		WillReturnError(errors.New("disk I/O error"))

	_, err = repo.UpdateMachine(context.Background(), seedMachines(t)[0])
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteFetchEmpty(t *testing.T) {

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM machines ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	machines, err := NewSQLiteMachineRepository(db, zap.NewNop()).FetchMachines(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, machines)
	assert.Empty(t, machines)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSeedFile(t *testing.T) {

	dir := t.TempDir()
	good := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(good, []byte(seedJSON), 0o600))

	machines, err := LoadSeedFile(good)
	require.NoError(t, err)
	assert.Len(t, machines, 2)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"name": "no id"}]`), 0o600))
	_, err = LoadSeedFile(bad)
	assert.Error(t, err)
}

func machineServer(t *testing.T) *httptest.Server {
	machines := map[string]json.RawMessage{}
	var order []string
	var seed []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(seedJSON), &seed))
	for _, raw := range seed {
		var head struct {
			Id string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &head))
		machines[head.Id] = raw
		order = append(order, head.Id)
	}

	e := echo.New()
	e.GET("/api/machines", func(c echo.Context) error {
		out := make([]json.RawMessage, 0, len(order))
		for _, id := range order {
			out = append(out, machines[id])
		}
		return c.JSON(http.StatusOK, out)
	})
	e.PATCH("/api/machines/:id", func(c echo.Context) error {
		id := c.Param("id")
		if _, ok := machines[id]; !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		machines[id] = body
		return c.JSONBlob(http.StatusOK, body)
	})
	e.PATCH("/api/broken/machines/:id", func(c echo.Context) error {
		return c.String(http.StatusInternalServerError, "boom")
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestRESTFetchAndUpdate(t *testing.T) {

	require := require.New(t)
	ctx := context.Background()

	srv := machineServer(t)
	repo := NewRESTMachineRepository(srv.URL+"/api", config.PersistenceConfig{TimeoutMillis: 2000}.Timeout(), zap.NewNop())

	machines, err := repo.FetchMachines(ctx)
	require.NoError(err)
	require.Equal(seedMachines(t), machines)

	updated := machines[1].WithRecording(domain.SENSOR_KIND_PRESSURE, domain.Recording{
		Timestamp: 1700000000000,
		DeviceId:  domain.DEVICE_ID_PRESSURE_CHECK,
		Value:     domain.ScalarValue(301.2),
	})
	got, err := repo.UpdateMachine(ctx, updated)
	require.NoError(err)
	require.Equal(updated, got)

	machines, err = repo.FetchMachines(ctx)
	require.NoError(err)
	require.Equal(updated, machines[1])
}

func TestRESTErrors(t *testing.T) {

	ctx := context.Background()
	srv := machineServer(t)

	repo := NewRESTMachineRepository(srv.URL+"/api", config.PersistenceConfig{TimeoutMillis: 2000}.Timeout(), zap.NewNop())
	_, err := repo.UpdateMachine(ctx, domain.Machine{Id: "missing"})
	assert.ErrorIs(t, err, domain.ErrMachineNotFound)

	broken := NewRESTMachineRepository(srv.URL+"/api/broken", config.PersistenceConfig{TimeoutMillis: 2000}.Timeout(), zap.NewNop())
	_, err = broken.UpdateMachine(ctx, seedMachines(t)[0])
	assert.ErrorContains(t, err, "unexpected status 500")
}

func TestNewMachineRepository(t *testing.T) {

	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(seedJSON), 0o600))

	repo, closeFn, err := NewMachineRepository(context.Background(), config.PersistenceConfig{
		Backend:  config.PERSISTENCE_BACKEND_SQLITE,
		DBPath:   filepath.Join(dir, "m.db"),
		SeedFile: seed,
	}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()

	machines, err := repo.FetchMachines(context.Background())
	require.NoError(t, err)
	assert.Len(t, machines, 2)

	_, _, err = NewMachineRepository(context.Background(), config.PersistenceConfig{Backend: "mongo"}, zap.NewNop())
	assert.Error(t, err)
}
