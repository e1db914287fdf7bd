package recorder

import (
	"fmt"
	"time"

	coreactor "github.com/berfenger/healthrecorder/internal/core/actor"
	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/service"

	"github.com/asynkron/protoactor-go/actor"
)

const DEFAULT_REQUEST_TIMEOUT = 10 * time.Second

// Recorder is the synchronous entry point into the actor system used by the
// presentation layer. Every call is a request to the master actor, except the
// snapshot reads which go straight to the shared cell.
type Recorder struct {
	rootContext *actor.RootContext
	master      *actor.PID
	snapshot    *coreactor.SnapshotCell
	timeout     time.Duration
}

func NewRecorder(rootContext *actor.RootContext, master *actor.PID, snapshot *coreactor.SnapshotCell) *Recorder {
	return &Recorder{
		rootContext: rootContext,
		master:      master,
		snapshot:    snapshot,
		timeout:     DEFAULT_REQUEST_TIMEOUT,
	}
}

func (r *Recorder) WithTimeout(timeout time.Duration) *Recorder {
	r.timeout = timeout
	return r
}

func (r *Recorder) Machines() ([]domain.Machine, error) {
	resp, err := request[domain.FetchMachinesResponse](r, domain.FetchMachinesRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Machines, resp.GetResponseError()
}

// Start looks the machine up in persistence and starts recording it.
func (r *Recorder) Start(cfg domain.SessionConfig) (string, error) {
	machines, err := r.Machines()
	if err != nil {
		return "", err
	}
	var machine *domain.Machine
	for i := range machines {
		if machines[i].Id == cfg.MachineId {
			machine = &machines[i]
			break
		}
	}
	if machine == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrMachineNotFound, cfg.MachineId)
	}
	resp, err := request[domain.StartRecordingResponse](r, domain.StartRecordingRequest{
		Config:  cfg,
		Machine: *machine,
	})
	if err != nil {
		return "", err
	}
	return resp.SessionId, resp.GetResponseError()
}

// Stop returns false when there was no session to stop.
func (r *Recorder) Stop() (bool, error) {
	resp, err := request[domain.StopRecordingResponse](r, domain.StopRecordingRequest{})
	if err != nil {
		return false, err
	}
	return resp.Stopped, resp.GetResponseError()
}

func (r *Recorder) Reconfigure(cfg domain.SessionConfig) error {
	resp, err := request[domain.ReconfigureRecordingResponse](r, domain.ReconfigureRecordingRequest{Config: cfg})
	if err != nil {
		return err
	}
	return resp.GetResponseError()
}

func (r *Recorder) Status() (domain.SessionStatus, error) {
	resp, err := request[domain.SessionStatusResponse](r, domain.SessionStatusRequest{})
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return resp.Status, resp.GetResponseError()
}

func (r *Recorder) Health() (domain.ActorHealthResponse, error) {
	return request[domain.ActorHealthResponse](r, domain.ActorHealthRequest{})
}

// Snapshot is the machine as last merged, false before the first session.
func (r *Recorder) Snapshot() (domain.Machine, bool) {
	return r.snapshot.Load()
}

// Series returns the chart points for one sensor of the current snapshot.
func (r *Recorder) Series(kind domain.SensorKind) (domain.SensorChannel, []service.ChartPoint, bool) {
	machine, ok := r.snapshot.Load()
	if !ok {
		return domain.SensorChannel{}, nil, false
	}
	ch, ok := machine.Channel(kind)
	if !ok {
		return domain.SensorChannel{}, nil, false
	}
	points, _ := service.ChartSeries(machine, kind)
	return ch, points, true
}

func request[T any](r *Recorder, msg any) (T, error) {
	var zero T
	res, err := r.rootContext.RequestFuture(r.master, msg, r.timeout).Result()
	if err != nil {
		return zero, err
	}
	resp, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected response %T", res)
	}
	return resp, nil
}
