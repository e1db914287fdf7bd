package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/port"

	"go.uber.org/zap"
)

// RESTMachineRepository talks to the machine service:
// GET {base}/machines and PATCH {base}/machines/{id}.
type RESTMachineRepository struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ port.MachineRepository = (*RESTMachineRepository)(nil)

func NewRESTMachineRepository(baseURL string, timeout time.Duration, logger *zap.Logger) *RESTMachineRepository {
	return &RESTMachineRepository{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("repository", "rest")),
	}
}

func (r *RESTMachineRepository) FetchMachines(ctx context.Context) ([]domain.Machine, error) {
	endpoint, err := url.JoinPath(r.baseURL, "machines")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var machines []domain.Machine
	if err := r.do(req, &machines); err != nil {
		return nil, fmt.Errorf("fetch machines: %w", err)
	}
	if machines == nil {
		machines = []domain.Machine{}
	}
	return machines, nil
}

// UpdateMachine sends the whole document and returns the server's view of it.
func (r *RESTMachineRepository) UpdateMachine(ctx context.Context, machine domain.Machine) (domain.Machine, error) {
	endpoint, err := url.JoinPath(r.baseURL, "machines", url.PathEscape(machine.Id))
	if err != nil {
		return domain.Machine{}, err
	}
	body, err := json.Marshal(machine)
	if err != nil {
		return domain.Machine{}, fmt.Errorf("encode machine: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Machine{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var updated domain.Machine
	if err := r.do(req, &updated); err != nil {
		return domain.Machine{}, fmt.Errorf("update machine %s: %w", machine.Id, err)
	}
	r.logger.Debug("machine updated", zap.String("id", machine.Id))
	return updated, nil
}

func (r *RESTMachineRepository) do(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrMachineNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
