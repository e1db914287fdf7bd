package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/port"
	"github.com/berfenger/healthrecorder/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// PersistenceActor serializes all access to the machine repository.
// One request is in flight at a time, later ones are stashed.
type PersistenceActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	repo     port.MachineRepository
	timeout  time.Duration
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewPersistenceActor(repo port.MachineRepository, timeout time.Duration, logger *zap.Logger) *PersistenceActor {
	act := &PersistenceActor{
		repo:     repo,
		timeout:  timeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_PERSISTENCE, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PersistenceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PersistenceActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("persistence@starting started")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("persistence@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PersistenceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("persistence@default: ActorHealthRequest")
		actorutil.ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PERSISTENCE,
			Healthy: true,
			State:   "idle",
		})
	case domain.FetchMachinesRequest:
		state.logger.Debug("persistence@default: FetchMachinesRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.fetchMachines),
			mapTaskResult[domain.FetchMachinesResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.FetchMachinesResponse{
					ActorResponseMixIn: domain.ResponseWithError(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingRepository)
	case domain.UpdateMachineRequest:
		state.logger.Debug("persistence@default: UpdateMachineRequest", zap.String("machine", msg.Machine.Id))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		machine := msg.Machine
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.UpdateMachineResponse, error) {
			return state.updateMachine(machine)
		}), mapTaskResult[domain.UpdateMachineResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.UpdateMachineResponse{
					ActorResponseMixIn: domain.ResponseWithError(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingRepository)
	default:
		state.logger.Debug("persistence@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PersistenceActor) WaitingRepository(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("persistence@WaitingRepository backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		if pending := state.stash.Len(); pending > 0 {
			state.logger.Debug("persistence@WaitingRepository unstash", zap.Int("pending", pending))
		}
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("persistence@WaitingRepository stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PersistenceActor) fetchMachines() (*domain.FetchMachinesResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), state.timeout)
	defer cancel()
	machines, err := state.repo.FetchMachines(ctx)
	if err != nil {
		state.logger.Error("fetch machines failed", zap.Error(err))
		return nil, err
	}
	return &domain.FetchMachinesResponse{
		Machines: machines,
	}, nil
}

func (state *PersistenceActor) updateMachine(machine domain.Machine) (*domain.UpdateMachineResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), state.timeout)
	defer cancel()
	updated, err := state.repo.UpdateMachine(ctx, machine)
	if err != nil {
		state.logger.Error("update machine failed", zap.String("machine", machine.Id), zap.Error(err))
		return nil, err
	}
	return &domain.UpdateMachineResponse{
		Machine: &updated,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
