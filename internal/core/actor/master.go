package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/healthrecorder/internal/adapter/actor"
	"github.com/berfenger/healthrecorder/internal/core/domain"
	. "github.com/berfenger/healthrecorder/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type PersistenceActorProvider func() *adactor.PersistenceActor

type SessionActorProvider func(persistenceActor *actor.PID, eventStream *eventstream.EventStream) *SessionActor

// MasterActor supervises the persistence and session actors and routes
// requests from outside the actor system to them.
type MasterActor struct {
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck       healthCheckResult
	eventStream              *eventstream.EventStream
	persistenceActor         *actor.PID
	sessionActor             *actor.PID
	persistenceActorProvider PersistenceActorProvider
	sessionActorProvider     SessionActorProvider
	logger                   *zap.Logger
}

type healthCheckResult struct {
	persistenceActorHealthy bool
	sessionActorHealthy     bool
	sessionState            string
	checksReceived          int
	respondTo               *actor.PID
}

func NewMasterActor(eventStream *eventstream.EventStream, persistenceActorProvider PersistenceActorProvider,
	sessionActorProvider SessionActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		behavior:                 actor.NewBehavior(),
		stash:                    &Stash{},
		logger:                   ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:              eventStream,
		persistenceActorProvider: persistenceActorProvider,
		sessionActorProvider:     sessionActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start persistence child
		persistenceActorPID, err := state.startPersistenceActor(ctx)
		if err != nil {
			panic(err)
		}
		state.persistenceActor = persistenceActorPID

		// start session child
		sessionActorPID, err := state.startSessionActor(ctx)
		if err != nil {
			panic(err)
		}
		state.sessionActor = sessionActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// Persistence Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.persistenceActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_PERSISTENCE,
				Healthy: false,
			}
		})
		// Session Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.sessionActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_SESSION,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.StartRecordingRequest, domain.StopRecordingRequest,
		domain.ReconfigureRecordingRequest, domain.SessionStatusRequest:
		state.logger.Debug("master@default forward to session", zap.String("type", fmt.Sprintf("%T", msg)))
		ctx.Forward(state.sessionActor)
	case domain.FetchMachinesRequest, domain.UpdateMachineRequest:
		state.logger.Debug("master@default forward to persistence", zap.String("type", fmt.Sprintf("%T", msg)))
		ctx.Forward(state.persistenceActor)
	case *actor.Terminated:
		// persistence is required by every session, without it there is nothing to run
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_PERSISTENCE) {
			state.logger.Error("master@default persistence terminated")
			panic(errors.New("persistence terminated"))
		}
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.SetReceiveTimeout(0)
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			if msg.Id == domain.ACTOR_ID_PERSISTENCE {
				state.currentHealthCheck.persistenceActorHealthy = true
			} else if msg.Id == domain.ACTOR_ID_SESSION {
				state.currentHealthCheck.sessionActorHealthy = true
				state.currentHealthCheck.sessionState = msg.State
			}
		}
		if state.currentHealthCheck.allReceived() {
			ctx.SetReceiveTimeout(0)
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) startPersistenceActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	persistenceProps := actor.PropsFromProducer(func() actor.Actor {
		return state.persistenceActorProvider()
	}, actor.WithSupervisor(supervisor))
	persistenceActorPID, err := ctx.SpawnNamed(persistenceProps, domain.ACTOR_ID_PERSISTENCE)
	if err != nil {
		return nil, err
	}

	return persistenceActorPID, nil
}

func (state *MasterActor) startSessionActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	sessionProps := actor.PropsFromProducer(func() actor.Actor {
		return state.sessionActorProvider(state.persistenceActor, state.eventStream)
	}, actor.WithSupervisor(supervisor))
	sessionActorPID, err := ctx.SpawnNamed(sessionProps, domain.ACTOR_ID_SESSION)
	if err != nil {
		return nil, err
	}

	return sessionActorPID, nil
}

func (state *healthCheckResult) reset() {
	state.persistenceActorHealthy = false
	state.sessionActorHealthy = false
	state.sessionState = ""
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 2
}

func (state *healthCheckResult) allHealthy() bool {
	return state.persistenceActorHealthy && state.sessionActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   state.sessionState,
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
