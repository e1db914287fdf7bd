package actor

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/berfenger/healthrecorder/internal/config"
	"github.com/berfenger/healthrecorder/internal/core/domain"
	"github.com/berfenger/healthrecorder/internal/core/events"
	"github.com/berfenger/healthrecorder/internal/core/port"
	"github.com/berfenger/healthrecorder/internal/core/service"
	. "github.com/berfenger/healthrecorder/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// exactly once, for subscribe, publish and unsubscribe alike
	HEALTH_CHECK_QOS   byte = 2
	DISCONNECT_QUIESCE      = 250 * time.Millisecond
	PERSIST_QUEUE_DEPTH     = 2
)

// TickScheduler arms a repeating delivery of msg to target every interval.
type TickScheduler func(interval time.Duration, target *actor.PID, msg any) scheduler.CancelFunc

// SessionActor runs one recording session at a time:
// idle -> connecting -> active -> stopping -> idle.
//
// Every asynchronous result is tagged with the generation it was started in.
// Stopping or failing bumps the generation, so results arriving afterwards are dropped.
type SessionActor struct {
	ActorWithStates
	stash            *Stash
	scheduler        *scheduler.TimerScheduler
	schedule         TickScheduler
	linkProvider     port.BrokerLinkProvider
	synthesizer      port.ReadingSynthesizer
	persistenceActor *actor.PID
	eventStream      *eventstream.EventStream
	snapshot         *SnapshotCell
	config           *config.Config

	phase      domain.SessionPhase
	gen        uint64
	timer      uint64
	cancelTick scheduler.CancelFunc
	session    recordingSession

	logger *zap.Logger
}

type recordingSession struct {
	id        string
	config    domain.SessionConfig
	machine   domain.Machine
	link      port.BrokerLink
	lastError error
}

type taggedMessage interface {
	generation() uint64
}

type sessionTick struct {
	gen   uint64
	timer uint64
}

type brokerConnected struct {
	gen  uint64
	link port.BrokerLink
	err  error
}

type brokerSubscribed struct {
	gen uint64
	err error
}

type brokerMessage struct {
	gen     uint64
	payload []byte
}

type publishResult struct {
	gen   uint64
	kinds []domain.SensorKind
	err   error
}

type linkClosed struct {
	gen uint64
}

type linkLost struct {
	gen uint64
	err error
}

type linkReconnected struct {
	gen uint64
}

func (m sessionTick) generation() uint64      { return m.gen }
func (m brokerConnected) generation() uint64  { return m.gen }
func (m brokerSubscribed) generation() uint64 { return m.gen }
func (m brokerMessage) generation() uint64    { return m.gen }
func (m publishResult) generation() uint64    { return m.gen }
func (m linkClosed) generation() uint64       { return m.gen }
func (m linkLost) generation() uint64         { return m.gen }
func (m linkReconnected) generation() uint64  { return m.gen }

type sessionState interface {
	ActorState
	Phase() domain.SessionPhase
}

func NewSessionActor(config *config.Config, linkProvider port.BrokerLinkProvider, synthesizer port.ReadingSynthesizer,
	persistenceActor *actor.PID, eventStream *eventstream.EventStream, snapshot *SnapshotCell, logger *zap.Logger) *SessionActor {
	act := &SessionActor{
		config:           config,
		linkProvider:     linkProvider,
		synthesizer:      synthesizer,
		persistenceActor: persistenceActor,
		eventStream:      eventStream,
		snapshot:         snapshot,
		stash:            &Stash{},
		phase:            domain.PHASE_IDLE,
		logger:           ActorLogger(domain.ACTOR_ID_SESSION, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(SessionIdleState{
		actor: act,
	})
	return act
}

// WithTickScheduler replaces the timer used to drive publish ticks.
func (state *SessionActor) WithTickScheduler(schedule TickScheduler) *SessionActor {
	state.schedule = schedule
	return state
}

func (state *SessionActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Idle state

type SessionIdleState struct {
	ActorState
	actor *SessionActor
}

func (state SessionIdleState) Name() string {
	return "idle"
}

func (state SessionIdleState) Phase() domain.SessionPhase {
	return domain.PHASE_IDLE
}

func (state SessionIdleState) Receive(ctx actor.Context) {
	if state.actor.receiveAny(ctx, state) {
		return
	}
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("session@idle started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		if state.actor.schedule == nil {
			state.actor.schedule = func(interval time.Duration, target *actor.PID, msg any) scheduler.CancelFunc {
				return state.actor.scheduler.SendRepeatedly(interval, interval, target, msg)
			}
		}
	case domain.StartRecordingRequest:
		state.actor.logger.Debug("session@idle StartRecordingRequest", zap.String("machine", msg.Machine.Id))
		state.actor.start(ctx, msg)
	case domain.StopRecordingRequest:
		state.actor.logger.Debug("session@idle StopRecordingRequest: not running")
		ForRequest(msg).Respond(ctx, domain.StopRecordingResponse{Stopped: false})
	case domain.ReconfigureRecordingRequest:
		ForRequest(msg).Respond(ctx, domain.ReconfigureRecordingResponse{
			ActorResponseMixIn: domain.ResponseWithError(domain.NewSessionError(domain.ErrNotRunning, nil)),
		})
	default:
		state.actor.logger.Debug("session@idle recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state SessionIdleState) OnEnter(ctx actor.Context) SessionIdleState {
	state.actor.cancelTimer()
	state.actor.session.link = nil
	state.actor.stash.UnstashAll(ctx)
	return state
}

// Connecting state

type SessionConnectingState struct {
	ActorState
	actor *SessionActor
}

func (state SessionConnectingState) Name() string {
	return "connecting"
}

func (state SessionConnectingState) Phase() domain.SessionPhase {
	return domain.PHASE_CONNECTING
}

func (state SessionConnectingState) Receive(ctx actor.Context) {
	if state.actor.receiveAny(ctx, state) {
		return
	}
	switch msg := ctx.Message().(type) {
	case brokerConnected:
		if msg.err != nil {
			state.actor.logger.Warn("session@connecting connect failed", zap.Error(msg.err))
			state.actor.fail(domain.ErrConnect, msg.err)
			state.actor.gen++
			go msg.link.Disconnect(0)
			state.actor.become(SessionIdleState{actor: state.actor}.OnEnter(ctx))
			return
		}
		state.actor.logger.Info("session@connecting connected", zap.String("session", state.actor.session.id))
		state.actor.become(SessionActiveState{actor: state.actor}.OnEnter(ctx))
	case domain.StartRecordingRequest:
		state.actor.rejectStart(ctx, msg)
	case domain.StopRecordingRequest:
		state.actor.logger.Debug("session@connecting StopRecordingRequest")
		// the pending connect result is now stale and disconnects itself
		state.actor.gen++
		state.actor.become(SessionStoppingState{actor: state.actor})
		state.actor.become(SessionIdleState{actor: state.actor}.OnEnter(ctx))
		ForRequest(msg).Respond(ctx, domain.StopRecordingResponse{Stopped: true})
	case domain.ReconfigureRecordingRequest:
		state.actor.reconfigure(ctx, msg)
	default:
		state.actor.logger.Debug("session@connecting recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Active state

type SessionActiveState struct {
	ActorState
	actor *SessionActor
}

func (state SessionActiveState) Name() string {
	return "active"
}

func (state SessionActiveState) Phase() domain.SessionPhase {
	return domain.PHASE_ACTIVE
}

func (state SessionActiveState) Receive(ctx actor.Context) {
	if state.actor.receiveAny(ctx, state) {
		return
	}
	switch msg := ctx.Message().(type) {
	case sessionTick:
		if msg.timer != state.actor.timer {
			state.actor.logger.Debug("session@active stale tick")
			return
		}
		state.actor.logger.Debug("session@active tick")
		state.actor.publishEvents(domain.SessionTickEvent{SessionEventMixIn: state.actor.eventMixIn()})
		state.actor.publishReadings(ctx)
	case publishResult:
		if msg.err != nil {
			state.actor.logger.Warn("session@active publish failed", zap.Error(msg.err))
			state.actor.fail(domain.ErrPublish, msg.err)
			return
		}
		state.actor.publishEvents(domain.ReadingsPublishedEvent{
			SessionEventMixIn: state.actor.eventMixIn(),
			Kinds:             msg.kinds,
		})
	case brokerSubscribed:
		if msg.err != nil {
			state.actor.logger.Warn("session@active subscribe failed", zap.Error(msg.err))
			state.actor.fail(domain.ErrSubscribe, msg.err)
			return
		}
		state.actor.logger.Debug("session@active subscribed", zap.String("topic", state.actor.topic()))
	case linkLost:
		state.actor.logger.Warn("session@active connection lost", zap.Error(msg.err))
		state.actor.fail(domain.ErrConnectionLost, msg.err)
	case linkReconnected:
		// the broker dropped the subscription with the old connection
		state.actor.logger.Info("session@active reconnected, subscribing again")
		state.actor.subscribe(ctx)
	case brokerMessage:
		state.actor.logger.Debug("session@active brokerMessage", zap.Int("bytes", len(msg.payload)))
		state.actor.merge(ctx, msg.payload)
	case domain.StartRecordingRequest:
		state.actor.rejectStart(ctx, msg)
	case domain.StopRecordingRequest:
		state.actor.logger.Debug("session@active StopRecordingRequest")
		state.actor.become(SessionStoppingState{
			actor:   state.actor,
			replyTo: ForRequest(msg).ReplyTo(ctx),
		}.OnEnter(ctx))
	case domain.ReconfigureRecordingRequest:
		state.actor.reconfigure(ctx, msg)
	default:
		state.actor.logger.Debug("session@active recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state SessionActiveState) OnEnter(ctx actor.Context) SessionActiveState {
	state.actor.subscribe(ctx)
	state.actor.armTimer(ctx)
	return state
}

// Stopping state

type SessionStoppingState struct {
	ActorState
	actor   *SessionActor
	replyTo *actor.PID
}

func (state SessionStoppingState) Name() string {
	return "stopping"
}

func (state SessionStoppingState) Phase() domain.SessionPhase {
	return domain.PHASE_STOPPING
}

func (state SessionStoppingState) Receive(ctx actor.Context) {
	if state.actor.receiveAny(ctx, state) {
		return
	}
	switch msg := ctx.Message().(type) {
	case linkClosed:
		state.actor.logger.Debug("session@stopping link closed")
		state.actor.become(SessionIdleState{actor: state.actor}.OnEnter(ctx))
		if state.replyTo != nil {
			ctx.Send(state.replyTo, domain.StopRecordingResponse{Stopped: true})
		}
	case domain.StartRecordingRequest, domain.StopRecordingRequest, domain.ReconfigureRecordingRequest:
		state.actor.logger.Debug("session@stopping stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	default:
		state.actor.logger.Debug("session@stopping recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// OnEnter cancels the timer before anything else, then unsubscribes and
// disconnects off the actor thread. Both calls are bounded by their timeouts.
func (state SessionStoppingState) OnEnter(ctx actor.Context) SessionStoppingState {
	act := state.actor
	act.cancelTimer()
	act.gen++
	gen := act.gen
	link := act.session.link
	act.session.link = nil
	send := act.selfSender(ctx)
	logger := act.logger
	link.Unsubscribe(act.topic(), func(err error) {
		if err != nil {
			logger.Warn("session@stopping unsubscribe failed", zap.Error(err))
		}
		link.Disconnect(DISCONNECT_QUIESCE)
		send(linkClosed{gen: gen})
	}, act.config.MQTT.OperationTimeout())
	return state
}

// shared handling

// receiveAny handles what every state answers the same way. It returns false
// when the message is left to the current state.
func (a *SessionActor) receiveAny(ctx actor.Context, state sessionState) bool {
	switch msg := ctx.Message().(type) {
	case domain.SessionStatusRequest:
		ForRequest(msg).Respond(ctx, domain.SessionStatusResponse{
			Status: a.status(),
		})
	case domain.ActorHealthRequest:
		ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SESSION,
			Healthy: true,
			State:   a.StateName(),
		})
	case brokerConnected:
		if msg.gen == a.gen {
			return false
		}
		a.logger.Debug(fmt.Sprintf("session@%s stale brokerConnected", state.Name()))
		if msg.err == nil && msg.link != nil {
			go msg.link.Disconnect(DISCONNECT_QUIESCE)
		}
	case taggedMessage:
		if msg.generation() == a.gen {
			return false
		}
		a.logger.Debug(fmt.Sprintf("session@%s stale message", state.Name()), zap.String("type", fmt.Sprintf("%T", msg)))
	case *actor.Stopping:
		a.logger.Debug(fmt.Sprintf("session@%s stopping", state.Name()))
		a.cancelTimer()
		a.gen++
		if link := a.session.link; link != nil {
			a.session.link = nil
			go link.Disconnect(DISCONNECT_QUIESCE)
		}
	default:
		return false
	}
	return true
}

func (a *SessionActor) start(ctx actor.Context, msg domain.StartRecordingRequest) {
	if err := msg.Config.Validate(msg.Machine, a.config.Recorder.MinIntervalSeconds); err != nil {
		a.logger.Info("session@idle rejected config", zap.Error(err))
		ForRequest(msg).Respond(ctx, domain.StartRecordingResponse{
			ActorResponseMixIn: domain.ResponseWithError(err),
		})
		return
	}

	cfg := msg.Config
	cfg.MachineId = msg.Machine.Id
	cfg.Selection = slices.Clone(cfg.Selection)

	a.gen++
	send := a.selfSender(ctx)
	gen := a.gen
	link := a.linkProvider(port.LinkEvents{
		ConnectionLost: func(err error) {
			send(linkLost{gen: gen, err: err})
		},
		Reconnected: func() {
			send(linkReconnected{gen: gen})
		},
	})
	a.session = recordingSession{
		id:      uuid.NewString(),
		config:  cfg,
		machine: msg.Machine,
		link:    link,
	}
	a.snapshot.store(msg.Machine)
	a.become(SessionConnectingState{actor: a})

	link.Connect(func(err error) {
		send(brokerConnected{gen: gen, link: link, err: err})
	}, a.config.MQTT.ConnectTimeout())

	ForRequest(msg).Respond(ctx, domain.StartRecordingResponse{
		SessionId: a.session.id,
	})
}

func (a *SessionActor) rejectStart(ctx actor.Context, msg domain.StartRecordingRequest) {
	a.logger.Debug(fmt.Sprintf("session@%s StartRecordingRequest: already running", a.phase))
	ForRequest(msg).Respond(ctx, domain.StartRecordingResponse{
		ActorResponseMixIn: domain.ResponseWithError(domain.NewSessionError(domain.ErrAlreadyRunning, nil)),
	})
}

// reconfigure swaps interval and selection in place. The timer is re-armed
// when active; a connecting session picks the config up once connected.
func (a *SessionActor) reconfigure(ctx actor.Context, msg domain.ReconfigureRecordingRequest) {
	if err := msg.Config.Validate(a.session.machine, a.config.Recorder.MinIntervalSeconds); err != nil {
		ForRequest(msg).Respond(ctx, domain.ReconfigureRecordingResponse{
			ActorResponseMixIn: domain.ResponseWithError(err),
		})
		return
	}
	cfg := msg.Config
	cfg.MachineId = a.session.machine.Id
	cfg.Selection = slices.Clone(cfg.Selection)
	a.session.config = cfg
	if a.phase == domain.PHASE_ACTIVE {
		a.armTimer(ctx)
	}
	a.logger.Info(fmt.Sprintf("session@%s reconfigured", a.phase),
		zap.Uint("interval_seconds", cfg.IntervalSeconds), zap.Any("selection", cfg.Selection))
	ForRequest(msg).Respond(ctx, domain.ReconfigureRecordingResponse{})
}

func (a *SessionActor) subscribe(ctx actor.Context) {
	send := a.selfSender(ctx)
	gen := a.gen
	a.session.link.Subscribe(a.topic(), HEALTH_CHECK_QOS, func(_ string, payload []byte) {
		send(brokerMessage{gen: gen, payload: payload})
	}, func(err error) {
		send(brokerSubscribed{gen: gen, err: err})
	}, a.config.MQTT.OperationTimeout())
}

func (a *SessionActor) publishReadings(ctx actor.Context) {
	readings := a.synthesizer.Readings(a.session.machine, a.session.config.Selection)
	if len(readings) == 0 {
		return
	}
	payload, err := domain.EncodePayload(readings)
	if err != nil {
		a.fail(domain.ErrPublish, err)
		return
	}
	send := a.selfSender(ctx)
	gen := a.gen
	kinds := readings.Kinds()
	a.session.link.Publish(a.topic(), payload, HEALTH_CHECK_QOS, func(err error) {
		send(publishResult{gen: gen, kinds: kinds, err: err})
	}, a.config.MQTT.OperationTimeout())
}

// merge replaces the snapshot first and persists after, so the next tick
// reads the merged baseline whatever the persistence outcome.
func (a *SessionActor) merge(ctx actor.Context, payload []byte) {
	msg, err := domain.DecodePayloadFor(payload, a.session.machine)
	if err != nil {
		a.logger.Warn("session@active dropped message", zap.Error(err))
		a.fail(domain.ErrMergeDecode, err)
		return
	}
	if len(service.MergedKinds(a.session.machine, msg)) == 0 {
		a.logger.Debug("session@active message has no recorded sensor")
		return
	}
	merged := service.Merge(a.session.machine, msg)
	a.session.machine = merged
	a.snapshot.store(merged)
	a.publishEvents(events.MergedMessageToRecordedEvents(a.eventMixIn(), merged, msg)...)
	a.persist(ctx, merged)
}

func (a *SessionActor) persist(ctx actor.Context, machine domain.Machine) {
	gen := a.gen
	mixIn := a.eventMixIn()
	// the persistence actor bounds each repository call by PersistTimeout and
	// runs them one at a time, so this request may wait for the one in flight
	timeout := PERSIST_QUEUE_DEPTH * a.config.Recorder.PersistTimeout()
	future := ctx.RequestFuture(a.persistenceActor, domain.UpdateMachineRequest{Machine: machine}, timeout)
	ctx.ReenterAfter(future, func(res any, err error) {
		if gen != a.gen {
			a.logger.Debug("session persist result after session end")
			return
		}
		if err == nil {
			if resp, ok := res.(domain.ActorResponse); ok && resp.HasResponseError() {
				err = resp.GetResponseError()
			}
		}
		if err != nil {
			a.logger.Warn("session persist failed", zap.String("machine", machine.Id), zap.Error(err))
			a.fail(domain.ErrPersistence, err)
			return
		}
		a.publishEvents(events.PersistedEvents(mixIn, machine)...)
	})
}

func (a *SessionActor) armTimer(ctx actor.Context) {
	a.cancelTimer()
	a.timer++
	interval := time.Duration(a.session.config.IntervalSeconds) * time.Second
	a.cancelTick = a.schedule(interval, ctx.Self(), sessionTick{gen: a.gen, timer: a.timer})
}

func (a *SessionActor) cancelTimer() {
	if a.cancelTick != nil {
		a.cancelTick()
		a.cancelTick = nil
	}
}

func (a *SessionActor) become(state sessionState) {
	from := a.phase
	a.phase = state.Phase()
	a.Become(state)
	if from != a.phase {
		a.logger.Debug(fmt.Sprintf("session@%s -> %s", from, a.phase))
	}
	a.publishEvents(events.PhaseChangedEvents(a.eventMixIn(), from, a.phase)...)
}

// fail records an asynchronous error as the session's last error.
func (a *SessionActor) fail(kind error, err error) {
	var sessionErr *domain.SessionError
	if !errors.As(err, &sessionErr) || !errors.Is(err, kind) {
		sessionErr = domain.NewSessionError(kind, err)
	}
	a.session.lastError = sessionErr
	a.publishEvents(events.SessionErrorEvents(a.eventMixIn(), sessionErr)...)
}

func (a *SessionActor) status() domain.SessionStatus {
	return domain.SessionStatus{
		SessionId: a.session.id,
		Phase:     a.phase,
		Config:    a.session.config,
		LastError: a.session.lastError,
	}
}

func (a *SessionActor) topic() string {
	return a.config.MQTT.HealthCheckTopic
}

func (a *SessionActor) eventMixIn() domain.SessionEventMixIn {
	return domain.SessionEventMixIn{
		SessionId: a.session.id,
		MachineId: a.session.machine.Id,
	}
}

func (a *SessionActor) publishEvents(evs ...any) {
	if a.eventStream == nil {
		return
	}
	for _, ev := range evs {
		a.eventStream.Publish(ev)
	}
}

// selfSender lets broker callbacks reach the actor from their own goroutines.
func (a *SessionActor) selfSender(ctx actor.Context) func(any) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	return func(msg any) {
		root.Send(self, msg)
	}
}
