package domain

const (
	ACTOR_ID_MASTER      = "master"
	ACTOR_ID_SESSION     = "session"
	ACTOR_ID_PERSISTENCE = "persistence"
)

// Recording session control

type StartRecordingRequest struct {
	ActorRequestMixIn
	Config  SessionConfig
	Machine Machine
}

type StartRecordingResponse struct {
	ActorResponseMixIn
	SessionId string
}

type StopRecordingRequest struct {
	ActorRequestMixIn
}

type StopRecordingResponse struct {
	ActorResponseMixIn
	// false when no session was running
	Stopped bool
}

type ReconfigureRecordingRequest struct {
	ActorRequestMixIn
	Config SessionConfig
}

type ReconfigureRecordingResponse struct {
	ActorResponseMixIn
}

type SessionStatusRequest struct {
	ActorRequestMixIn
}

type SessionStatus struct {
	SessionId string
	Phase     SessionPhase
	Config    SessionConfig
	LastError error
}

type SessionStatusResponse struct {
	ActorResponseMixIn
	Status SessionStatus
}

// Persistence gateway

type FetchMachinesRequest struct {
	ActorRequestMixIn
}

type FetchMachinesResponse struct {
	ActorResponseMixIn
	Machines []Machine
}

type UpdateMachineRequest struct {
	ActorRequestMixIn
	Machine Machine
}

type UpdateMachineResponse struct {
	ActorResponseMixIn
	Machine *Machine
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
