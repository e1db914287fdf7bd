package actorutil

import (
	"github.com/berfenger/healthrecorder/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

type forRequest struct {
	req domain.ActorRequest
}

type ExtendedRequest interface {
	Respond(ctx actor.Context, resp domain.ActorResponse)
	ReplyTo(ctx actor.Context) *actor.PID
}

func ForRequest(r domain.ActorRequest) ExtendedRequest {
	return forRequest{req: r}
}

func (r forRequest) Respond(ctx actor.Context, resp domain.ActorResponse) {
	ctx.Respond(resp)
}

// ReplyTo captures the sender so a later state can answer after the
// current message is gone.
func (r forRequest) ReplyTo(ctx actor.Context) *actor.PID {
	return ctx.Sender()
}
