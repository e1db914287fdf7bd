package domain

// ActorRequestMixIn marks messages answered with an ActorResponse. The reply
// always goes to the message sender.
type ActorRequestMixIn struct{}

type ActorRequest interface {
	actorRequest()
}

func (ActorRequestMixIn) actorRequest() {}

type ActorResponseMixIn struct {
	ResponseError error
}

func ResponseWithError(err error) ActorResponseMixIn {
	return ActorResponseMixIn{ResponseError: err}
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}
