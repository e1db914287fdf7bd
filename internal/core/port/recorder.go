package port

import (
	"context"
	"time"

	"github.com/berfenger/healthrecorder/internal/core/domain"
)

type ReadingSynthesizer interface {
	Readings(machine domain.Machine, selection []domain.SensorKind) domain.DecodedMessage
}

type MessageHandler func(topic string, payload []byte)

// BrokerLink is a publish/subscribe connection owned by one recording session.
// Every call returns immediately; the outcome is delivered to continuation
// from another goroutine once the broker acknowledges or timeout elapses.
type BrokerLink interface {
	Connect(continuation func(error), timeout time.Duration)
	Subscribe(topic string, qos byte, handler MessageHandler, continuation func(error), timeout time.Duration)
	Unsubscribe(topic string, continuation func(error), timeout time.Duration)
	Publish(topic string, payload []byte, qos byte, continuation func(error), timeout time.Duration)
	// Disconnect waits at most quiesce for in-flight work before closing.
	Disconnect(quiesce time.Duration)
}

// LinkEvents reports connection changes after the first successful Connect.
// Callbacks run on the link's own goroutines.
type LinkEvents struct {
	ConnectionLost func(err error)
	// Reconnected fires once the link is back; subscriptions from before the
	// loss are gone and must be issued again.
	Reconnected func()
}

type BrokerLinkProvider func(events LinkEvents) BrokerLink

type MachineRepository interface {
	FetchMachines(ctx context.Context) ([]domain.Machine, error)
	UpdateMachine(ctx context.Context, machine domain.Machine) (domain.Machine, error)
}
