package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/car-knowledge-assistant/internal/infrastructure/resilience"
)

var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrNoResponders,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	return resilience.Classify(err, func(err error) (resilience.ErrorClassification, bool) {
		for _, target := range transientNATSErrors {
			if errors.Is(err, target) {
				return resilience.Transient, true
			}
		}
		return resilience.ErrorClassification{}, false
	})
}

func wrapTemporaryIfNeeded(err error) error {
	return resilience.MarkTemporary("nats publish", err, classifyNATSError)
}
