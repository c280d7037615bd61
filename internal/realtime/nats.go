package realtime

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/opay-dz/opay/internal/logging"
)

var logger = logging.NewPackageLogger("realtime")

const subjectPrefix = "opay."

// NATSBus publishes events on subjects opay.<topic> so every instance's
// websocket clients see them.
type NATSBus struct {
	nc *nats.Conn
}

// DialNATS connects to url with reconnects enabled.
func DialNATS(url string) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.Name("opay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats %s", url)
	}
	return &NATSBus{nc: nc}, nil
}

func (b *NATSBus) Publish(topic string, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.nc.Publish(subjectPrefix+topic, data)
}

func (b *NATSBus) Subscribe(topic string, fn func(Event)) (func(), error) {
	sub, err := b.nc.Subscribe(subjectPrefix+topic, func(m *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(m.Data, &evt); err != nil {
			logger.Warn().Err(err).Str("subject", m.Subject).Msg("dropping malformed event")
			return
		}
		fn(evt)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", topic)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *NATSBus) Close() error {
	return b.nc.Drain()
}
