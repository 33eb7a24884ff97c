package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const DefaultSubject = "servicepoller.status"

var ErrNATSDisconnected = errors.New("nats not connected")

// NATS publishes each event as JSON on a single subject.
type NATS struct {
	nc      *nats.Conn
	subject string
}

func NewNATS(url, subject string, log *zap.Logger) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	opts := []nats.Option{
		nats.Name("servicepoller"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats_disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats_reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATS{nc: nc, subject: subject}, nil
}

func (n *NATS) Send(ctx context.Context, ev Event) error {
	if n == nil || n.nc == nil || n.nc.IsClosed() {
		return ErrNATSDisconnected
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject, payload)
}

// Close flushes pending publishes and closes the connection.
func (n *NATS) Close() error {
	if n == nil || n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}
