package probe

import (
	"context"
	"errors"
	"fmt"

	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/metrics"
	"Go2NetIDS/internal/model"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const subscriberBuffer = 4096

// Subscriber is a packet source fed by one or more remote probes over NATS.
type Subscriber struct {
	url     string
	subject string

	nc     *nats.Conn
	sub    *nats.Subscription
	msgs   chan *nats.Msg
	closed chan struct{}
}

var _ model.Source = (*Subscriber)(nil)

// NewSubscriber returns an unconnected subscriber; Open connects.
func NewSubscriber(cfg config.ProbeConfig) *Subscriber {
	return &Subscriber{url: cfg.NATSURL, subject: cfg.Subject}
}

func (s *Subscriber) Name() string { return "nats:" + s.subject }

// Open connects and subscribes. A connection that is later closed ends Run.
func (s *Subscriber) Open() error {
	closed := make(chan struct{})
	nc, err := nats.Connect(s.url,
		nats.Name("ns-ids"),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", s.url, err)
	}

	msgs := make(chan *nats.Msg, subscriberBuffer)
	sub, err := nc.ChanSubscribe(s.subject, msgs)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %q: %w", s.subject, err)
	}
	s.nc, s.sub, s.msgs, s.closed = nc, sub, msgs, closed
	log.Infof("Subscribed to '%s' at %s", s.subject, s.url)
	return nil
}

// Run decodes messages and hands them to emit until ctx is cancelled or the
// connection closes.
func (s *Subscriber) Run(ctx context.Context, emit func(*model.Packet)) error {
	if s.nc == nil {
		return errors.New("subscriber is not open")
	}
	name := s.Name()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return errors.New("NATS connection closed")
		case msg := <-s.msgs:
			pkt, err := UnmarshalPacket(msg.Data)
			if err != nil {
				metrics.ParseErrors.WithLabelValues(name).Inc()
				log.WithError(err).Debug("Dropping undecodable probe message")
				continue
			}
			emit(pkt)
		}
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() error {
	var err error
	if s.sub != nil {
		err = s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
		log.Info("NATS connection closed.")
	}
	return err
}
