package probe

import (
	"fmt"

	"Go2NetIDS/internal/config"
	"Go2NetIDS/internal/model"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Publisher publishes packet metadata to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	withRaw bool
}

// NewPublisher connects to NATS. When withRaw is set the captured frame is
// forwarded too, so the engine can write evidence pcaps.
func NewPublisher(cfg config.ProbeConfig, withRaw bool) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("ns-probe"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	log.Infof("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject, withRaw: withRaw}, nil
}

// Publish encodes the packet and publishes it to the configured subject.
func (p *Publisher) Publish(pkt *model.Packet) error {
	data, err := MarshalPacket(pkt, p.withRaw)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.WithError(err).Warn("NATS drain failed")
		p.nc.Close()
	}
	log.Info("NATS connection drained and closed.")
}
