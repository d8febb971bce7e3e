package notification

import (
	"Go2NetIDS/internal/model"
	"errors"

	log "github.com/sirupsen/logrus"
)

// Multi delivers every notification to all of its notifiers.
type Multi []model.Notifier

func (m Multi) Send(subject, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Send(subject, _ string) error {
	log.WithField("subject", subject).Debug("No notifier configured, alert not delivered")
	return nil
}

// Combine returns a notifier for ns: Nop when empty (with a warning), the
// notifier itself when there is one, Multi otherwise.
func Combine(ns ...model.Notifier) model.Notifier {
	switch len(ns) {
	case 0:
		log.Warn("No alert channel configured, alerts will only be logged")
		return Nop{}
	case 1:
		return ns[0]
	default:
		return Multi(ns)
	}
}
