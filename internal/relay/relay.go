// Package relay hands externally addressed mail to the operator-configured
// provider. Credentials arrive with every call; transports keep no
// connection or credential state between sends.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/OliverSchlueter/mail-transfer/internal/relayconfig"
)

var ErrUnknownKind = errors.New("unknown relay kind")

// Message is a single outbound message for one recipient.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	HTML    bool
}

type Transport interface {
	Send(ctx context.Context, cfg relayconfig.Config, msg Message) error
}

// Dispatcher routes a send to the transport matching the relay kind.
type Dispatcher struct {
	transports map[string]Transport
}

func NewDispatcher(smtp, ses Transport) *Dispatcher {
	d := &Dispatcher{transports: map[string]Transport{}}
	if smtp != nil {
		d.transports[relayconfig.KindSMTP] = smtp
	}
	if ses != nil {
		d.transports[relayconfig.KindSES] = ses
	}
	return d
}

func (d *Dispatcher) Send(ctx context.Context, cfg relayconfig.Config, msg Message) error {
	kind := cfg.Kind
	if kind == "" {
		kind = relayconfig.KindSMTP
	}

	t, ok := d.transports[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return t.Send(ctx, cfg, msg)
}
