package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/mail-transfer/internal/relay"
	"github.com/OliverSchlueter/mail-transfer/internal/relayconfig"
	"github.com/OliverSchlueter/mail-transfer/internal/users"
)

// Mailboxes persists messages delivered to local accounts.
type Mailboxes interface {
	Deliver(userID, sender, subject, body string) (uint32, error)
}

// Recipient of a programmatic send. AccountID may be set for hosted
// addresses whose account the caller has already resolved.
type Recipient struct {
	Address   Address
	AccountID string
}

// Router delivers accepted messages, locally for the hosted domain and
// through the configured relay for everything else.
type Router struct {
	hostedDomain string
	accounts     Accounts
	mailboxes    Mailboxes
	relays       relayconfig.Source
	transport    relay.Transport

	inflight sync.WaitGroup
}

type RouterConfiguration struct {
	HostedDomain string
	Accounts     Accounts
	Mailboxes    Mailboxes
	Relays       relayconfig.Source
	Transport    relay.Transport
}

func NewRouter(cfg RouterConfiguration) *Router {
	return &Router{
		hostedDomain: cfg.HostedDomain,
		accounts:     cfg.Accounts,
		mailboxes:    cfg.Mailboxes,
		relays:       cfg.Relays,
		transport:    cfg.Transport,
	}
}

// Deliver routes a message accepted over the wire. Local recipients are
// stored before it returns. External recipients are relayed in the
// background, one after the other; failures are logged and never reported
// back to the submitter.
func (r *Router) Deliver(sessionID string, sender Address, recipients []Address, msg *ParsedMessage) {
	var external []Address

	for _, rcpt := range recipients {
		if !rcpt.InDomain(r.hostedDomain) {
			external = append(external, rcpt)
			continue
		}

		if err := r.deliverLocal(rcpt, "", sender, msg); err != nil {
			slog.Error("Failed to deliver mail locally",
				sloki.WrapError(err),
				slog.String("session_id", sessionID),
				slog.String("recipient", rcpt.String()),
			)
		}
	}

	if len(external) == 0 {
		return
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()

		// The transaction is already acknowledged, so the peer going away
		// must not cancel the relay.
		ctx := context.Background()
		for _, rcpt := range external {
			if err := r.deliverExternal(ctx, rcpt, sender, msg); err != nil {
				slog.Error("Failed to relay mail",
					sloki.WrapError(err),
					slog.String("session_id", sessionID),
					slog.String("recipient", rcpt.String()),
				)
			}
		}
	}()
}

// Wait blocks until all background relay tasks have finished.
func (r *Router) Wait() {
	r.inflight.Wait()
}

// SendProgrammatic delivers a system-originated message to every distinct
// recipient and returns the joined per-recipient failures. A failure for one recipient
// does not stop delivery to the others.
func (r *Router) SendProgrammatic(ctx context.Context, from Address, to []Recipient, subject, body string) error {
	if subject == "" {
		subject = defaultSubject
	}
	msg := &ParsedMessage{
		From:    from.String(),
		Subject: subject,
		Body:    body,
		Size:    len(body),
	}

	var errs []error
	var seen []Address
	for _, rcpt := range to {
		if slices.ContainsFunc(seen, rcpt.Address.Equal) {
			continue
		}
		seen = append(seen, rcpt.Address)

		var err error
		if rcpt.Address.InDomain(r.hostedDomain) {
			err = r.deliverLocal(rcpt.Address, rcpt.AccountID, from, msg)
		} else {
			err = r.deliverExternal(ctx, rcpt.Address, from, msg)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rcpt.Address, err))
		}
	}

	return errors.Join(errs...)
}

// deliverLocal stores msg for rcpt. The account is resolved again unless
// accountID is given, since it may have been removed after RCPT.
func (r *Router) deliverLocal(rcpt Address, accountID string, sender Address, msg *ParsedMessage) error {
	if accountID == "" {
		u, err := r.accounts.Resolve(rcpt.LocalPart)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				metricDeliveries.WithLabelValues("local", "dropped").Inc()
				return fmt.Errorf("%w: %s", ErrUnknownRecipient, rcpt)
			}
			metricDeliveries.WithLabelValues("local", "failed").Inc()
			return fmt.Errorf("failed to resolve recipient: %w", err)
		}
		accountID = u.ID
	}

	uid, err := r.mailboxes.Deliver(accountID, sender.String(), msg.Subject, msg.Body)
	if err != nil {
		metricDeliveries.WithLabelValues("local", "failed").Inc()
		return fmt.Errorf("failed to store mail: %w", err)
	}

	metricDeliveries.WithLabelValues("local", "ok").Inc()
	slog.Info("Delivered mail locally",
		slog.String("recipient", rcpt.String()),
		slog.String("user_id", accountID),
		slog.Any("mail_uid", uid),
	)
	return nil
}

// deliverExternal fetches the relay settings fresh and hands msg to the
// transport.
func (r *Router) deliverExternal(ctx context.Context, rcpt Address, sender Address, msg *ParsedMessage) error {
	var cfg *relayconfig.Config
	if r.relays != nil {
		var err error
		cfg, err = r.relays.Current(ctx)
		if err != nil {
			metricDeliveries.WithLabelValues("relay", "failed").Inc()
			return fmt.Errorf("failed to load relay configuration: %w", err)
		}
	}
	if !relayconfig.Usable(cfg) || r.transport == nil {
		metricDeliveries.WithLabelValues("relay", "not_configured").Inc()
		return ErrRelayNotConfigured
	}

	err := r.transport.Send(ctx, *cfg, relay.Message{
		From:    sender.String(),
		To:      rcpt.String(),
		Subject: msg.Subject,
		Body:    msg.Body,
		HTML:    msg.HTML,
	})
	if err != nil {
		metricDeliveries.WithLabelValues("relay", "failed").Inc()
		return err
	}

	metricDeliveries.WithLabelValues("relay", "ok").Inc()
	slog.Info("Relayed mail",
		slog.String("recipient", rcpt.String()),
		slog.String("relay_host", cfg.Host),
	)
	return nil
}
