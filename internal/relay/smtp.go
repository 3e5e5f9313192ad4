package relay

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/OliverSchlueter/goutils/idgen"
	"github.com/OliverSchlueter/mail-transfer/internal/relayconfig"
	"github.com/wneessen/go-mail"
)

const defaultTimeout = 30 * time.Second

// SMTPTransport relays mail to an SMTP submission server. A new client is
// dialed for every message.
type SMTPTransport struct {
	hostname string
	signer   *DKIMSigner
	timeout  time.Duration
}

type SMTPConfiguration struct {
	// Hostname is announced in EHLO and used as the Message-ID domain.
	Hostname string
	// Signer is optional. When set, relayed messages carry a DKIM signature.
	Signer  *DKIMSigner
	Timeout time.Duration
}

func NewSMTPTransport(cfg SMTPConfiguration) *SMTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &SMTPTransport{
		hostname: cfg.Hostname,
		signer:   cfg.Signer,
		timeout:  cfg.Timeout,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, cfg relayconfig.Config, msg Message) error {
	if cfg.Host == "" {
		return fmt.Errorf("relay host is empty")
	}

	m, err := t.buildMsg(msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	c, err := mail.NewClient(cfg.Host, t.clientOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail via %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return nil
}

func (t *SMTPTransport) clientOptions(cfg relayconfig.Config) []mail.Option {
	opts := []mail.Option{
		mail.WithTimeout(t.timeout),
	}

	switch cfg.Secure {
	case relayconfig.SecureNone:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case relayconfig.SecureTLS:
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if cfg.Port != 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}

	if t.hostname != "" {
		opts = append(opts, mail.WithHELO(t.hostname))
	}

	if cfg.AuthUser != "" {
		authType := mail.SMTPAuthPlain
		if cfg.Secure == relayconfig.SecureNone {
			authType = mail.SMTPAuthPlainNoEnc
		}
		opts = append(opts,
			mail.WithSMTPAuth(authType),
			mail.WithUsername(cfg.AuthUser),
			mail.WithPassword(cfg.AuthSecret),
		)
	}

	return opts
}

func (t *SMTPTransport) buildMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	m.Subject(msg.Subject)

	contentType := mail.TypeTextPlain
	if msg.HTML {
		contentType = mail.TypeTextHTML
	}
	m.SetBodyString(contentType, msg.Body)

	m.SetDate()
	domain := t.hostname
	if t.signer != nil {
		domain = t.signer.Domain
	}
	if domain == "" {
		domain = "localhost"
	}
	m.SetMessageIDWithValue(idgen.GenerateID(20) + "@" + domain)

	if t.signer == nil {
		return m, nil
	}

	var raw bytes.Buffer
	if _, err := m.WriteTo(&raw); err != nil {
		return nil, err
	}

	sig, err := t.signer.Sign(raw.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	m.SetGenHeaderPreformatted(mail.Header("DKIM-Signature"), sig)

	return m, nil
}
