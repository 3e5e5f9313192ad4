package smtp

import (
	"io"
	"log/slog"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// backend hands every new connection its own Session.
type backend struct {
	srv *Server
}

func (b *backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remoteAddr := c.Conn().RemoteAddr().String()
	metricConnections.Inc()

	slog.Debug("New connection established",
		slog.String("remote_addr", remoteAddr),
		slog.String("protocol", c.Conn().RemoteAddr().Network()),
	)

	return &conn{
		srv:     b.srv,
		session: NewSession(uuid.New().String(), remoteAddr),
	}, nil
}

// conn adapts the go-smtp callbacks to the session state machine.
type conn struct {
	srv     *Server
	session *Session
}

func (c *conn) reject(event string, err error) error {
	reply := replyFor(err)
	metricRejections.WithLabelValues(reason(reply)).Inc()

	attrs := []any{
		sloki.WrapError(err),
		slog.String("session_id", c.session.ID),
		slog.String("remote_addr", c.session.RemoteAddr),
		slog.String("command", event),
		slog.Int("code", reply.Code),
	}
	if reply == ReplyTemporaryFailure {
		slog.Error("Command failed", attrs...)
	} else {
		slog.Warn("Command rejected", attrs...)
	}

	return reply
}

func (c *conn) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (c *conn) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, gosmtp.ErrAuthUnknownMechanism
	}

	return sasl.NewPlainServer(func(identity, username, password string) error {
		if err := c.session.Allow(EventAuth); err != nil {
			return c.reject("AUTH", err)
		}

		if identity != "" && identity != username {
			return c.reject("AUTH", ErrInvalidCredential)
		}

		u, err := c.srv.auth.Authenticate(username, password)
		if err != nil {
			return c.reject("AUTH", err)
		}

		if err := c.session.Authenticate(u); err != nil {
			return c.reject("AUTH", err)
		}

		slog.Debug("Session authenticated",
			slog.String("session_id", c.session.ID),
			slog.String("user", u.Name),
		)
		return nil
	}), nil
}

func (c *conn) Mail(from string, _ *gosmtp.MailOptions) error {
	if err := c.session.Allow(EventMail); err != nil {
		return c.reject("MAIL", err)
	}

	addr, err := c.srv.validator.CheckSender(c.session.Identity(), from)
	if err != nil {
		return c.reject("MAIL", err)
	}

	if err := c.session.DeclareSender(addr); err != nil {
		return c.reject("MAIL", err)
	}

	slog.Debug("Sender declared", slog.String("session_id", c.session.ID), slog.String("from", addr.String()))
	return nil
}

func (c *conn) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if err := c.session.Allow(EventRcpt); err != nil {
		return c.reject("RCPT", err)
	}

	addr, err := c.srv.validator.CheckRecipient(to)
	if err != nil {
		return c.reject("RCPT", err)
	}

	if err := c.session.AddRecipient(addr); err != nil {
		return c.reject("RCPT", err)
	}

	slog.Debug("Recipient declared", slog.String("session_id", c.session.ID), slog.String("to", addr.String()))
	return nil
}

func (c *conn) Data(r io.Reader) error {
	if err := c.session.Allow(EventData); err != nil {
		return c.reject("DATA", err)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return c.reject("DATA", err)
	}

	msg, err := ParseMessage(raw)
	if err != nil {
		return c.reject("DATA", err)
	}

	if err := c.session.CompleteData(); err != nil {
		return c.reject("DATA", err)
	}

	sender, _ := c.session.Sender()
	recipients := c.session.Recipients()

	slog.Info("Incoming mail received",
		slog.String("session_id", c.session.ID),
		slog.String("from", sender.String()),
		slog.Int("recipients", len(recipients)),
		slog.Int("size", msg.Size),
	)

	c.srv.router.Deliver(c.session.ID, sender, recipients, msg)
	return nil
}

func (c *conn) Reset() {
	c.session.Reset()
}

func (c *conn) Logout() error {
	c.session.Disconnect()
	slog.Debug("Connection closed", slog.String("session_id", c.session.ID))
	return nil
}
