package main

import (
	"log"
	"os"
	"strconv"

	"github.com/wneessen/go-mail"

	"github.com/OliverSchlueter/mail-transfer/internal/config"
)

// testclient submits one message to a locally hosted mailbox and one to an
// external address through a running server. The sender account is taken
// from TESTCLIENT_USER and TESTCLIENT_PASSWORD.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %s", err)
	}

	port, err := strconv.Atoi(cfg.SMTP.Port)
	if err != nil {
		log.Fatalf("invalid SMTP port %q: %s", cfg.SMTP.Port, err)
	}

	user := envOr("TESTCLIENT_USER", "alice")
	password := envOr("TESTCLIENT_PASSWORD", "alice123")
	from := user + "@" + cfg.SMTP.HostedDomain

	submit(port, user, password, from, envOr("TESTCLIENT_LOCAL_RCPT", "carol@"+cfg.SMTP.HostedDomain))
	submit(port, user, password, from, envOr("TESTCLIENT_EXTERNAL_RCPT", "peter@otherdomain.com"))
}

func submit(port int, user, password, from, to string) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		log.Fatalf("failed to set From address: %s", err)
	}
	if err := m.To(to); err != nil {
		log.Fatalf("failed to set To address: %s", err)
	}
	m.Subject("Why are you not using go-mail yet?")
	m.SetBodyString(mail.TypeTextPlain, "You won't need a sales pitch. It's FOSS.")

	c, err := mail.NewClient(
		"localhost",
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(user),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.NoTLS),
	)
	if err != nil {
		log.Fatalf("failed to create mail client: %s", err)
	}

	if err := c.DialAndSend(m); err != nil {
		log.Fatalf("failed to send mail to %s: %s", to, err)
	}
	log.Printf("submitted mail to %s", to)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
