package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/OliverSchlueter/mail-transfer/internal/relay"
	"github.com/OliverSchlueter/mail-transfer/internal/relayconfig"
)

const (
	DefaultMaxMessageBytes = 10 << 20
	DefaultShutdownTimeout = 30 * time.Second
)

// Server is the mail transfer core. It owns the listener and the delivery
// router; each instance is independent.
type Server struct {
	hostname          string
	hostedDomain      string
	port              string
	maxMessageBytes   int64
	allowInsecureAuth bool
	readTimeout       time.Duration
	writeTimeout      time.Duration
	shutdownTimeout   time.Duration
	tlsConfig         *tls.Config

	auth      *Authenticator
	validator *Validator
	router    *Router

	mu       sync.Mutex
	smtp     *gosmtp.Server
	listener *trackingListener
}

type Configuration struct {
	// Hostname is announced in the greeting. Defaults to HostedDomain.
	Hostname     string
	HostedDomain string
	Port         string

	MaxMessageBytes   int64
	AllowInsecureAuth bool
	CertFile          string
	KeyFile           string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	// ShutdownTimeout bounds how long Stop waits for open sessions before
	// closing them. Defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	Accounts  Accounts
	Mailboxes Mailboxes
	Relays    relayconfig.Source
	Transport relay.Transport
}

// Status describes the listener.
type Status struct {
	Running bool   `json:"running"`
	Port    string `json:"port"`
}

func NewServer(config Configuration) *Server {
	if config.Port == "" {
		config.Port = "25"
	}
	if config.Hostname == "" {
		config.Hostname = config.HostedDomain
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 2 * time.Minute
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 2 * time.Minute
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	var tlsConfig *tls.Config
	if config.CertFile != "" && config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
		if err != nil {
			slog.Error("Failed to load TLS certificates", sloki.WrapError(err))
		} else {
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS13,
				CipherSuites: []uint16{
					tls.TLS_AES_128_GCM_SHA256,
					tls.TLS_AES_256_GCM_SHA384,
					tls.TLS_CHACHA20_POLY1305_SHA256,
				},
				SessionTicketsDisabled: true,
				Renegotiation:          tls.RenegotiateNever,
				CurvePreferences:       []tls.CurveID{tls.X25519, tls.CurveP256},
			}
		}
	}

	return &Server{
		hostname:          config.Hostname,
		hostedDomain:      config.HostedDomain,
		port:              config.Port,
		maxMessageBytes:   config.MaxMessageBytes,
		allowInsecureAuth: config.AllowInsecureAuth,
		readTimeout:       config.ReadTimeout,
		writeTimeout:      config.WriteTimeout,
		shutdownTimeout:   config.ShutdownTimeout,
		tlsConfig:         tlsConfig,
		auth:              NewAuthenticator(config.Accounts),
		validator:         NewValidator(config.HostedDomain, config.Accounts),
		router: NewRouter(RouterConfiguration{
			HostedDomain: config.HostedDomain,
			Accounts:     config.Accounts,
			Mailboxes:    config.Mailboxes,
			Relays:       config.Relays,
			Transport:    config.Transport,
		}),
	}
}

// Start binds port and begins accepting connections in the background. An
// empty port uses the configured one. Starting a running server is a no-op.
func (s *Server) Start(port string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.smtp != nil {
		return nil
	}
	if port == "" {
		port = s.port
	}

	l, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", port, err)
	}
	listener := newTrackingListener(l)

	srv := gosmtp.NewServer(&backend{srv: s})
	srv.Domain = s.greetingDomain()
	srv.MaxMessageBytes = s.maxMessageBytes
	srv.AllowInsecureAuth = s.allowInsecureAuth
	srv.ReadTimeout = s.readTimeout
	srv.WriteTimeout = s.writeTimeout
	srv.TLSConfig = s.tlsConfig
	srv.ErrorLog = slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn)

	s.smtp = srv
	s.listener = listener

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			slog.Error("SMTP server stopped unexpectedly", sloki.WrapError(err))
		}
	}()

	slog.Info("SMTP server started",
		slog.String("addr", listener.Addr().String()),
		slog.String("hostname", s.hostname),
		slog.String("hosted_domain", s.hostedDomain),
		slog.Bool("starttls", s.tlsConfig != nil),
	)
	return nil
}

// greetingDomain is what the banner announces: the hostname, followed by
// the hosted domain when the two differ.
func (s *Server) greetingDomain() string {
	if s.hostedDomain == "" || strings.EqualFold(s.hostname, s.hostedDomain) {
		return s.hostname
	}
	return s.hostname + " (" + s.hostedDomain + ")"
}

// Stop closes the listener and waits for open sessions to finish. Sessions
// still open after the shutdown timeout are closed. Stopping a stopped
// server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv, listener := s.smtp, s.listener
	s.smtp = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		n := listener.closeConns()
		slog.Warn("Graceful SMTP shutdown timed out, closed remaining sessions", slog.Int("sessions", n))
	case err != nil && !errors.Is(err, gosmtp.ErrServerClosed):
		return err
	}

	slog.Info("SMTP server stopped")
	return nil
}

func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return Status{Running: false, Port: s.port}
	}

	_, port, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		port = s.port
	}
	return Status{Running: true, Port: port}
}

// SendProgrammatic delivers a message that did not arrive over SMTP. from
// must be a valid address; errors for individual recipients are joined.
func (s *Server) SendProgrammatic(ctx context.Context, from string, to []Recipient, subject, body string) error {
	sender, err := ParseAddress(from)
	if err != nil {
		return err
	}

	return s.router.SendProgrammatic(ctx, sender, to, subject, body)
}

// Wait blocks until background relay deliveries have finished.
func (s *Server) Wait() {
	s.router.Wait()
}
