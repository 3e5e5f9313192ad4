package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	bbolt "go.etcd.io/bbolt"

	"github.com/OliverSchlueter/mail-transfer/internal/config"
	"github.com/OliverSchlueter/mail-transfer/internal/mailhandler"
	"github.com/OliverSchlueter/mail-transfer/internal/mails"
	mailsbolt "github.com/OliverSchlueter/mail-transfer/internal/mails/database/bolt"
	mailsfake "github.com/OliverSchlueter/mail-transfer/internal/mails/database/fake"
	"github.com/OliverSchlueter/mail-transfer/internal/relay"
	"github.com/OliverSchlueter/mail-transfer/internal/relayconfig"
	"github.com/OliverSchlueter/mail-transfer/internal/smtp"
	"github.com/OliverSchlueter/mail-transfer/internal/users"
	usersbolt "github.com/OliverSchlueter/mail-transfer/internal/users/database/bolt"
	usersfake "github.com/OliverSchlueter/mail-transfer/internal/users/database/fake"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", sloki.WrapError(err))
		os.Exit(1)
	}

	lokiService := sloki.NewService(sloki.Configuration{
		URL:          cfg.Logging.LokiURL,
		Service:      "mail-transfer",
		ConsoleLevel: cfg.Logging.SlogLevel(),
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   cfg.Logging.EnableLoki,
	})
	slog.SetDefault(slog.New(lokiService))

	// storage
	userDB, mailDB, closeStorage, err := openStorage(cfg.Storage.Path)
	if err != nil {
		slog.Error("Failed to open storage", sloki.WrapError(err), slog.String("path", cfg.Storage.Path))
		os.Exit(1)
	}
	defer closeStorage()

	us := users.NewStore(users.Configuration{
		DB: userDB,
	})
	ms := mails.NewStore(mails.Configuration{
		DB: mailDB,
	})

	bootstrapAccounts(us, ms, cfg.SMTP.HostedDomain, cfg.Bootstrap.Accounts)

	// relay
	var relays relayconfig.Source = relayconfig.NewStaticSource(nil)
	if cfg.Relay.File != "" {
		relays = relayconfig.NewFileSource(cfg.Relay.File)
	} else {
		slog.Warn("No relay file configured, external recipients cannot be reached")
	}

	var signer *relay.DKIMSigner
	if cfg.DKIM.KeyFile != "" {
		signer, err = relay.LoadDKIMSigner(cfg.DKIM.KeyFile, cfg.SMTP.HostedDomain, cfg.DKIM.Selector)
		if err != nil {
			slog.Error("Failed to load DKIM key, relayed mail will not be signed", sloki.WrapError(err))
		}
	}

	transport := relay.NewDispatcher(
		relay.NewSMTPTransport(relay.SMTPConfiguration{
			Hostname: cfg.SMTP.Hostname,
			Signer:   signer,
		}),
		relay.NewSESTransport(),
	)

	// smtp server
	smtpServer := smtp.NewServer(smtp.Configuration{
		Hostname:          cfg.SMTP.Hostname,
		HostedDomain:      cfg.SMTP.HostedDomain,
		Port:              cfg.SMTP.Port,
		MaxMessageBytes:   cfg.SMTP.MaxMessageBytes,
		AllowInsecureAuth: cfg.SMTP.AllowInsecureAuth,
		CertFile:          cfg.SMTP.CertFile,
		KeyFile:           cfg.SMTP.KeyFile,
		ReadTimeout:       cfg.SMTP.ReadTimeout,
		WriteTimeout:      cfg.SMTP.WriteTimeout,
		Accounts:          us,
		Mailboxes:         ms,
		Relays:            relays,
		Transport:         transport,
	})
	if err := smtpServer.Start(cfg.SMTP.Port); err != nil {
		slog.Error("Failed to start SMTP server", sloki.WrapError(err))
		os.Exit(1)
	}

	// http
	mux := http.NewServeMux()
	mailhandler.New(mailhandler.Configuration{
		MailStore: ms,
		UserStore: us,
		Core:      smtpServer,
	}).Register("/api/v1", mux)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped unexpectedly", sloki.WrapError(err))
		}
	}()
	slog.Info("Started HTTP server", slog.String("addr", cfg.HTTP.Listen))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("Shutting down")

	if err := smtpServer.Stop(); err != nil {
		slog.Error("Failed to stop SMTP server", sloki.WrapError(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to stop HTTP server", sloki.WrapError(err))
	}

	// relay tasks that were already accepted still run to completion
	smtpServer.Wait()
	slog.Info("Shutdown complete")
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// openStorage returns bbolt backed databases for a non-empty path and
// in-memory ones otherwise.
func openStorage(path string) (users.DB, mails.DB, func(), error) {
	if path == "" {
		slog.Warn("No storage path configured, keeping accounts and mail in memory")
		return usersfake.NewDB(), mailsfake.NewDB(), func() {}, nil
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close storage", sloki.WrapError(err))
		}
	}

	userDB, err := usersbolt.NewDB(db)
	if err != nil {
		closeDB()
		return nil, nil, nil, err
	}
	mailDB, err := mailsbolt.NewDB(db)
	if err != nil {
		closeDB()
		return nil, nil, nil, err
	}

	return userDB, mailDB, closeDB, nil
}

// bootstrapAccounts creates the configured accounts and their INBOX. The
// INBOX is created up front so the first deliveries do not race to create it.
func bootstrapAccounts(us *users.Store, ms *mails.Store, hostedDomain string, accounts []config.Account) {
	for _, a := range accounts {
		addr := a.Name + "@" + hostedDomain

		exists, err := us.DoesUserExistByEmail(addr)
		if err != nil {
			slog.Error("Failed to check bootstrap account", sloki.WrapError(err), slog.String("name", a.Name))
			continue
		}
		if !exists {
			err := us.Create(users.User{
				Name:         a.Name,
				Password:     a.Password,
				PrimaryEmail: addr,
				Emails:       []string{addr},
			})
			if err != nil && !errors.Is(err, users.ErrUserAlreadyExists) {
				slog.Error("Failed to create bootstrap account", sloki.WrapError(err), slog.String("name", a.Name))
				continue
			}
			slog.Info("Created bootstrap account", slog.String("name", a.Name))
		}

		u, err := us.GetByEmail(addr)
		if err != nil {
			slog.Error("Failed to load bootstrap account", sloki.WrapError(err), slog.String("name", a.Name))
			continue
		}
		if _, err := ms.EnsureMailbox(u.ID, mails.DefaultMailboxName); err != nil {
			slog.Error("Failed to create INBOX", sloki.WrapError(err), slog.String("name", a.Name))
		}
	}
}
