package smtp

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/OliverSchlueter/mail-transfer/internal/mails"
	mailsfake "github.com/OliverSchlueter/mail-transfer/internal/mails/database/fake"
	"github.com/OliverSchlueter/mail-transfer/internal/relay"
	"github.com/OliverSchlueter/mail-transfer/internal/relayconfig"
	"github.com/OliverSchlueter/mail-transfer/internal/users"
	usersfake "github.com/OliverSchlueter/mail-transfer/internal/users/database/fake"
)

const hostedDomain = "hosted.test"

func newDirectory(t *testing.T, names ...string) *users.Store {
	t.Helper()

	us := users.NewStore(users.Configuration{DB: usersfake.NewDB()})
	for _, name := range names {
		err := us.Create(users.User{
			Name:         name,
			Password:     name + "123",
			PrimaryEmail: name + "@" + hostedDomain,
			Emails:       []string{name + "@" + hostedDomain},
		})
		if err != nil {
			t.Fatalf("Failed to create user %s: %v", name, err)
		}
	}
	return us
}

func newMailStore() *mails.Store {
	return mails.NewStore(mails.Configuration{DB: mailsfake.NewDB()})
}

func inbox(t *testing.T, ms *mails.Store, us *users.Store, name string) []mails.Mail {
	t.Helper()

	u, err := us.GetByName(name)
	if err != nil {
		t.Fatalf("Failed to get user %s: %v", name, err)
	}
	list, err := ms.GetMails(u.ID, mails.DefaultMailboxUID)
	if err != nil {
		t.Fatalf("Failed to get mails for %s: %v", name, err)
	}
	return list
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []relay.Message
	err  error
}

func (f *fakeTransport) Send(_ context.Context, _ relayconfig.Config, msg relay.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeTransport) Sent() []relay.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]relay.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

// failingMailboxes fails for one account and delegates for the rest.
type failingMailboxes struct {
	next   Mailboxes
	failID string
}

func (f *failingMailboxes) Deliver(userID, sender, subject, body string) (uint32, error) {
	if userID == f.failID {
		return 0, errors.New("disk full")
	}
	return f.next.Deliver(userID, sender, subject, body)
}

// brokenAccounts simulates an unreachable directory.
type brokenAccounts struct{}

var errDirectoryDown = errors.New("directory unreachable")

func (brokenAccounts) Resolve(string) (*users.User, error) {
	return nil, errDirectoryDown
}

func (brokenAccounts) VerifyCredential(string, string) (bool, error) {
	return false, errDirectoryDown
}
