package mailhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/OliverSchlueter/mail-transfer/internal/mails"
	mailsfake "github.com/OliverSchlueter/mail-transfer/internal/mails/database/fake"
	"github.com/OliverSchlueter/mail-transfer/internal/smtp"
	"github.com/OliverSchlueter/mail-transfer/internal/users"
	usersfake "github.com/OliverSchlueter/mail-transfer/internal/users/database/fake"
)

type sendCall struct {
	from    string
	to      []smtp.Recipient
	subject string
	body    string
}

type fakeCore struct {
	calls []sendCall
	err   error
}

func (f *fakeCore) Status() smtp.Status {
	return smtp.Status{Running: true, Port: "2525"}
}

func (f *fakeCore) SendProgrammatic(_ context.Context, from string, to []smtp.Recipient, subject, body string) error {
	f.calls = append(f.calls, sendCall{from: from, to: to, subject: subject, body: body})
	return f.err
}

type fixture struct {
	mux   *http.ServeMux
	core  *fakeCore
	mails *mails.Store
	carol *users.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	us := users.NewStore(users.Configuration{DB: usersfake.NewDB()})
	if err := us.Create(users.User{Name: "carol", Password: "carol123", PrimaryEmail: "carol@hosted.test"}); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	carol, err := us.GetByName("carol")
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		mux:   http.NewServeMux(),
		core:  &fakeCore{},
		mails: mails.NewStore(mails.Configuration{DB: mailsfake.NewDB()}),
		carol: carol,
	}
	New(Configuration{MailStore: f.mails, UserStore: us, Core: f.core}).Register("/api/v1", f.mux)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func isClientError(code int) bool {
	return code >= 400 && code < 500
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/smtp/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var st smtp.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if !st.Running || st.Port != "2525" {
		t.Errorf("Unexpected status %+v", st)
	}

	if rec := f.do(http.MethodPost, "/api/v1/smtp/status", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestCreateMailSendsAndFilesCopy(t *testing.T) {
	f := newFixture(t)

	body := `{"to":["bob@external.example","dave@hosted.test"],"subject":"Hi","body":"Hello"}`
	rec := f.do(http.MethodPost, "/api/v1/mailboxes/carol/Sent/mails", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(f.core.calls) != 1 {
		t.Fatalf("Expected 1 send, got %d", len(f.core.calls))
	}
	call := f.core.calls[0]
	if call.from != "carol@hosted.test" || call.subject != "Hi" || call.body != "Hello" {
		t.Errorf("Unexpected send %+v", call)
	}
	if len(call.to) != 2 || call.to[0].Address.String() != "bob@external.example" {
		t.Errorf("Unexpected recipients %+v", call.to)
	}

	mb, err := f.mails.GetMailboxByName(f.carol.ID, "Sent")
	if err != nil {
		t.Fatalf("Expected Sent mailbox to be created, got %v", err)
	}
	stored, err := f.mails.GetMails(f.carol.ID, mb.UID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("Expected 1 stored copy, got %d (%v)", len(stored), err)
	}

	rec = f.do(http.MethodGet, "/api/v1/mailboxes/carol/Sent/mails", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var listed []mails.Mail
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil || len(listed) != 1 {
		t.Fatalf("Expected 1 listed mail, got %d (%v)", len(listed), err)
	}

	rec = f.do(http.MethodGet, "/api/v1/mailboxes/carol/Sent/mails/"+strconv.FormatUint(uint64(listed[0].UID), 10), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got mails.Mail
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Headers["Subject"] != "Hi" || got.Body != "Hello" {
		t.Errorf("Unexpected mail %+v", got)
	}
}

func TestCreateMailSendFailure(t *testing.T) {
	f := newFixture(t)
	f.core.err = errors.Join(smtp.ErrRelayNotConfigured)

	rec := f.do(http.MethodPost, "/api/v1/mailboxes/carol/Sent/mails", `{"to":["bob@external.example"],"subject":"Hi","body":"Hello"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}

	if _, err := f.mails.GetMailboxByName(f.carol.ID, "Sent"); !errors.Is(err, mails.ErrMailboxNotFound) {
		t.Errorf("Expected no copy to be filed, got %v", err)
	}
}

func TestCreateMailValidation(t *testing.T) {
	f := newFixture(t)

	tests := map[string]string{
		"bad json":      `{"to":`,
		"no recipients": `{"to":[],"subject":"Hi"}`,
		"bad recipient": `{"to":["not an address"]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/mailboxes/carol/Sent/mails", body)
			if !isClientError(rec.Code) {
				t.Errorf("Expected client error, got %d", rec.Code)
			}
		})
	}

	if len(f.core.calls) != 0 {
		t.Errorf("Expected no sends for invalid requests, got %d", len(f.core.calls))
	}
}

func TestMailboxes(t *testing.T) {
	f := newFixture(t)

	if _, err := f.mails.Deliver(f.carol.ID, "alice@hosted.test", "Hi", "Hello"); err != nil {
		t.Fatal(err)
	}

	rec := f.do(http.MethodGet, "/api/v1/mailboxes/carol/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var list []mails.Mailbox
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != mails.DefaultMailboxName {
		t.Errorf("Expected only INBOX, got %+v", list)
	}

	rec = f.do(http.MethodGet, "/api/v1/mailboxes/carol/INBOX", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for INBOX, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/v1/mailboxes/carol/Archive", "")
	if !isClientError(rec.Code) {
		t.Errorf("Expected client error for unknown mailbox, got %d", rec.Code)
	}
}

func TestLookupErrors(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{
		"/api/v1/mailboxes/nobody/",
		"/api/v1/mailboxes/nobody/INBOX/mails",
		"/api/v1/mailboxes/carol/INBOX/mails/abc",
		"/api/v1/mailboxes/carol/INBOX/mails/42",
	} {
		rec := f.do(http.MethodGet, path, "")
		if !isClientError(rec.Code) {
			t.Errorf("GET %s: expected client error, got %d", path, rec.Code)
		}
	}

	if rec := f.do(http.MethodDelete, "/api/v1/mailboxes/carol/INBOX/mails", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestUserByAddress(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/mailboxes/Carol@Hosted.Test/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 when addressing carol by address, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/v1/mailboxes/nobody@hosted.test/", "")
	if !isClientError(rec.Code) {
		t.Errorf("Expected client error for unknown address, got %d", rec.Code)
	}
}

func TestMailboxLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/mailboxes/carol/", `{"name":"Archive"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created mails.Mailbox
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Name != "Archive" || created.UID == 0 {
		t.Errorf("Unexpected mailbox %+v", created)
	}

	if rec := f.do(http.MethodPost, "/api/v1/mailboxes/carol/", `{"name":"Archive"}`); rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate mailbox, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/v1/mailboxes/carol/", `{}`); !isClientError(rec.Code) {
		t.Errorf("Expected client error for missing name, got %d", rec.Code)
	}

	rec = f.do(http.MethodPatch, "/api/v1/mailboxes/carol/Archive", `{"name":"Old"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for rename, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := f.mails.GetMailboxByName(f.carol.ID, "Old"); err != nil {
		t.Errorf("Expected renamed mailbox, got %v", err)
	}

	if err := f.mails.CreateMail(f.carol.ID, created.UID, mails.Mail{UID: 3, Body: "x"}); err != nil {
		t.Fatal(err)
	}

	rec = f.do(http.MethodDelete, "/api/v1/mailboxes/carol/Old", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if _, err := f.mails.GetMailboxByName(f.carol.ID, "Old"); !errors.Is(err, mails.ErrMailboxNotFound) {
		t.Errorf("Expected mailbox to be gone, got %v", err)
	}
	if list, _ := f.mails.GetMails(f.carol.ID, created.UID); len(list) != 0 {
		t.Errorf("Expected mails to be deleted with the mailbox, got %d", len(list))
	}
}

func TestInboxCannotBeRemoved(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(http.MethodDelete, "/api/v1/mailboxes/carol/INBOX", ""); !isClientError(rec.Code) {
		t.Errorf("Expected client error deleting INBOX, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPatch, "/api/v1/mailboxes/carol/INBOX", `{"name":"Other"}`); !isClientError(rec.Code) {
		t.Errorf("Expected client error renaming INBOX, got %d", rec.Code)
	}
	if _, err := f.mails.GetMailboxByUID(f.carol.ID, mails.DefaultMailboxUID); err != nil {
		t.Errorf("Expected INBOX to remain, got %v", err)
	}
}

func TestUpdateAndDeleteMail(t *testing.T) {
	f := newFixture(t)

	uid, err := f.mails.Deliver(f.carol.ID, "alice@hosted.test", "Hi", "Hello")
	if err != nil {
		t.Fatal(err)
	}
	path := "/api/v1/mailboxes/carol/INBOX/mails/" + strconv.FormatUint(uint64(uid), 10)

	rec := f.do(http.MethodPatch, path, `{"flags":["\\Seen"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, err := f.mails.GetMailByUID(f.carol.ID, mails.DefaultMailboxUID, uid)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Flags) != 1 || stored.Flags[0] != `\Seen` || stored.Body != "Hello" {
		t.Errorf("Unexpected mail after update %+v", stored)
	}

	if rec := f.do(http.MethodPatch, path, `{"flags":`); !isClientError(rec.Code) {
		t.Errorf("Expected client error for bad body, got %d", rec.Code)
	}

	rec = f.do(http.MethodDelete, path, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if _, err := f.mails.GetMailByUID(f.carol.ID, mails.DefaultMailboxUID, uid); !errors.Is(err, mails.ErrMailNotFound) {
		t.Errorf("Expected mail to be gone, got %v", err)
	}
	if rec := f.do(http.MethodDelete, path, ""); !isClientError(rec.Code) {
		t.Errorf("Expected client error deleting twice, got %d", rec.Code)
	}
}
