package mailhandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OliverSchlueter/goutils/idgen"
	"github.com/OliverSchlueter/goutils/problems"
	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/mail-transfer/internal/mails"
	"github.com/OliverSchlueter/mail-transfer/internal/smtp"
	"github.com/OliverSchlueter/mail-transfer/internal/users"
)

// Core is the part of the mail transfer core the handler drives.
type Core interface {
	Status() smtp.Status
	SendProgrammatic(ctx context.Context, from string, to []smtp.Recipient, subject, body string) error
}

type Handler struct {
	mailStore *mails.Store
	userStore *users.Store
	core      Core
}

type Configuration struct {
	MailStore *mails.Store
	UserStore *users.Store
	Core      Core
}

func New(cfg Configuration) *Handler {
	return &Handler{
		mailStore: cfg.MailStore,
		userStore: cfg.UserStore,
		core:      cfg.Core,
	}
}

func (h *Handler) Register(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"/smtp/status", h.handleStatus)
	mux.HandleFunc(prefix+"/mailboxes/{user_id}/", h.handleMailboxes)
	mux.HandleFunc(prefix+"/mailboxes/{user_id}/{mailbox}", h.handleMailbox)
	mux.HandleFunc(prefix+"/mailboxes/{user_id}/{mailbox}/mails", h.handleMails)
	mux.HandleFunc(prefix+"/mailboxes/{user_id}/{mailbox}/mails/{mail}", h.handleMail)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		problems.InternalServerError("Error marshalling response").WriteToHTTP(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.core.Status())
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet}).WriteToHTTP(w)
	}
}

// user resolves the {user_id} path value, which is either the account name
// or one of the account's addresses.
func (h *Handler) user(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	id := r.PathValue("user_id")

	var u *users.User
	var err error
	if strings.Contains(id, "@") {
		u, err = h.userStore.GetByEmail(id)
	} else {
		u, err = h.userStore.GetByName(id)
	}
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			problems.ValidationError("user_id", "Unknown user").WriteToHTTP(w)
			return nil, false
		}
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return nil, false
	}
	return u, true
}

func (h *Handler) mailbox(w http.ResponseWriter, userID, name string) (*mails.Mailbox, bool) {
	mailbox, err := h.mailStore.GetMailboxByName(userID, name)
	if err != nil {
		if errors.Is(err, mails.ErrMailboxNotFound) {
			problems.ValidationError("mailbox", "Unknown mailbox").WriteToHTTP(w)
			return nil, false
		}
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return nil, false
	}
	return mailbox, true
}

func (h *Handler) handleMailboxes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getMailboxes(w, r)
	case http.MethodPost:
		h.createMailbox(w, r)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet, http.MethodPost}).WriteToHTTP(w)
	}
}

func (h *Handler) getMailboxes(w http.ResponseWriter, r *http.Request) {
	u, ok := h.user(w, r)
	if !ok {
		return
	}

	mailboxes, err := h.mailStore.GetMailboxes(u.ID)
	if err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}
	if mailboxes == nil {
		mailboxes = []mails.Mailbox{}
	}

	writeJSON(w, http.StatusOK, mailboxes)
}

func (h *Handler) createMailbox(w http.ResponseWriter, r *http.Request) {
	var req MailboxReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.CouldNotDecodeBody().WriteToHTTP(w)
		return
	}
	if req.Name == "" {
		problems.ValidationError("name", "Mailbox name is required").WriteToHTTP(w)
		return
	}

	u, ok := h.user(w, r)
	if !ok {
		return
	}

	err := h.mailStore.CreateMailbox(mails.Mailbox{UserID: u.ID, Name: req.Name, Flags: []string{}})
	if err != nil {
		if errors.Is(err, mails.ErrMailboxAlreadyExists) {
			problems.AlreadyExists("Mailbox", req.Name).WriteToHTTP(w)
			return
		}
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	mailbox, ok := h.mailbox(w, u.ID, req.Name)
	if !ok {
		return
	}

	writeJSON(w, http.StatusCreated, mailbox)
}

func (h *Handler) handleMailbox(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getMailbox(w, r)
	case http.MethodPatch:
		h.renameMailbox(w, r)
	case http.MethodDelete:
		h.deleteMailbox(w, r)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet, http.MethodPatch, http.MethodDelete}).WriteToHTTP(w)
	}
}

func (h *Handler) getMailbox(w http.ResponseWriter, r *http.Request) {
	u, ok := h.user(w, r)
	if !ok {
		return
	}

	mailbox, ok := h.mailbox(w, u.ID, r.PathValue("mailbox"))
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, mailbox)
}

func (h *Handler) renameMailbox(w http.ResponseWriter, r *http.Request) {
	var req MailboxReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.CouldNotDecodeBody().WriteToHTTP(w)
		return
	}
	if req.Name == "" {
		problems.ValidationError("name", "Mailbox name is required").WriteToHTTP(w)
		return
	}

	u, ok := h.user(w, r)
	if !ok {
		return
	}

	mailbox, ok := h.mailbox(w, u.ID, r.PathValue("mailbox"))
	if !ok {
		return
	}
	if mailbox.UID == mails.DefaultMailboxUID {
		problems.ValidationError("mailbox", "INBOX cannot be renamed").WriteToHTTP(w)
		return
	}
	if _, err := h.mailStore.GetMailboxByName(u.ID, req.Name); err == nil {
		problems.AlreadyExists("Mailbox", req.Name).WriteToHTTP(w)
		return
	}

	mailbox.Name = req.Name
	if err := h.mailStore.UpdateMailbox(*mailbox); err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	writeJSON(w, http.StatusOK, mailbox)
}

func (h *Handler) deleteMailbox(w http.ResponseWriter, r *http.Request) {
	u, ok := h.user(w, r)
	if !ok {
		return
	}

	mailbox, ok := h.mailbox(w, u.ID, r.PathValue("mailbox"))
	if !ok {
		return
	}
	if mailbox.UID == mails.DefaultMailboxUID {
		problems.ValidationError("mailbox", "INBOX cannot be deleted").WriteToHTTP(w)
		return
	}

	if err := h.mailStore.DeleteMailbox(u.ID, mailbox.UID); err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMails(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getMails(w, r)
	case http.MethodPost:
		h.createMail(w, r)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet, http.MethodPost}).WriteToHTTP(w)
	}
}

func (h *Handler) getMails(w http.ResponseWriter, r *http.Request) {
	u, ok := h.user(w, r)
	if !ok {
		return
	}

	mailbox, ok := h.mailbox(w, u.ID, r.PathValue("mailbox"))
	if !ok {
		return
	}

	m, err := h.mailStore.GetMails(u.ID, mailbox.UID)
	if err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}
	if m == nil {
		m = []mails.Mail{}
	}

	writeJSON(w, http.StatusOK, m)
}

// createMail sends a message from the user's primary address and files a
// copy in the mailbox named in the path.
func (h *Handler) createMail(w http.ResponseWriter, r *http.Request) {
	var req CreateMailReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.CouldNotDecodeBody().WriteToHTTP(w)
		return
	}

	if len(req.To) == 0 {
		problems.ValidationError("to", "At least one recipient is required").WriteToHTTP(w)
		return
	}

	recipients := make([]smtp.Recipient, 0, len(req.To))
	for _, to := range req.To {
		addr, err := smtp.ParseAddress(to)
		if err != nil {
			problems.ValidationError("to", "Invalid recipient address: "+to).WriteToHTTP(w)
			return
		}
		recipients = append(recipients, smtp.Recipient{Address: addr})
	}

	u, ok := h.user(w, r)
	if !ok {
		return
	}

	if err := h.core.SendProgrammatic(r.Context(), u.PrimaryEmail, recipients, req.Subject, req.Body); err != nil {
		slog.Error("Failed to send mail", sloki.WrapError(err), slog.String("user", u.Name))
		problems.InternalServerError("Failed to send mail: " + err.Error()).WriteToHTTP(w)
		return
	}

	mailbox, err := h.mailStore.EnsureMailbox(u.ID, r.PathValue("mailbox"))
	if err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	now := time.Now()
	copyMail := mails.Mail{
		UID:        mails.RandomUID(),
		MailboxUID: mailbox.UID,
		Flags:      []string{"\\Seen"},
		Date:       now,
		Size:       int64(len(req.Body)),
		Headers: map[string]string{
			"From":       u.PrimaryEmail,
			"To":         joinAddresses(req.To),
			"Subject":    req.Subject,
			"Date":       now.Format(time.RFC1123Z),
			"Message-ID": idgen.GenerateID(20) + "@" + domainOf(u.PrimaryEmail),
		},
		Body: req.Body,
	}
	if err := h.mailStore.CreateMail(u.ID, mailbox.UID, copyMail); err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	writeJSON(w, http.StatusCreated, copyMail)
}

func (h *Handler) handleMail(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getMail(w, r)
	case http.MethodPatch:
		h.updateMail(w, r)
	case http.MethodDelete:
		h.deleteMail(w, r)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet, http.MethodPatch, http.MethodDelete}).WriteToHTTP(w)
	}
}

// mail resolves the {user_id}, {mailbox} and {mail} path values.
func (h *Handler) mail(w http.ResponseWriter, r *http.Request) (*users.User, *mails.Mail, bool) {
	uid, err := strconv.ParseUint(r.PathValue("mail"), 10, 32)
	if err != nil {
		problems.ValidationError("Mail UID", "Invalid mail UID").WriteToHTTP(w)
		return nil, nil, false
	}

	u, ok := h.user(w, r)
	if !ok {
		return nil, nil, false
	}

	mailbox, ok := h.mailbox(w, u.ID, r.PathValue("mailbox"))
	if !ok {
		return nil, nil, false
	}

	mail, err := h.mailStore.GetMailByUID(u.ID, mailbox.UID, uint32(uid))
	if err != nil {
		if errors.Is(err, mails.ErrMailNotFound) {
			problems.ValidationError("Mail UID", "Unknown mail").WriteToHTTP(w)
			return nil, nil, false
		}
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return nil, nil, false
	}

	return u, mail, true
}

func (h *Handler) getMail(w http.ResponseWriter, r *http.Request) {
	_, mail, ok := h.mail(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, mail)
}

// updateMail replaces the flags of a stored mail.
func (h *Handler) updateMail(w http.ResponseWriter, r *http.Request) {
	var req UpdateMailReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.CouldNotDecodeBody().WriteToHTTP(w)
		return
	}

	u, mail, ok := h.mail(w, r)
	if !ok {
		return
	}

	mail.Flags = req.Flags
	if mail.Flags == nil {
		mail.Flags = []string{}
	}
	if err := h.mailStore.UpdateMail(u.ID, mail.MailboxUID, *mail); err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	writeJSON(w, http.StatusOK, mail)
}

func (h *Handler) deleteMail(w http.ResponseWriter, r *http.Request) {
	u, mail, ok := h.mail(w, r)
	if !ok {
		return
	}

	if err := h.mailStore.DeleteMail(u.ID, mail.MailboxUID, mail.UID); err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
