package mails

import (
	"errors"
	"math/rand"
	"time"
)

type DB interface {
	GetMailboxes(userID string) ([]Mailbox, error)
	GetMailboxByUID(userID string, uid uint32) (*Mailbox, error)
	GetMailboxByName(userID string, name string) (*Mailbox, error)
	InsertMailbox(mailbox Mailbox) error
	UpdateMailbox(mailbox Mailbox) error
	DeleteMailbox(userID string, uid uint32) error

	GetMails(userID string, mailboxUID uint32) ([]Mail, error)
	GetMailByUID(userID string, mailboxUID uint32, uid uint32) (*Mail, error)
	InsertMail(userID string, mailboxUID uint32, mail Mail) error
	UpdateMail(userID string, mailboxUID uint32, mail Mail) error
	DeleteMail(userID string, mailboxUID uint32, uid uint32) error
}

type Store struct {
	db DB
}

type Configuration struct {
	DB DB
}

func NewStore(cfg Configuration) *Store {
	return &Store{
		db: cfg.DB,
	}
}

func (s *Store) GetMailboxes(userID string) ([]Mailbox, error) {
	return s.db.GetMailboxes(userID)
}

func (s *Store) GetMailboxByUID(userID string, uid uint32) (*Mailbox, error) {
	mb, err := s.db.GetMailboxByUID(userID, uid)
	if err != nil {
		if errors.Is(err, ErrMailboxNotFound) && uid == DefaultMailboxUID {
			return s.createDefaultMailbox(userID)
		}
		return nil, err
	}

	return mb, nil
}

func (s *Store) GetMailboxByName(userID string, name string) (*Mailbox, error) {
	mb, err := s.db.GetMailboxByName(userID, name)
	if err != nil {
		if errors.Is(err, ErrMailboxNotFound) && name == DefaultMailboxName {
			return s.createDefaultMailbox(userID)
		}
		return nil, err
	}

	return mb, nil
}

// EnsureMailbox returns the named mailbox, creating it if the user does not
// have one by that name yet.
func (s *Store) EnsureMailbox(userID string, name string) (*Mailbox, error) {
	mb, err := s.GetMailboxByName(userID, name)
	if err == nil {
		return mb, nil
	}
	if !errors.Is(err, ErrMailboxNotFound) {
		return nil, err
	}

	if err := s.ensureDefaultMailbox(userID); err != nil {
		return nil, err
	}

	err = s.db.InsertMailbox(Mailbox{UserID: userID, Name: name, Flags: []string{}})
	if err != nil && !errors.Is(err, ErrMailboxAlreadyExists) {
		return nil, err
	}

	return s.db.GetMailboxByName(userID, name)
}

// createDefaultMailbox inserts the INBOX. Another delivery may have created
// it in the meantime, in which case the stored one is returned.
func (s *Store) createDefaultMailbox(userID string) (*Mailbox, error) {
	mb := &Mailbox{
		UserID: userID,
		Name:   DefaultMailboxName,
		UID:    DefaultMailboxUID,
		Flags:  []string{},
	}
	if err := s.db.InsertMailbox(*mb); err != nil {
		if errors.Is(err, ErrMailboxAlreadyExists) {
			return s.db.GetMailboxByUID(userID, DefaultMailboxUID)
		}
		return nil, err
	}

	return mb, nil
}

// CreateMailbox adds a mailbox for mailbox.UserID. The INBOX is created
// first so that it keeps DefaultMailboxUID.
func (s *Store) CreateMailbox(mailbox Mailbox) error {
	if err := s.ensureDefaultMailbox(mailbox.UserID); err != nil {
		return err
	}
	return s.db.InsertMailbox(mailbox)
}

func (s *Store) ensureDefaultMailbox(userID string) error {
	_, err := s.GetMailboxByUID(userID, DefaultMailboxUID)
	return err
}

func (s *Store) UpdateMailbox(mailbox Mailbox) error {
	return s.db.UpdateMailbox(mailbox)
}

func (s *Store) DeleteMailbox(userID string, uid uint32) error {
	return s.db.DeleteMailbox(userID, uid)
}

func (s *Store) GetMails(userID string, mailboxUID uint32) ([]Mail, error) {
	return s.db.GetMails(userID, mailboxUID)
}

func (s *Store) GetMailByUID(userID string, mailboxUID uint32, uid uint32) (*Mail, error) {
	return s.db.GetMailByUID(userID, mailboxUID, uid)
}

func (s *Store) CreateMail(userID string, mailboxUID uint32, mail Mail) error {
	if _, err := s.GetMailboxByUID(userID, mailboxUID); err != nil {
		return err
	}

	mail.UserID = userID
	return s.db.InsertMail(userID, mailboxUID, mail)
}

// Deliver files a message into the user's default mailbox and returns the
// UID it was stored under.
func (s *Store) Deliver(userID, sender, subject, body string) (uint32, error) {
	m := Mail{
		UID:        RandomUID(),
		MailboxUID: DefaultMailboxUID,
		Flags:      []string{},
		Date:       time.Now(),
		Size:       int64(len(body)),
		Headers: map[string]string{
			"From":    sender,
			"Subject": subject,
		},
		Body: body,
	}

	if err := s.CreateMail(userID, DefaultMailboxUID, m); err != nil {
		return 0, err
	}

	return m.UID, nil
}

func (s *Store) UpdateMail(userID string, mailboxUID uint32, mail Mail) error {
	return s.db.UpdateMail(userID, mailboxUID, mail)
}

func (s *Store) DeleteMail(userID string, mailboxUID uint32, uid uint32) error {
	return s.db.DeleteMail(userID, mailboxUID, uid)
}

// RandomUID returns a non-zero random UID.
func RandomUID() uint32 {
	for {
		if uid := rand.Uint32(); uid != 0 {
			return uid
		}
	}
}
