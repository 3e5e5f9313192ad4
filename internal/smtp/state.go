package smtp

import (
	"slices"

	"github.com/OliverSchlueter/mail-transfer/internal/users"
)

type Stage int

const (
	StageConnected Stage = iota
	StageAuthenticated
	StageSenderDeclared
	StageRecipientsDeclared
	StageDataReceived
	StageDisconnected
)

func (s Stage) String() string {
	switch s {
	case StageConnected:
		return "connected"
	case StageAuthenticated:
		return "authenticated"
	case StageSenderDeclared:
		return "sender_declared"
	case StageRecipientsDeclared:
		return "recipients_declared"
	case StageDataReceived:
		return "data_received"
	case StageDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a protocol event that drives the session forward.
type Event int

const (
	EventAuth Event = iota
	EventMail
	EventRcpt
	EventData
)

func (e Event) String() string {
	switch e {
	case EventAuth:
		return "AUTH"
	case EventMail:
		return "MAIL"
	case EventRcpt:
		return "RCPT"
	case EventData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// Session is the protocol state of one connection. It is not safe for
// concurrent use; the connection handler owns it.
type Session struct {
	ID         string
	RemoteAddr string

	stage      Stage
	identity   *users.User
	sender     *Address
	recipients []Address
}

func NewSession(id, remoteAddr string) *Session {
	return &Session{
		ID:         id,
		RemoteAddr: remoteAddr,
		stage:      StageConnected,
	}
}

func (s *Session) Stage() Stage {
	return s.stage
}

// Identity returns the authenticated account, or nil.
func (s *Session) Identity() *users.User {
	return s.identity
}

func (s *Session) Sender() (Address, bool) {
	if s.sender == nil {
		return Address{}, false
	}
	return *s.sender, true
}

func (s *Session) Recipients() []Address {
	out := make([]Address, len(s.recipients))
	copy(out, s.recipients)
	return out
}

// Allow reports whether ev may be processed in the current stage.
func (s *Session) Allow(ev Event) error {
	ok := false
	switch ev {
	case EventAuth:
		ok = s.stage == StageConnected
	case EventMail:
		ok = s.stage == StageAuthenticated
	case EventRcpt:
		ok = s.stage == StageSenderDeclared || s.stage == StageRecipientsDeclared
	case EventData:
		ok = s.stage == StageRecipientsDeclared && len(s.recipients) > 0
	}

	if !ok {
		return &SequenceError{Event: ev, Stage: s.stage}
	}
	return nil
}

func (s *Session) Authenticate(u *users.User) error {
	if err := s.Allow(EventAuth); err != nil {
		return err
	}

	s.identity = u
	s.stage = StageAuthenticated
	return nil
}

func (s *Session) DeclareSender(a Address) error {
	if err := s.Allow(EventMail); err != nil {
		return err
	}

	s.sender = &a
	s.stage = StageSenderDeclared
	return nil
}

// AddRecipient accepts a recipient for the current message. Naming the same
// address again is accepted but recorded once.
func (s *Session) AddRecipient(a Address) error {
	if err := s.Allow(EventRcpt); err != nil {
		return err
	}

	if !slices.ContainsFunc(s.recipients, a.Equal) {
		s.recipients = append(s.recipients, a)
	}
	s.stage = StageRecipientsDeclared
	return nil
}

// CompleteData marks the message content as fully received.
func (s *Session) CompleteData() error {
	if err := s.Allow(EventData); err != nil {
		return err
	}

	s.stage = StageDataReceived
	return nil
}

// Reset drops the current transaction. An authenticated session returns to
// StageAuthenticated; earlier and terminal stages are left alone.
func (s *Session) Reset() {
	s.sender = nil
	s.recipients = nil

	if s.stage > StageAuthenticated && s.stage < StageDisconnected {
		s.stage = StageAuthenticated
	}
}

func (s *Session) Disconnect() {
	s.identity = nil
	s.sender = nil
	s.recipients = nil
	s.stage = StageDisconnected
}
