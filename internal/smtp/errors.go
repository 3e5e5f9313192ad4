package smtp

import (
	"errors"
	"fmt"
)

var (
	ErrProtocolSequence       = errors.New("bad sequence of commands")
	ErrUnknownIdentity        = errors.New("no such mailbox")
	ErrInvalidCredential      = errors.New("authentication failed")
	ErrSenderIdentityMismatch = errors.New("sender does not match authenticated identity")
	ErrUnknownRecipient       = errors.New("no such user here")
	ErrInvalidAddress         = errors.New("invalid address")
	ErrContentParse           = errors.New("could not parse message content")
	ErrRelayNotConfigured     = errors.New("no active relay configured")
)

// SequenceError is returned when a protocol event arrives in a stage that
// does not accept it. It matches ErrProtocolSequence.
type SequenceError struct {
	Event Event
	Stage Stage
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s not allowed in stage %s", e.Event, e.Stage)
}

func (e *SequenceError) Is(target error) bool {
	return target == ErrProtocolSequence
}

// needsAuth reports whether the event was refused because the session has
// not authenticated yet.
func (e *SequenceError) needsAuth() bool {
	return e.Stage == StageConnected && e.Event != EventAuth
}
