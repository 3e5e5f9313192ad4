package smtp

import (
	"errors"

	gosmtp "github.com/emersion/go-smtp"
)

var (
	ReplyAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	ReplyBadSequence = &gosmtp.SMTPError{
		Code:         503,
		EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
		Message:      "Bad sequence of commands",
	}
	ReplyAuthFailed = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication failed",
	}
	ReplySenderMismatch = &gosmtp.SMTPError{
		Code:         553,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
		Message:      "Sender address does not belong to authenticated user",
	}
	ReplyNoSuchUser = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
		Message:      "No such user here",
	}
	ReplyBadAddress = &gosmtp.SMTPError{
		Code:         501,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
		Message:      "Bad address syntax",
	}
	ReplyContentRejected = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "Message content could not be parsed",
	}
	ReplyTemporaryFailure = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "Temporary failure, try again later",
	}
)

// replyFor translates an error of the session layer into the reply sent to
// the peer. Anything unrecognised becomes a temporary failure so the peer can
// retry.
func replyFor(err error) *gosmtp.SMTPError {
	var seqErr *SequenceError
	var smtpErr *gosmtp.SMTPError

	switch {
	case errors.As(err, &seqErr):
		if seqErr.needsAuth() {
			return ReplyAuthRequired
		}
		return ReplyBadSequence
	case errors.Is(err, ErrUnknownIdentity), errors.Is(err, ErrInvalidCredential):
		return ReplyAuthFailed
	case errors.Is(err, ErrSenderIdentityMismatch):
		return ReplySenderMismatch
	case errors.Is(err, ErrUnknownRecipient):
		return ReplyNoSuchUser
	case errors.Is(err, ErrInvalidAddress):
		return ReplyBadAddress
	case errors.Is(err, ErrContentParse):
		return ReplyContentRejected
	case errors.As(err, &smtpErr):
		return smtpErr
	default:
		return ReplyTemporaryFailure
	}
}

// reason is the metrics label for a rejected command.
func reason(reply *gosmtp.SMTPError) string {
	switch reply {
	case ReplyAuthRequired:
		return "auth_required"
	case ReplyBadSequence:
		return "bad_sequence"
	case ReplyAuthFailed:
		return "auth_failed"
	case ReplySenderMismatch:
		return "sender_mismatch"
	case ReplyNoSuchUser:
		return "unknown_recipient"
	case ReplyBadAddress:
		return "bad_address"
	case ReplyContentRejected:
		return "content"
	case ReplyTemporaryFailure:
		return "internal"
	case gosmtp.ErrDataTooLarge:
		return "too_large"
	default:
		return "other"
	}
}
