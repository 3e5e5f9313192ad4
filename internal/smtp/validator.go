package smtp

import (
	"errors"
	"fmt"

	"github.com/OliverSchlueter/mail-transfer/internal/users"
)

// Validator decides whether envelope addresses are acceptable for a session.
type Validator struct {
	hostedDomain string
	accounts     Accounts
}

func NewValidator(hostedDomain string, accounts Accounts) *Validator {
	return &Validator{
		hostedDomain: hostedDomain,
		accounts:     accounts,
	}
}

// CheckSender accepts only the authenticated identity's own address in the
// hosted domain.
func (v *Validator) CheckSender(identity *users.User, from string) (Address, error) {
	if identity == nil {
		return Address{}, ErrSenderIdentityMismatch
	}

	addr, err := ParseAddress(from)
	if err != nil {
		if from == "" || from == "<>" {
			return Address{}, ErrSenderIdentityMismatch
		}
		return Address{}, err
	}

	if !addr.InDomain(v.hostedDomain) || addr.LocalPart != identity.Name {
		return Address{}, fmt.Errorf("%w: %s is not %s", ErrSenderIdentityMismatch, addr, identity.Name)
	}

	return addr, nil
}

// CheckRecipient accepts any external address and hosted addresses that
// resolve to an account.
func (v *Validator) CheckRecipient(to string) (Address, error) {
	addr, err := ParseAddress(to)
	if err != nil {
		return Address{}, err
	}

	if !addr.InDomain(v.hostedDomain) {
		return addr, nil
	}

	if _, err := v.accounts.Resolve(addr.LocalPart); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return Address{}, fmt.Errorf("%w: %s", ErrUnknownRecipient, addr)
		}
		return Address{}, fmt.Errorf("failed to resolve recipient: %w", err)
	}

	return addr, nil
}
