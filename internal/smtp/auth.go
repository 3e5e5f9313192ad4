package smtp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OliverSchlueter/mail-transfer/internal/users"
)

// Accounts is the account directory the core authenticates and resolves
// against.
type Accounts interface {
	Resolve(localPart string) (*users.User, error)
	VerifyCredential(localPart, secret string) (bool, error)
}

// Authenticator checks claimed identities against the account directory.
type Authenticator struct {
	accounts Accounts
}

func NewAuthenticator(accounts Accounts) *Authenticator {
	return &Authenticator{accounts: accounts}
}

// Authenticate resolves the local-part of identity and verifies secret
// against it. The returned error is ErrUnknownIdentity or
// ErrInvalidCredential for rejected credentials, anything else is an
// internal fault.
func (a *Authenticator) Authenticate(identity, secret string) (*users.User, error) {
	localPart, _, _ := strings.Cut(identity, "@")
	if localPart == "" {
		return nil, ErrUnknownIdentity
	}

	ok, err := a.accounts.VerifyCredential(localPart, secret)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrUnknownIdentity
		}
		return nil, fmt.Errorf("failed to verify credential: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredential
	}

	u, err := a.accounts.Resolve(localPart)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrUnknownIdentity
		}
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	return u, nil
}
