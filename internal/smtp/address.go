package smtp

import (
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"
)

// Address is an envelope address split into local-part and domain.
type Address struct {
	LocalPart string
	Domain    string
}

// ParseAddress parses an envelope address token such as "<alice@example.com>"
// or "alice@example.com". Display names are not allowed.
func ParseAddress(token string) (Address, error) {
	token = strings.TrimSpace(token)
	if token == "" || token == "<>" {
		return Address{}, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	parsed, err := mail.ParseAddress(token)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, token)
	}
	if parsed.Name != "" {
		return Address{}, fmt.Errorf("%w: display name in envelope address %q", ErrInvalidAddress, token)
	}

	at := strings.LastIndex(parsed.Address, "@")
	if at <= 0 || at == len(parsed.Address)-1 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, token)
	}

	return Address{
		LocalPart: parsed.Address[:at],
		Domain:    parsed.Address[at+1:],
	}, nil
}

func (a Address) String() string {
	return a.LocalPart + "@" + a.Domain
}

// InDomain reports whether the address belongs to domain. Domains compare
// case-insensitively.
func (a Address) InDomain(domain string) bool {
	return strings.EqualFold(a.Domain, domain)
}

// Equal reports whether a and b name the same mailbox. Local-parts compare
// exactly, domains case-insensitively.
func (a Address) Equal(b Address) bool {
	return a.LocalPart == b.LocalPart && a.InDomain(b.Domain)
}
