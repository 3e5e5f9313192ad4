package relay

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
)

var signedHeaders = []string{
	"from",
	"to",
	"subject",
	"date",
	"message-id",
}

// DKIMSigner produces DKIM-Signature headers for relayed mail.
type DKIMSigner struct {
	Domain   string
	Selector string
	Key      crypto.Signer
}

// LoadDKIMSigner reads a PEM encoded RSA (PKCS#1) or PKCS#8 private key.
func LoadDKIMSigner(path, domain, selector string) (*DKIMSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	key, err := parsePrivateKey(data)
	if err != nil {
		return nil, err
	}

	if selector == "" {
		selector = "mail"
	}

	return &DKIMSigner{
		Domain:   domain,
		Selector: selector,
		Key:      key,
	}, nil
}

func parsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM data")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return signer, nil
}

// Sign returns the value of the DKIM-Signature header for raw, which must be
// a complete CRLF terminated message.
func (s *DKIMSigner) Sign(raw []byte) (string, error) {
	signer, err := dkim.NewSigner(&dkim.SignOptions{
		Domain:     s.Domain,
		Selector:   s.Selector,
		Signer:     s.Key,
		HeaderKeys: signedHeaders,
	})
	if err != nil {
		return "", err
	}

	if _, err := signer.Write(raw); err != nil {
		signer.Close()
		return "", err
	}
	if err := signer.Close(); err != nil {
		return "", err
	}

	header := signer.Signature()
	value := strings.TrimPrefix(header, "DKIM-Signature:")
	return strings.TrimSpace(value), nil
}
