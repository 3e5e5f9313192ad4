package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const defaultSubject = "no subject"

// ParsedMessage holds the fields of a received message that routing needs.
type ParsedMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
	HTML    bool
	Size    int
}

// ParseMessage reads a complete message. The body prefers the HTML part, then
// the plain text part, then the empty string.
func ParseMessage(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %w", ErrContentParse, err)
	}
	defer mr.Close()

	msg := &ParsedMessage{
		Subject: defaultSubject,
		Size:    len(raw),
	}

	if subject, err := mr.Header.Subject(); err == nil && strings.TrimSpace(subject) != "" {
		msg.Subject = subject
	} else if v := mr.Header.Get("Subject"); strings.TrimSpace(v) != "" {
		msg.Subject = v
	}

	msg.From = addressHeader(mr.Header, "From")
	for _, to := range strings.Split(addressHeader(mr.Header, "To"), ", ") {
		if to != "" {
			msg.To = append(msg.To, to)
		}
	}

	var text, html string
	var haveText, haveHTML bool
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && (p == nil || !message.IsUnknownCharset(err)) {
			return nil, fmt.Errorf("%w: %w", ErrContentParse, err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		if contentType != "text/html" && contentType != "text/plain" {
			continue
		}

		b, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContentParse, err)
		}

		switch {
		case contentType == "text/html" && !haveHTML:
			html, haveHTML = strings.TrimRight(string(b), "\r\n"), true
		case contentType == "text/plain" && !haveText:
			text, haveText = strings.TrimRight(string(b), "\r\n"), true
		}
	}

	switch {
	case haveHTML:
		msg.Body = html
		msg.HTML = true
	case haveText:
		msg.Body = text
	}

	return msg, nil
}

func addressHeader(h mail.Header, key string) string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return strings.TrimSpace(h.Get(key))
	}

	parts := make([]string, 0, len(list))
	for _, a := range list {
		parts = append(parts, a.Address)
	}
	return strings.Join(parts, ", ")
}
