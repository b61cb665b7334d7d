package mailbox

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

// Message is a parsed notification.
type Message struct {
	ID      uint32
	Sender  string
	Subject string
	HTML    string
	Text    string
}

// Body returns the HTML part when present, the plain text part otherwise.
func (m *Message) Body() string {
	if strings.TrimSpace(m.HTML) != "" {
		return m.HTML
	}
	return m.Text
}

// Parse decodes a raw RFC 5322 message. Unknown charsets are tolerated and
// the raw bytes of such parts are kept.
func Parse(id uint32, raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("reading message %d: %w", id, err)
	}
	defer mr.Close()

	msg := &Message{ID: id}

	if subject, err := mr.Header.Subject(); err == nil || message.IsUnknownCharset(err) {
		msg.Subject = subject
	}
	msg.Sender = sender(mr.Header)

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("reading part of message %d: %w", id, err)
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := inline.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("reading body of message %d: %w", id, err)
		}

		switch {
		case contentType == "text/html" && msg.HTML == "":
			msg.HTML = string(body)
		case (contentType == "text/plain" || contentType == "") && msg.Text == "":
			msg.Text = string(body)
		}
	}

	return msg, nil
}

func sender(h mail.Header) string {
	addresses, err := h.AddressList("From")
	if err == nil && len(addresses) > 0 {
		return strings.ToLower(addresses[0].Address)
	}
	return strings.ToLower(strings.TrimSpace(h.Get("From")))
}
