// Package mailer delivers the out-of-band confirmation email to the
// repository owner.
package mailer

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"net/url"
	"strings"
)

type Mailer interface {
	SendConfirmation(ctx context.Context, to, code, requestID string) error
}

// ConfirmationURL builds the link the owner clicks: the verify callback with
// the single-use code and request identifier as query parameters.
func ConfirmationURL(baseURL, code, requestID string) string {
	q := url.Values{}
	q.Set("code", code)
	q.Set("requestId", requestID)
	return strings.TrimRight(baseURL, "/") + "/verify_publish_request?" + q.Encode()
}

func confirmationBody(from, to, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Confirm your game submission\r\n")
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, `<html><body>A game submission names a repository you own. Click <a href="%s">here</a> to confirm this submission.</body></html>`, link)
	b.WriteString("\r\n")
	return b.String()
}

// SMTPMailer sends through a relay.
type SMTPMailer struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	BaseURL  string
}

func (m *SMTPMailer) SendConfirmation(_ context.Context, to, code, requestID string) error {
	link := ConfirmationURL(m.BaseURL, code, requestID)
	var auth smtp.Auth
	if m.Username != "" {
		host := m.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	msg := confirmationBody(m.From, to, link)
	if err := smtp.SendMail(m.Addr, auth, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send confirmation to %s: %w", to, err)
	}
	return nil
}

// LogMailer is the no-relay fallback: it logs the link instead of sending.
// Useful in development; the confirmation still reaches operators via logs.
type LogMailer struct {
	BaseURL string
}

func (m *LogMailer) SendConfirmation(_ context.Context, to, code, requestID string) error {
	log.Printf("mailer: (dry run) confirmation for %s: %s", to, ConfirmationURL(m.BaseURL, code, requestID))
	return nil
}
