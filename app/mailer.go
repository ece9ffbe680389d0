package app

import (
	"fmt"
	"log"
	"os/exec"
	"strings"
)

// Mailer sends one composed RFC 822 message. The recipient is read from the
// message's own To header.
type Mailer interface {
	Send(message string) error
}

// LogMailer writes the envelope to the log and consumes the message. It is
// the default until an MTA is configured.
type LogMailer struct{}

func (LogMailer) Send(message string) error {
	header, _, _ := strings.Cut(message, "\r\n\r\n")
	log.Printf("mail (not delivered, no MTA configured):\n%s", header)
	return nil
}

// SendmailMailer pipes messages to a local sendmail binary. Delivery
// problems beyond the pipe are the MTA's to handle.
type SendmailMailer struct {
	Path string
}

func (m *SendmailMailer) Send(message string) error {
	cmd := exec.Command(m.Path, "-t")
	cmd.Stdin = strings.NewReader(message)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sendmail: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// NewMailer picks the sendmail transport when the binary exists, the log
// fallback otherwise.
func NewMailer() Mailer {
	if path, err := exec.LookPath("sendmail"); err == nil {
		return &SendmailMailer{Path: path}
	}
	return LogMailer{}
}
