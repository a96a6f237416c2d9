package gateway

import (
	"context"
	"io"

	"gopkg.in/gomail.v2"
)

// EmailAttachment is an in-memory file attached to an outgoing email.
type EmailAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type EmailMessage struct {
	To          string
	Subject     string
	HTML        string
	Attachments []EmailAttachment
}

// MailClient sends email over SMTP.
type MailClient struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailClient(host string, port int, username, password, from string) *MailClient {
	return &MailClient{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (c *MailClient) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	for _, att := range msg.Attachments {
		content := att.Content
		m.Attach(att.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {att.ContentType}}),
		)
	}

	return c.dialer.DialAndSend(m)
}
