package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/iliyamo/event-checkin/internal/config"
)

const qrAttachmentName = "checkin.png"

// Dialer is the part of *gomail.Dialer the Mailer uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends confirmations over SMTP with the QR code embedded inline.
type Mailer struct {
	dialer Dialer
	from   string
	log    *zap.Logger
}

// NewMailer returns a Mailer for the given SMTP settings.
func NewMailer(cfg config.SMTPConfig, log *zap.Logger) *Mailer {
	return NewMailerWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), cfg.From, log)
}

// NewMailerWithDialer is NewMailer with an explicit transport.
func NewMailerWithDialer(d Dialer, from string, log *zap.Logger) *Mailer {
	return &Mailer{dialer: d, from: from, log: log}
}

var confirmationBody = template.Must(template.New("confirmation").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; padding: 20px; border: 1px solid #ddd; border-radius: 8px;">
	<h2 style="text-align: center;">{{.EventName}}</h2>
	<p>Hello {{.Name}},</p>
	<p>your registration is confirmed{{if not .EventStartsAt.IsZero}} for {{.EventStartsAt.Format "Mon, 02 Jan 2006 15:04 MST"}}{{end}}{{if .EventLocation}} at {{.EventLocation}}{{end}}.</p>
	<p>Show this code at the entrance:</p>
	{{if .HasQR}}<p style="text-align: center;"><img src="cid:{{.Attachment}}" alt="check-in code"></p>{{end}}
	{{if .CodeURL}}<p style="text-align: center;"><a href="{{.CodeURL}}">Open your check-in code</a></p>{{end}}
	<p style="color: #777;">Registration {{.RegistrationID}}</p>
</div>
`))

// Message renders the confirmation mail without sending it.
func (m *Mailer) Message(c Confirmation) (*gomail.Message, error) {
	var body bytes.Buffer
	err := confirmationBody.Execute(&body, struct {
		Confirmation
		HasQR      bool
		Attachment string
	}{c, len(c.QRCode) > 0, qrAttachmentName})
	if err != nil {
		return nil, fmt.Errorf("render confirmation: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetAddressHeader("To", c.Recipient, c.Name)
	msg.SetHeader("Subject", "Registration confirmed: "+c.EventName)
	msg.SetBody("text/html", body.String())
	if len(c.QRCode) > 0 {
		png := c.QRCode
		msg.Embed(qrAttachmentName, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(png)
			return err
		}))
	}
	return msg, nil
}

// Send dials the SMTP server and delivers the message.  gomail has no
// context support, so the dial runs in its own goroutine and Send gives up
// when ctx ends.
func (m *Mailer) Send(ctx context.Context, c Confirmation) Result {
	if c.Recipient == "" {
		return Result{Reason: "no recipient address"}
	}
	msg, err := m.Message(c)
	if err != nil {
		return Failed(err)
	}

	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			m.log.Warn("confirmation mail failed",
				zap.String("registration_id", c.RegistrationID), zap.Error(err))
			return Failed(err)
		}
		m.log.Info("confirmation mail sent",
			zap.String("registration_id", c.RegistrationID), zap.String("event_id", c.EventID))
		return Result{Sent: true}
	case <-ctx.Done():
		return Failed(ctx.Err())
	}
}
