package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/dmitrijs2005/tguard/internal/common"
)

const bodyTemplate = `You have received an encrypted message from :from.

Open it here: :url

The encrypted message is also attached to this mail. It can only be
decrypted by proving that this e-mail address belongs to you.
`

const confirmTemplate = `Your encrypted message has been received and stored.

It can be opened here: :url
`

var sendMail = smtp.SendMail

// SMTPNotifier mails the recipient a download link with the envelope
// attached.
type SMTPNotifier struct {
	addr string
	host string
	from *netmail.Address
	auth smtp.Auth
	now  func() time.Time
}

// NewSMTPNotifier sends through host:port as from. user and pass enable
// PLAIN authentication when pass is not empty.
func NewSMTPNotifier(host string, port int, from, user, pass string) (*SMTPNotifier, error) {
	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse mail sender: %w", err)
	}
	n := &SMTPNotifier{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		host: host,
		from: addr,
		now:  time.Now,
	}
	if pass != "" {
		n.auth = smtp.PlainAuth("", user, pass, host)
	}
	return n, nil
}

func (s *SMTPNotifier) Notify(_ context.Context, n Notification) error {
	to, err := netmail.ParseAddress(n.To)
	if err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}
	msg, err := s.compose(n, to)
	if err != nil {
		return err
	}
	if err := sendMail(s.addr, s.auth, s.from.Address, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to.Address, err)
	}
	return nil
}

func (s *SMTPNotifier) compose(n Notification, to *netmail.Address) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{s.from})
	h.SetAddressList("To", []*mail.Address{to})
	if replyTo, err := netmail.ParseAddress(n.From); err == nil {
		h.SetAddressList("Reply-To", []*mail.Address{replyTo})
	}
	h.SetSubject(n.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	var ah mail.AttachmentHeader
	ah.Set("Content-Type", common.SealedContentType)
	ah.Set("Content-Transfer-Encoding", "base64")
	ah.SetFilename(common.SealedFileName)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, fmt.Errorf("create envelope attachment: %w", err)
	}
	if err := writeAndClose(aw, n.Envelope); err != nil {
		return nil, fmt.Errorf("write envelope attachment: %w", err)
	}

	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	body := strings.NewReplacer(":from", n.From, ":url", n.URL).Replace(bodyTemplate)
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	if err := writeAndClose(tw, []byte(body)); err != nil {
		return nil, fmt.Errorf("write text part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Confirm mails c.To a plain text reply to the forwarded subject.
func (s *SMTPNotifier) Confirm(_ context.Context, c Confirmation) error {
	to, err := netmail.ParseAddress(c.To)
	if err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}
	msg, err := s.composeConfirmation(c, to)
	if err != nil {
		return err
	}
	if err := sendMail(s.addr, s.auth, s.from.Address, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("send confirmation to %s: %w", to.Address, err)
	}
	return nil
}

func (s *SMTPNotifier) composeConfirmation(c Confirmation, to *netmail.Address) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{s.from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject("Re: " + c.Subject)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	body := strings.ReplaceAll(confirmTemplate, ":url", c.URL)
	if err := writeAndClose(w, []byte(body)); err != nil {
		return nil, fmt.Errorf("write confirmation: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAndClose(w io.WriteCloser, p []byte) error {
	if _, err := w.Write(p); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
