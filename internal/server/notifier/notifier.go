// Package notifier tells recipients that a sealed message is waiting.
package notifier

import (
	"context"

	"github.com/dmitrijs2005/tguard/internal/logging"
)

// Notification describes one stored envelope.
type Notification struct {
	ID      string
	From    string
	To      string
	Subject string
	// URL is the page where the recipient opens the message.
	URL string
	// Envelope is the stored JSON envelope, attached to the mail.
	Envelope []byte
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Confirmation tells the sender of a forwarded mail where the stored copy
// can be opened.
type Confirmation struct {
	ID      string
	To      string
	Subject string
	URL     string
}

type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) error
}

// Mailer is implemented by every notification backend.
type Mailer interface {
	Notifier
	Confirmer
}

// LogNotifier only logs. Used in development.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.log.Info(ctx, "message ready", "id", n.ID, "to", n.To, "url", n.URL, "size", len(n.Envelope))
	return nil
}

func (l *LogNotifier) Confirm(ctx context.Context, c Confirmation) error {
	l.log.Info(ctx, "message confirmed", "id", c.ID, "to", c.To, "url", c.URL)
	return nil
}
