// Package models defines server-side data models persisted in the database.
package models

import "time"

// Message is the metadata row of one stored envelope. The envelope itself
// lives in object storage under the message ID.
type Message struct {
	// ID is the public 32 character identifier handed to the recipient.
	ID string
	// From is the sender address claimed in the submission.
	From string
	// To is the recipient address.
	To string
	// Subject is stored in plaintext.
	Subject string
	// Signature is the optional sender signature over the plaintext MIME blob.
	Signature *string
	// CreatedAt is set by the database.
	CreatedAt time.Time
}

