// Package models defines the client-side data models of the tguard CLI.
package models

import (
	"time"

	"github.com/dmitrijs2005/tguard/internal/mimex"
	"github.com/dmitrijs2005/tguard/internal/seal"
)

// Draft is a message about to be sealed and submitted.
type Draft struct {
	From string
	// Recipients are sealed to their first attribute; the rest travel with
	// the envelope.
	Recipients  []seal.Recipient
	Subject     string
	Message     string
	Attachments []mimex.File
	// Sign requests an attribute-based signature over the MIME blob.
	Sign bool
}

// Received is an opened message.
type Received struct {
	ID          string           `json:"id"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Subject     string           `json:"subject"`
	Message     string           `json:"message"`
	Attachments []mimex.File     `json:"attachments,omitempty"`
	Attributes  []seal.Attribute `json:"attributes"`
	// Signed is set only when a signature was present and verified.
	Signed bool `json:"signed"`
}

// Overview is the part of a Received shown in listings.
type Overview struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
}

// Overview extracts the listing fields of r.
func (r *Received) Overview() Overview {
	return Overview{From: r.From, Subject: r.Subject}
}

// StoredMessage is a row of the local inbox. Overview and Details hold
// AES-GCM ciphertexts of an Overview and a Received.
type StoredMessage struct {
	ID            string
	Overview      []byte
	NonceOverview []byte
	Details       []byte
	NonceDetails  []byte
	Signed        bool
	OpenedAt      time.Time
}

// InboxItem is a decrypted listing row.
type InboxItem struct {
	ID       string
	From     string
	Subject  string
	Signed   bool
	OpenedAt time.Time
}
