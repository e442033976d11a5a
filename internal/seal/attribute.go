// Package seal encrypts messages to recipients named by a verifiable
// attribute and decrypts them again with the user secret key issued for
// that attribute.
//
// Each recipient gets an independent envelope: a session key encapsulated
// with the identity-based KEM in package ibe, and the plaintext encrypted
// with AES-256-GCM under SHA-256 of that session key.
package seal

// EmailAttribute is the attribute identifier of a verified e-mail address.
const EmailAttribute = "pbdf.sidn-pbdf.email.email"

// Further attributes a recipient may be described by.
const (
	NameAttribute  = "pbdf.gemeente.personalData.fullname"
	IBANAttribute  = "pbdf.pbdf.ideal.iban"
	PhoneAttribute = "pbdf.sidn-pbdf.mobilenumber.mobilenumber"
)

// MaxAttributeValueLength is the longest attribute value, in characters,
// accepted in a sealed message.
const MaxAttributeValueLength = 256

// Attribute is a certified claim about the recipient.
type Attribute struct {
	Identifier string `json:"identifier"`
	Value      string `json:"value"`
}

// Recipient is one addressee of a message. Only Attributes[0] drives the
// identity the message is sealed to; the full list travels with the envelope.
type Recipient struct {
	To         string      `json:"to"`
	Attributes []Attribute `json:"attributes"`
}

// EmailRecipient returns a recipient identified by its verified e-mail address.
func EmailRecipient(address string) Recipient {
	return Recipient{
		To:         address,
		Attributes: []Attribute{{Identifier: EmailAttribute, Value: address}},
	}
}
