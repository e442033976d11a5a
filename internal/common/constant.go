package common

// MessageIDLength is the length of the public message identifiers handed out
// by the backend.
const MessageIDLength = 32

// SealedContentType is the media type of a stored JSON envelope when it is
// attached to a notification mail.
const SealedContentType = "application/irmaseal"

// SealedFileName is the attachment name used for stored envelopes.
const SealedFileName = "encrypted.irmaseal"
