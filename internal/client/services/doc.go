// Package services implements the CLI's flows: sealing and submitting a
// message, downloading and opening one, and keeping opened messages in the
// local encrypted inbox.
package services
