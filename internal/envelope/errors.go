package envelope

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tguard/internal/seal"
)

var (
	// ErrFormatUnrecognized is returned when a blob matches neither wire format.
	ErrFormatUnrecognized = errors.New("envelope format unrecognized")

	// ErrLegacyTruncated is returned when the source ends before the legacy
	// header, or the trailing tag, is complete.
	ErrLegacyTruncated = errors.New("legacy container truncated")

	// ErrMalformedHeader is returned when the legacy header is complete but
	// does not parse.
	ErrMalformedHeader = errors.New("malformed legacy header")

	// ErrUnsupportedVersion is returned for legacy containers of an unknown version.
	ErrUnsupportedVersion = errors.New("unsupported legacy container version")

	// ErrSaturated is returned by MetadataReader.Write once the header is complete.
	ErrSaturated = errors.New("metadata reader already saturated")

	// ErrMalformedJSON is returned when a JSON envelope does not decode.
	ErrMalformedJSON = errors.New("malformed json envelope")

	// ErrTagMismatch is returned when the legacy integrity tag does not match
	// the ciphertext.
	ErrTagMismatch = fmt.Errorf("%w: integrity tag mismatch", seal.ErrAuthentication)
)
