package attest

import (
	"context"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tguard/internal/seal"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

func newPair(t *testing.T) (*Issuer, *Verifier) {
	t.Helper()
	iss, err := NewIssuer(rand.Reader)
	require.NoError(t, err)
	v, err := NewVerifier(iss.PublicKey(), time.Hour)
	require.NoError(t, err)
	return iss, v
}

func TestIssuerVerifier_RoundTrip(t *testing.T) {
	iss, v := newPair(t)
	ctx := context.Background()
	attrs := []seal.Attribute{{Identifier: seal.EmailAttribute, Value: "from@example.com"}}

	sig, err := iss.Sign(ctx, "Tguard bericht met hash abc", attrs)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(sig), signing.MaxSignatureLength)

	d, err := v.Verify(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, "Tguard bericht met hash abc", d.Statement)
	assert.Equal(t, map[string]string{seal.EmailAttribute: "from@example.com"}, d.Attributes)
}

func TestVerifier_Rejects(t *testing.T) {
	iss, v := newPair(t)
	other, _ := newPair(t)
	ctx := context.Background()
	attrs := []seal.Attribute{{Identifier: seal.EmailAttribute, Value: "from@example.com"}}

	sig, err := iss.Sign(ctx, "statement", attrs)
	require.NoError(t, err)
	forged, err := other.Sign(ctx, "statement", attrs)
	require.NoError(t, err)
	another, err := iss.Sign(ctx, "statement", []seal.Attribute{{Identifier: seal.EmailAttribute, Value: "mallory@example.com"}})
	require.NoError(t, err)

	payload, rawSig, _ := strings.Cut(sig, ".")
	otherPayload, _, _ := strings.Cut(another, ".")
	require.NotEqual(t, payload, otherPayload)

	tests := []struct {
		name    string
		sig     string
		wantErr error
	}{
		{"no separator", "abc", ErrMalformed},
		{"payload not base64", "***." + rawSig, ErrMalformed},
		{"signature not base64", payload + ".***", ErrMalformed},
		{"other issuer", forged, ErrBadSig},
		{"swapped payload", otherPayload + "." + rawSig, ErrBadSig},
		{"truncated signature", payload + "." + rawSig[:len(rawSig)-8], ErrBadSig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := v.Verify(ctx, tt.sig)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, d)
		})
	}
}

func TestVerifier_Expiry(t *testing.T) {
	iss, v := newPair(t)
	ctx := context.Background()

	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	sig, err := iss.Sign(ctx, "old", []seal.Attribute{{Identifier: seal.EmailAttribute, Value: "a@b.c"}})
	require.NoError(t, err)

	_, err = v.Verify(ctx, sig)
	require.ErrorIs(t, err, ErrExpired)
	require.ErrorIs(t, err, signing.ErrSignatureMismatch)

	v.maxAge = 0
	_, err = v.Verify(ctx, sig)
	require.NoError(t, err)
}

func TestIssuer_NoAttributes(t *testing.T) {
	iss, _ := newPair(t)
	_, err := iss.Sign(context.Background(), "x", nil)
	require.ErrorIs(t, err, ErrNoAttribute)
}

func TestNewVerifier_BadKey(t *testing.T) {
	_, err := NewVerifier([]byte("short"), 0)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestBinderWithAttestation(t *testing.T) {
	iss, v := newPair(t)
	b := &signing.Binder{Signer: iss, Verifier: v}
	ctx := context.Background()
	blob := []byte("MIME-Version: 1.0\r\n\r\nhello")

	rec, err := b.Sign(ctx, blob, []seal.Attribute{{Identifier: seal.EmailAttribute, Value: "from@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, signing.Statement(blob), rec.Statement)

	assert.True(t, b.Verify(ctx, rec.Signature, blob, "from@example.com"))
	assert.False(t, b.Verify(ctx, rec.Signature, blob, "mallory@example.com"))
	assert.False(t, b.Verify(ctx, rec.Signature, append(blob, '!'), "from@example.com"))
}
