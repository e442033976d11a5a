package keyservice

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tguard/internal/attest"
	"github.com/dmitrijs2005/tguard/internal/ibe"
	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/netx"
	"github.com/dmitrijs2005/tguard/internal/seal"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

const testToken = "dev-token"

func newTestService(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	_, mk, err := ibe.Setup(rand.Reader)
	require.NoError(t, err)
	iss, err := attest.NewIssuer(rand.Reader)
	require.NoError(t, err)

	ts := httptest.NewServer(NewDevServer(mk, iss, testToken, logging.Discard()))
	t.Cleanup(ts.Close)

	hc := netx.New(2 * time.Second)
	hc.InitialInterval = time.Millisecond
	return NewClient(ts.URL+"/", hc), ts
}

func TestClient_SealAndUnsealWithIssuedKey(t *testing.T) {
	c, _ := newTestService(t)
	ctx := context.Background()

	pk, err := c.PublicKey(ctx)
	require.NoError(t, err)

	r := seal.EmailRecipient("to@example.com")
	msgs, err := seal.Seal(pk, []seal.Recipient{r}, []byte("Hello"), 1629883307, rand.Reader)
	require.NoError(t, err)

	usk, err := c.UserSecretKey(ctx, r.Attributes[0], 1629883307, testToken)
	require.NoError(t, err)

	pt, err := seal.Unseal(msgs[0].Sealed, usk)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello"), pt)
}

func TestClient_UserSecretKey_Unauthorized(t *testing.T) {
	c, _ := newTestService(t)

	_, err := c.UserSecretKey(context.Background(), seal.Attribute{Identifier: seal.EmailAttribute, Value: "a@b.c"}, 1, "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_UserSecretKey_NotValid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/request/key/42", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req KeyRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pbdf.sidn-pbdf.email.email", req.Attribute.Identifier)
		_ = json.NewEncoder(w).Encode(KeyResponse{Status: "DONE_INVALID"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, netx.New(time.Second))
	_, err := c.UserSecretKey(context.Background(), seal.Attribute{Identifier: seal.EmailAttribute, Value: "a@b.c"}, 42, "tok")
	require.ErrorIs(t, err, ErrKeyNotIssued)
}

func TestDevServer_BadRequests(t *testing.T) {
	_, ts := newTestService(t)

	do := func(method, path, body string, auth bool) int {
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		if auth {
			req.Header.Set("Authorization", "Bearer "+testToken)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/v2/request/key/abc", `{}`, true))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/v2/request/key/1", `{`, true))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/v2/request/key/1", `{"attribute":{}}`, true))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "/v2/request/key/1", `{}`, false))
	assert.Equal(t, http.StatusMethodNotAllowed, do(http.MethodGet, "/v2/request/key/1", ``, true))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, SignPath, `{"statement":""}`, true))
}

func TestRemoteSigner_VerifiesWithIssuerKey(t *testing.T) {
	c, _ := newTestService(t)
	ctx := context.Background()

	params, err := c.Parameters(ctx)
	require.NoError(t, err)
	issuerKey, err := base64.StdEncoding.DecodeString(params.IssuerKey)
	require.NoError(t, err)
	v, err := attest.NewVerifier(issuerKey, time.Minute)
	require.NoError(t, err)

	b := &signing.Binder{Signer: c.Signer(testToken), Verifier: v}
	blob := []byte("mime blob")
	rec, err := b.Sign(ctx, blob, []seal.Attribute{{Identifier: seal.EmailAttribute, Value: "from@example.com"}})
	require.NoError(t, err)
	assert.True(t, b.Verify(ctx, rec.Signature, blob, "from@example.com"))

	_, err = c.Signer("nope").Sign(ctx, "st", nil)
	require.ErrorIs(t, err, ErrUnauthorized)
}
