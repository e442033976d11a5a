package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tguard/internal/common"
	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/seal"
	"github.com/dmitrijs2005/tguard/internal/shared"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

const testID = "0123456789abcdef0123456789abcdef"

type fakeMessages struct {
	got       *shared.Submission
	ids       []string
	submitErr error
	download  *shared.Download
	dlErr     error
	data      []byte
	gotToken  string
	serveErr  error
}

func (f *fakeMessages) Submit(_ context.Context, sub *shared.Submission) ([]string, error) {
	f.got = sub
	return f.ids, f.submitErr
}

func (f *fakeMessages) Download(_ context.Context, id string) (*shared.Download, error) {
	if f.dlErr != nil {
		return nil, f.dlErr
	}
	return f.download, nil
}

func (f *fakeMessages) Serve(_ context.Context, id, token string) ([]byte, error) {
	f.gotToken = token
	return f.data, f.serveErr
}

type fakeVerifier struct {
	d   *signing.Disclosure
	err error
}

func (f *fakeVerifier) Verify(context.Context, string) (*signing.Disclosure, error) {
	return f.d, f.err
}

type fakeIngest struct {
	gotURL string
	id     string
	ids    []string
	err    error
}

func (f *fakeIngest) Process(_ context.Context, messageURL string) (string, error) {
	f.gotURL = messageURL
	return f.id, f.err
}

func (f *fakeIngest) Poll(context.Context) ([]string, error) {
	return f.ids, f.err
}

func submissionBody(t *testing.T, from string) []byte {
	t.Helper()
	b, err := json.Marshal(shared.Submission{
		From:    from,
		Subject: "hi",
		RecipientMessages: []seal.RecipientMessage{{
			To: "to@example.com",
			Sealed: &seal.SealedMessage{
				KeyCipher:  "a2V5",
				Ciphertext: "Y3Q=",
				IV:         "0z6La7O6CfxcvND0LqDQBA==",
				Timestamp:  1629883307061,
				Attributes: []seal.Attribute{{Identifier: seal.EmailAttribute, Value: "to@example.com"}},
			},
		}},
	})
	require.NoError(t, err)
	return b
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmit(t *testing.T) {
	ms := &fakeMessages{ids: []string{testID}}
	s := NewHTTPServer(":0", logging.Discard(), ms, nil, nil)

	rec := do(t, s.Handler(), http.MethodPost, SubmitPath, submissionBody(t, "from@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res shared.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{testID}, res.IDs)
	require.NotNil(t, ms.got)
	assert.Equal(t, "from@example.com", ms.got.From)
	assert.Equal(t, "to@example.com", ms.got.RecipientMessages[0].To)
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		err  error
		want int
	}{
		{"malformed json", []byte("{"), nil, http.StatusBadRequest},
		{"validation", nil, fmt.Errorf("%w: bad from", common.ErrorValidation), http.StatusBadRequest},
		{"attribute", nil, common.ErrorInvalidAttribute, http.StatusBadRequest},
		{"too big", nil, common.ErrorTooBig, http.StatusBadRequest},
		{"storage failure", nil, errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body
			if body == nil {
				body = submissionBody(t, "from@example.com")
			}
			s := NewHTTPServer(":0", logging.Discard(), &fakeMessages{submitErr: tt.err}, nil, nil)
			rec := do(t, s.Handler(), http.MethodPost, SubmitPath, body)
			assert.Equal(t, tt.want, rec.Code)

			var er errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
			assert.NotEmpty(t, er.Error)
			assert.NotContains(t, er.Error, "disk full")
		})
	}
}

func TestSubmit_RateLimitedPerSender(t *testing.T) {
	ms := &fakeMessages{ids: []string{testID}}
	s := NewHTTPServer(":0", logging.Discard(), ms, nil, NewRateLimiter(1, 2))
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		rec := do(t, s.Handler(), http.MethodPost, SubmitPath, submissionBody(t, "a@example.com"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, s.Handler(), http.MethodPost, SubmitPath, submissionBody(t, "A@Example.com"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(t, s.Handler(), http.MethodPost, SubmitPath, submissionBody(t, "b@example.com"))
	assert.Equal(t, http.StatusOK, rec.Code)

	now = now.Add(time.Minute)
	rec = do(t, s.Handler(), http.MethodPost, SubmitPath, submissionBody(t, "a@example.com"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDownload(t *testing.T) {
	d := &shared.Download{ID: testID, From: "from@example.com", To: "to@example.com", Subject: "hi", Content: "http://x/api/storage/" + testID}
	s := NewHTTPServer(":0", logging.Discard(), &fakeMessages{download: d}, nil, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/download/"+testID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got shared.Download
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, *d, got)

	s = NewHTTPServer(":0", logging.Discard(), &fakeMessages{dlErr: common.ErrorNotFound}, nil, nil)
	rec = do(t, s.Handler(), http.MethodGet, "/api/download/"+testID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s.Handler(), http.MethodPost, "/api/download/"+testID, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeEnvelope(t *testing.T) {
	ms := &fakeMessages{data: []byte(`{"c":"x"}`)}
	s := NewHTTPServer(":0", logging.Discard(), ms, nil, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/storage/"+testID+"?token=tok", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"c":"x"}`, rec.Body.String())
	assert.Equal(t, "tok", ms.gotToken)

	for _, err := range []error{common.ErrInvalidToken, common.ErrTokenExpired} {
		ms.serveErr = err
		rec = do(t, s.Handler(), http.MethodGet, "/api/storage/"+testID+"?token=tok", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}
}

func TestVerify(t *testing.T) {
	fv := &fakeVerifier{d: &signing.Disclosure{
		Statement:  "st",
		Attributes: map[string]string{seal.EmailAttribute: "from@example.com"},
	}}
	s := NewHTTPServer(":0", logging.Discard(), &fakeMessages{}, fv, nil)

	verify := func(body string) (int, signing.VerifyResponse) {
		rec := do(t, s.Handler(), http.MethodPost, VerifyPath, []byte(body))
		var vr signing.VerifyResponse
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vr))
		}
		return rec.Code, vr
	}

	code, vr := verify(`{"signature":"sig"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, vr.Valid)
	assert.Equal(t, "st", vr.Statement)
	assert.Equal(t, "from@example.com", vr.Attributes[seal.EmailAttribute])

	fv.err = signing.ErrInvalidProof
	code, vr = verify(`{"signature":"sig"}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, vr.Valid)
	assert.Empty(t, vr.Attributes)

	fv.err = errors.New("boom")
	code, _ = verify(`{"signature":"sig"}`)
	assert.Equal(t, http.StatusInternalServerError, code)

	code, _ = verify(`{"signature":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = verify(`{"signature":"` + strings.Repeat("x", signing.MaxSignatureLength+1) + `"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestVerify_NotServedWithoutVerifier(t *testing.T) {
	s := NewHTTPServer(":0", logging.Discard(), &fakeMessages{}, nil, nil)
	rec := do(t, s.Handler(), http.MethodPost, VerifyPath, []byte(`{"signature":"sig"}`))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	ms := &fakeMessages{ids: []string{testID, testID}}
	s := NewHTTPServer(":0", logging.Discard(), ms, nil, nil)

	do(t, s.Handler(), http.MethodPost, SubmitPath, submissionBody(t, "from@example.com"))

	rec := do(t, s.Handler(), http.MethodGet, MetricsPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `tguard_submissions_total{result="ok"} 1`)
	assert.Contains(t, body, `tguard_messages_stored_total 2`)
	assert.Contains(t, body, `tguard_http_request_duration_seconds_count{code="200",route="/api"} 1`)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(fmt.Errorf("wrap: %w", common.ErrorTooBig)))
	assert.Equal(t, http.StatusNotFound, statusOf(common.ErrorNotFound))
	assert.Equal(t, http.StatusTooManyRequests, statusOf(common.ErrorRateLimited))
	assert.Equal(t, http.StatusInternalServerError, statusOf(io.ErrUnexpectedEOF))
}

func TestRateLimiter(t *testing.T) {
	assert.Nil(t, NewRateLimiter(0, 5))
	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Allow("x", time.Now()))

	l := NewRateLimiter(60, 1)
	now := time.Unix(0, 0)
	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now))
	assert.True(t, l.Allow("a", now.Add(time.Second)))
}

func TestRateLimiter_EvictsIdle(t *testing.T) {
	l := NewRateLimiter(60, 1)
	start := time.Unix(0, 0)
	l.Allow("idle", start)

	later := start.Add(time.Hour)
	for i := 0; i < 511; i++ {
		l.Allow(fmt.Sprintf("k%d", i), later)
	}
	_, ok := l.byKey["idle"]
	assert.False(t, ok)
	assert.Len(t, l.byKey, 511)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := NewHTTPServer(addr, logging.Discard(), &fakeMessages{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + MetricsPath)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func postForm(t *testing.T, h http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewEmail(t *testing.T) {
	in := &fakeIngest{id: testID}
	s := NewHTTPServer(":0", logging.Discard(), &fakeMessages{}, nil, nil).WithIngest(in)

	rec := postForm(t, s.Handler(), NewEmailPath, url.Values{"message-url": {"https://storage.mailgun.example/v3/domains/m1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://storage.mailgun.example/v3/domains/m1", in.gotURL)

	var res shared.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{testID}, res.IDs)

	metrics := do(t, s.Handler(), http.MethodGet, MetricsPath, nil).Body.String()
	assert.Contains(t, metrics, `tguard_ingested_total{result="ok"} 1`)
	assert.Contains(t, metrics, `tguard_messages_stored_total 1`)
}

func TestNewEmail_Errors(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		err  error
		want int
	}{
		{"missing url", url.Values{}, nil, http.StatusBadRequest},
		{"rejected url", url.Values{"message-url": {"x"}}, fmt.Errorf("%w: invalid API url", common.ErrorValidation), http.StatusBadRequest},
		{"upstream failure", url.Values{"message-url": {"x"}}, errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHTTPServer(":0", logging.Discard(), &fakeMessages{}, nil, nil).WithIngest(&fakeIngest{err: tt.err})
			rec := postForm(t, s.Handler(), NewEmailPath, tt.form)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPoll(t *testing.T) {
	s := NewHTTPServer(":0", logging.Discard(), &fakeMessages{}, nil, nil).WithIngest(&fakeIngest{ids: []string{testID, testID}})

	rec := do(t, s.Handler(), http.MethodGet, PollPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res shared.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.IDs, 2)

	s = NewHTTPServer(":0", logging.Discard(), &fakeMessages{}, nil, nil).WithIngest(&fakeIngest{err: errors.New("mailgun down")})
	rec = do(t, s.Handler(), http.MethodGet, PollPath, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIngestRoutes_NotServedByDefault(t *testing.T) {
	s := NewHTTPServer(":0", logging.Discard(), &fakeMessages{}, nil, nil)
	assert.Equal(t, http.StatusNotFound, postForm(t, s.Handler(), NewEmailPath, url.Values{"message-url": {"x"}}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, PollPath, nil).Code)
}
