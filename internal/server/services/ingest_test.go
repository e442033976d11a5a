package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tguard/internal/common"
	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/netx"
	"github.com/dmitrijs2005/tguard/internal/server/notifier"
	"github.com/dmitrijs2005/tguard/internal/server/repositories/repomanager"
)

const forwardedBody = "See below.\r\n\r\n---------- Forwarded message ---------\r\nFrom: Alice <alice@example.com>\r\nDate: Wed, 25 Aug 2021\r\n"

type recordingConfirmer struct {
	got []notifier.Confirmation
	err error
}

func (r *recordingConfirmer) Confirm(_ context.Context, c notifier.Confirmation) error {
	r.got = append(r.got, c)
	return r.err
}

// fakeMailgun serves stored messages, their attachments and an events feed.
type fakeMailgun struct {
	mu       sync.Mutex
	srv      *httptest.Server
	messages map[string]mailgunMessage
	blobs    map[string][]byte
	auth     []string
}

func newFakeMailgun(t *testing.T) *fakeMailgun {
	t.Helper()
	f := &fakeMailgun{messages: map[string]mailgunMessage{}, blobs: map[string][]byte{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		user, pass, _ := r.BasicAuth()
		f.auth = append(f.auth, user+":"+pass)
		if r.URL.Path == "/v3/events" {
			var items []map[string]any
			for path := range f.messages {
				items = append(items, map[string]any{"storage": map[string]string{"url": "http://" + r.Host + path}})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
			return
		}
		if m, ok := f.messages[r.URL.Path]; ok {
			_ = json.NewEncoder(w).Encode(m)
			return
		}
		if b, ok := f.blobs[r.URL.Path]; ok {
			_, _ = w.Write(b)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// add registers a stored message at /v3/domains/<key> with one attachment.
func (f *fakeMailgun) add(key string, att mailgunAttachment, blob []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := "/v3/domains/" + key
	att.URL = f.srv.URL + path + "/attachment"
	f.blobs[path+"/attachment"] = blob
	f.messages[path] = mailgunMessage{
		Sender:      "forwarder@example.com",
		Subject:     "Sealed",
		BodyPlain:   forwardedBody,
		MessageID:   "<" + key + "@mailgun.example>",
		Attachments: []mailgunAttachment{{ContentType: "image/png", Name: "logo.png"}, att},
	}
	return f.srv.URL + path
}

type ingestFixture struct {
	svc     *IngestService
	mock    sqlmock.Sqlmock
	store   *memStorage
	confirm *recordingConfirmer
	mg      *fakeMailgun
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mg := newFakeMailgun(t)
	hc := netx.New(time.Second)
	hc.MaxRetries = 0

	f := &ingestFixture{mock: mock, store: &memStorage{data: map[string][]byte{}}, confirm: &recordingConfirmer{}, mg: mg}
	f.svc = NewIngestService(db, repomanager.NewPostgresRepositoryManager(), f.store, f.confirm, hc, Mailgun{
		Key:              "key-123",
		MessageURLPrefix: mg.srv.URL + "/v3/domains/",
		EventsURL:        mg.srv.URL + "/v3/events",
		FromFallback:     "fallback@tguard.example",
		Host:             "https://tguard.example",
	}, logging.Discard())
	return f
}

func (f *ingestFixture) expectInsert(from string) {
	f.mock.ExpectBegin()
	f.mock.ExpectExec(insertQuery).
		WithArgs(sqlmock.AnyArg(), from, "forwarder@example.com", "Sealed", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
}

func TestIngest_Process(t *testing.T) {
	f := newIngestFixture(t)
	url := f.mg.add("msg-1", mailgunAttachment{ContentType: common.SealedContentType, Name: "x.bin"}, []byte("sealed-bytes"))
	f.expectInsert("alice@example.com")

	id, err := f.svc.Process(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())

	assert.True(t, common.IsMessageID(id), id)
	assert.Equal(t, []byte("sealed-bytes"), f.store.data[id])
	require.Len(t, f.confirm.got, 1)
	assert.Equal(t, notifier.Confirmation{
		ID:      id,
		To:      "forwarder@example.com",
		Subject: "Sealed",
		URL:     "https://tguard.example/download/" + id,
	}, f.confirm.got[0])
	f.mg.mu.Lock()
	defer f.mg.mu.Unlock()
	require.Len(t, f.mg.auth, 2)
	for _, a := range f.mg.auth {
		assert.Equal(t, "api:key-123", a)
	}
}

func TestIngest_ProcessMatchesAttachmentName(t *testing.T) {
	f := newIngestFixture(t)
	url := f.mg.add("msg-2", mailgunAttachment{ContentType: "application/octet-stream", Name: common.SealedFileName}, []byte("by-name"))

	f.mg.mu.Lock()
	m := f.mg.messages["/v3/domains/msg-2"]
	m.BodyPlain = "no forwarded header"
	f.mg.messages["/v3/domains/msg-2"] = m
	f.mg.mu.Unlock()
	f.expectInsert("fallback@tguard.example")

	id, err := f.svc.Process(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, []byte("by-name"), f.store.data[id])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestIngest_ProcessRejects(t *testing.T) {
	f := newIngestFixture(t)
	noSeal := f.mg.add("msg-3", mailgunAttachment{ContentType: "text/plain", Name: "notes.txt"}, []byte("plain"))

	tests := []struct {
		name string
		url  string
		want error
	}{
		{"foreign url", "https://evil.example/v3/domains/msg-3", ErrInvalidAPIURL},
		{"no sealed attachment", noSeal, ErrMissingData},
		{"unknown message", f.mg.srv.URL + "/v3/domains/missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := f.svc.Process(context.Background(), tt.url)
			require.Error(t, err)
			assert.Empty(t, id)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				require.ErrorIs(t, err, common.ErrorValidation)
			} else {
				assert.True(t, netx.IsStatus(err, http.StatusNotFound), err)
			}
		})
	}

	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.store.data)
	assert.Empty(t, f.confirm.got)
}

func TestIngest_ProcessStorageFailureRollsBack(t *testing.T) {
	f := newIngestFixture(t)
	url := f.mg.add("msg-4", mailgunAttachment{ContentType: common.SealedContentType}, []byte("x"))
	f.store.storeErr = errors.New("disk full")

	f.mock.ExpectBegin()
	f.mock.ExpectExec(insertQuery).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectRollback()

	id, err := f.svc.Process(context.Background(), url)
	require.ErrorContains(t, err, "disk full")
	assert.Empty(t, id)
	assert.Empty(t, f.confirm.got)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestIngest_ProcessConfirmFailureKeepsID(t *testing.T) {
	f := newIngestFixture(t)
	url := f.mg.add("msg-5", mailgunAttachment{ContentType: common.SealedContentType}, []byte("x"))
	f.confirm.err = errors.New("smtp down")
	f.expectInsert("alice@example.com")

	id, err := f.svc.Process(context.Background(), url)
	require.ErrorContains(t, err, "smtp down")
	assert.True(t, common.IsMessageID(id))
	assert.Contains(t, f.store.data, id)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestIngest_Poll(t *testing.T) {
	f := newIngestFixture(t)
	f.mg.add("good", mailgunAttachment{ContentType: common.SealedContentType}, []byte("x"))
	f.mg.add("bad", mailgunAttachment{ContentType: "text/plain"}, []byte("y"))
	f.expectInsert("alice@example.com")

	ids, err := f.svc.Poll(context.Background())
	require.ErrorIs(t, err, ErrMissingData)
	require.Len(t, ids, 1)
	assert.Contains(t, f.store.data, ids[0])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestExtractOriginalFrom(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"named", "x\r\nFrom: Alice <alice@example.com>\r\nTo: y", "alice@example.com", true},
		{"bare", "x\r\nFrom:  bob@example.com \r\n", "bob@example.com", true},
		{"first of two", "\r\nFrom: a@example.com\r\n\r\nFrom: b@example.com\r\n", "a@example.com", true},
		{"unterminated line", "x\r\nFrom: alice@example.com", "", false},
		{"unclosed bracket", "x\r\nFrom: Alice <alice@example.com\r\n", "", false},
		{"lf only", "x\nFrom: alice@example.com\n", "", false},
		{"absent", "hello", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractOriginalFrom(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
