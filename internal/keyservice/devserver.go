package keyservice

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/tguard/internal/attest"
	"github.com/dmitrijs2005/tguard/internal/ibe"
	"github.com/dmitrijs2005/tguard/internal/logging"
	"github.com/dmitrijs2005/tguard/internal/seal"
)

// DevServer is a stand-in key service for development and tests. It issues
// keys and attestations for any attribute to callers presenting its token;
// it proves nothing about who the caller is.
type DevServer struct {
	mk     *ibe.MasterKey
	issuer *attest.Issuer
	token  string
	log    logging.Logger
	rng    io.Reader
	router *mux.Router
}

// NewDevServer builds the handler. issuer may be nil, in which case the
// sign endpoint is not served.
func NewDevServer(mk *ibe.MasterKey, issuer *attest.Issuer, token string, log logging.Logger) *DevServer {
	s := &DevServer{mk: mk, issuer: issuer, token: token, log: log, rng: rand.Reader}

	r := mux.NewRouter()
	r.HandleFunc(ParametersPath, s.parameters).Methods(http.MethodGet)
	r.HandleFunc("/v2/request/key/{timestamp:[0-9]+}", s.authorized(s.key)).Methods(http.MethodPost)
	if issuer != nil {
		r.HandleFunc(SignPath, s.authorized(s.sign)).Methods(http.MethodPost)
	}
	s.router = r

	return s
}

func (s *DevServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *DevServer) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			s.log.Warn(r.Context(), "rejected key service request", "path", r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *DevServer) parameters(w http.ResponseWriter, r *http.Request) {
	p := Parameters{PublicKey: base64.StdEncoding.EncodeToString(s.mk.PublicKey().Marshal())}
	if s.issuer != nil {
		p.IssuerKey = base64.StdEncoding.EncodeToString(s.issuer.PublicKey())
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *DevServer) key(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseUint(mux.Vars(r)["timestamp"], 10, 64)
	if err != nil {
		http.Error(w, "bad timestamp", http.StatusBadRequest)
		return
	}

	var req KeyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil || req.Attribute.Identifier == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	id, err := seal.DeriveIdentity(req.Attribute, ts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	usk, err := ibe.Extract(s.mk, id, s.rng)
	if err != nil {
		s.log.Error(r.Context(), "extract user secret key", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.log.Info(r.Context(), "issued user secret key", "attribute", req.Attribute.Identifier, "timestamp", ts)
	writeJSON(w, http.StatusOK, KeyResponse{
		Status: StatusValid,
		Key:    base64.StdEncoding.EncodeToString(usk.Marshal()),
	})
}

func (s *DevServer) sign(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&req); err != nil || req.Statement == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	sig, err := s.issuer.Sign(r.Context(), req.Statement, req.Attributes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, SignResponse{Signature: sig})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
