package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/tguard/internal/common"
	"github.com/dmitrijs2005/tguard/internal/shared"
	"github.com/dmitrijs2005/tguard/internal/signing"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *HTTPServer) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var sub shared.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestSize)).Decode(&sub); err != nil {
		s.metrics.Submissions.WithLabelValues("bad_request").Inc()
		s.writeError(w, r, common.ErrorValidation)
		return
	}

	if !s.limiter.Allow(sub.From, s.now()) {
		s.metrics.Submissions.WithLabelValues("rate_limited").Inc()
		s.writeError(w, r, common.ErrorRateLimited)
		return
	}

	ids, err := s.messages.Submit(ctx, &sub)
	s.metrics.Stored.Add(float64(len(ids)))
	if err != nil {
		s.metrics.Submissions.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}

	s.metrics.Submissions.WithLabelValues("ok").Inc()
	s.logger.Info(ctx, "submission accepted", "from", sub.From, "recipients", len(ids))
	writeJSON(w, http.StatusOK, shared.SubmitResult{IDs: ids})
}

func (s *HTTPServer) download(w http.ResponseWriter, r *http.Request) {
	d, err := s.messages.Download(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.metrics.Downloads.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}
	s.metrics.Downloads.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, d)
}

func (s *HTTPServer) serveEnvelope(w http.ResponseWriter, r *http.Request) {
	data, err := s.messages.Serve(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) verify(w http.ResponseWriter, r *http.Request) {
	var req signing.VerifyRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2*signing.MaxSignatureLength)).Decode(&req)
	if err != nil || req.Signature == "" || len(req.Signature) > signing.MaxSignatureLength {
		s.writeError(w, r, common.ErrorValidation)
		return
	}

	d, err := s.verifier.Verify(r.Context(), req.Signature)
	if err != nil {
		if !errors.Is(err, signing.ErrSignatureMismatch) {
			s.writeError(w, r, err)
			return
		}
		s.metrics.Verified.WithLabelValues("invalid").Inc()
		s.logger.Debug(r.Context(), "signature rejected", "error", err)
		writeJSON(w, http.StatusOK, signing.VerifyResponse{Valid: false})
		return
	}

	s.metrics.Verified.WithLabelValues("valid").Inc()
	writeJSON(w, http.StatusOK, signing.VerifyResponse{
		Valid:      true,
		Statement:  d.Statement,
		Attributes: d.Attributes,
	})
}

// newEmail handles the store notification Mailgun posts for a new mail.
func (s *HTTPServer) newEmail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	url := r.PostFormValue("message-url")
	if url == "" {
		s.metrics.Ingested.WithLabelValues("bad_request").Inc()
		s.writeError(w, r, common.ErrorValidation)
		return
	}

	id, err := s.ingest.Process(r.Context(), url)
	if id != "" {
		s.metrics.Stored.Inc()
	}
	if err != nil {
		s.metrics.Ingested.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}
	s.metrics.Ingested.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, shared.SubmitResult{IDs: []string{id}})
}

func (s *HTTPServer) poll(w http.ResponseWriter, r *http.Request) {
	ids, err := s.ingest.Poll(r.Context())
	s.metrics.Stored.Add(float64(len(ids)))
	s.metrics.Ingested.WithLabelValues("ok").Add(float64(len(ids)))
	if err != nil {
		s.metrics.Ingested.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shared.SubmitResult{IDs: ids})
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrorInvalidAttribute),
		errors.Is(err, common.ErrorTooBig):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = common.ErrorInternal.Error()
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
