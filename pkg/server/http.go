package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/metrics"
)

// RequestIDHeader carries the identifier of an admin request.
const RequestIDHeader = "X-Request-ID"

// APDURequest is the body of POST /apdu.
type APDURequest struct {
	APDU string `json:"apdu"`
}

// APDUResponse is returned by POST /apdu.
type APDUResponse struct {
	Response string `json:"response"`
	Data     string `json:"data"`
	SW       string `json:"sw"`
	Meaning  string `json:"meaning"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	SecurityStatus string   `json:"security_status"`
	Protocols      []string `json:"protocols"`
	Sessions       int      `json:"sessions"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Handler returns the admin API:
//
//	POST /apdu     send one command APDU
//	POST /reset    reset the card
//	GET  /status   security status and registered protocols
//	GET  /metrics  Prometheus metrics
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(logRequests)

	r.Post("/apdu", s.handleAPDU)
	r.Post("/reset", s.handleReset)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.V(1).Infof("server: %s %s -> %d in %s (%s)",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), w.Header().Get(RequestIDHeader))
	})
}

func (s *Server) handleAPDU(w http.ResponseWriter, r *http.Request) {
	metrics.IncrementActiveSessions(TransportHTTP)
	defer metrics.DecrementActiveSessions(TransportHTTP)

	var req APDURequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.APDU) == "" {
		writeError(w, "apdu is required", http.StatusBadRequest)
		return
	}

	raw, err := s.Transmit(req.APDU)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := iso7816.ParseResponseAPDU(raw)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, APDUResponse{
		Response: strings.ToUpper(hex.EncodeToString(raw)),
		Data:     strings.ToUpper(hex.EncodeToString(resp.Data)),
		SW:       fmt.Sprintf("%04X", uint16(resp.Status)),
		Meaning:  resp.Status.Verbose(),
	}, http.StatusOK)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.proc.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var names []string
	for _, p := range s.proc.Protocols() {
		names = append(names, p.Name())
	}
	writeJSON(w, StatusResponse{
		SecurityStatus: s.proc.SecurityStatus(),
		Protocols:      names,
		Sessions:       s.Sessions(),
	}, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warningf("server: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, msg string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: msg, Code: statusCode}, statusCode)
}
