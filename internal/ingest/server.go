package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"auctionscan/internal/metrics"
	"auctionscan/internal/model"
	"auctionscan/internal/pipeline"
)

// Payload is one webhook delivery: a batch of logs, optionally with a
// payload-level chain id applied to logs that omit their own.
type Payload struct {
	ChainID uint64         `json:"chain_id,omitempty"`
	Logs    []model.RawLog `json:"logs"`
}

// Response reports how the batch resolved. Per-log failures are recorded
// server-side and counted here; the delivery itself still succeeds, so the
// sender never redelivers a batch over one bad log.
type Response struct {
	Received int `json:"received"`
	pipeline.Summary
}

// Server is the push ingestion surface: webhook deliveries in, health and
// metrics out.
type Server struct {
	pipe   *pipeline.Pipeline
	logger *zap.Logger
	mux    *http.ServeMux
}

func NewServer(pipe *pipeline.Pipeline, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{pipe: pipe, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("/v1/logs", s.handleLogs)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// Handler returns the HTTP handler for the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.reply(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.reply(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid payload: %v", err)})
		return
	}

	for i := range payload.Logs {
		if payload.Logs[i].ChainID == 0 {
			payload.Logs[i].ChainID = payload.ChainID
		}
	}

	summary, err := s.pipe.ProcessBatch(r.Context(), payload.Logs, model.SourcePush)
	if err != nil {
		s.logger.Error("webhook batch aborted", zap.Error(err))
		s.reply(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
		return
	}

	s.logger.Info("webhook batch processed",
		zap.Int("received", len(payload.Logs)),
		zap.Int("applied", summary.Applied),
		zap.Int("ignored", summary.Ignored),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	s.reply(w, http.StatusOK, Response{Received: len(payload.Logs), Summary: summary})
}

func (s *Server) reply(w http.ResponseWriter, code int, body interface{}) {
	metrics.WebhookRequests.WithLabelValues(fmt.Sprintf("%dxx", code/100)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}
