package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"merchantama/internal/agent"
	"merchantama/internal/runlog"

	"github.com/google/uuid"
)

const runIDHeader = "X-Run-Id"

type chatRequest struct {
	MerchantID          int64  `json:"merchantId"`
	Message             string `json:"message"`
	ConversationHistory string `json:"conversationHistory"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MerchantID == 0 || req.Message == "" {
		writeError(w, http.StatusBadRequest, "merchantId and message are required")
		return
	}

	runID := uuid.NewString()
	w.Header().Set(runIDHeader, runID)
	ctx := agent.ContextWithRunID(r.Context(), runID)

	stream := isStreamRequest(r)
	slog.Info("chat request", "run_id", runID, "merchant_id", req.MerchantID, "stream", stream)

	entry := runlog.Entry{
		ID:         runID,
		MerchantID: req.MerchantID,
		Mode:       runlog.ModeSync,
		PromptLen:  len(req.ConversationHistory) + len(req.Message),
		StartedAt:  time.Now(),
	}
	if stream {
		entry.Mode = runlog.ModeStream
		s.chatStream(ctx, w, req, &entry)
	} else {
		s.chatSync(ctx, w, req, &entry)
	}

	entry.Duration = time.Since(entry.StartedAt)
	s.record(entry)
}

func (s *Server) chatSync(ctx context.Context, w http.ResponseWriter, req chatRequest, entry *runlog.Entry) {
	sess, err := s.newSession(req.MerchantID)
	if err != nil {
		s.fail(entry, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reply, err := sess.HandleMessage(ctx, req.Message, req.ConversationHistory)
	if err != nil {
		s.fail(entry, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entry.FinalOutput = reply.FinalOutput
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) chatStream(ctx context.Context, w http.ResponseWriter, req chatRequest, entry *runlog.Entry) {
	sw := NewStreamWriter(w)

	sess, err := s.newSession(req.MerchantID)
	if err != nil {
		s.fail(entry, err)
		sw.Fail(err)
		return
	}

	reply, err := sess.HandleMessageStream(ctx, req.Message, req.ConversationHistory)
	if err != nil {
		s.fail(entry, err)
		sw.Fail(err)
		return
	}

	for f, err := range reply.Fragments() {
		if err != nil {
			s.fail(entry, err)
			sw.Fail(err)
			return
		}
		b, err := f.Bytes()
		if err != nil {
			s.fail(entry, err)
			sw.Fail(err)
			return
		}
		if _, err := sw.Write(b); err != nil {
			slog.Warn("stream write failed", "run_id", entry.ID, "error", err)
			entry.Error = err.Error()
			return
		}
	}

	entry.FinalOutput = reply.Text()
	slog.Debug("stream complete", "run_id", entry.ID, "history_len", len(reply.UpdatedHistory()))
}

func (s *Server) fail(entry *runlog.Entry, err error) {
	entry.Error = err.Error()
	slog.Error("chat failed", "run_id", entry.ID, "merchant_id", entry.MerchantID, "error", err)
}

func (s *Server) record(entry runlog.Entry) {
	if s.runs == nil {
		return
	}
	// The request context may already be cancelled by a client disconnect.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.Record(ctx, entry); err != nil {
		slog.Warn("failed to record run", "run_id", entry.ID, "error", err)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run log disabled")
		return
	}

	merchantID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid merchant id")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	entries, err := s.runs.Recent(r.Context(), merchantID, limit)
	if err != nil {
		slog.Error("listing runs", "merchant_id", merchantID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func isStreamRequest(r *http.Request) bool {
	v := r.Header.Get("stream")
	return v == "true" || v == "1"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
