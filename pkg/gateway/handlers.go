package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/skagent/internal/tracing"
	"github.com/harun/skagent/pkg/events"
	"github.com/harun/skagent/pkg/runstate"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const maxRequestBytes = 1 << 20

// ErrorFrame is sent over the websocket when a request is rejected
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// handleRun runs to completion and answers with the result as JSON
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conversationID := s.conversationID(req, r)
	release, err := s.limiter.Acquire(conversationID)
	if err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	defer release()

	ctx, cancel := s.runContext(r)
	defer cancel()
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Str("conversation_id", conversationID).Msg("Run requested")

	run := s.cfg.Runner.Run(ctx, conversationID, req.Input, events.NewLogSink(logger, zerolog.DebugLevel))
	writeJSON(w, http.StatusOK, s.response(run))
}

// handleStreamRun streams events as SSE and finishes with a result event
func (s *Server) handleStreamRun(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conversationID := s.conversationID(req, r)
	release, err := s.limiter.Acquire(conversationID)
	if err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	defer release()

	sink, err := events.NewSSESink(w, s.cfg.WriteTimeout)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := s.runContext(r)
	defer cancel()
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Str("conversation_id", conversationID).Msg("Stream run requested")

	run := s.cfg.Runner.Run(ctx, conversationID, req.Input, sink)
	if err := sink.Send(ctx, "result", s.response(run)); err != nil {
		logger.Debug().Err(err).Msg("Failed to send result event")
	}
}

// handleWebSocket reads one request frame, streams the run's events and
// finishes with a result frame
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	sink := events.NewWebSocketSink(conn, s.cfg.WriteTimeout)
	conn.SetReadLimit(maxRequestBytes)

	var req RunRequest
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		s.rejectFrame(r.Context(), sink, "invalid request frame: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		s.rejectFrame(r.Context(), sink, errEmptyInput.Error())
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	conversationID := s.conversationID(req, r)
	release, err := s.limiter.Acquire(conversationID)
	if err != nil {
		s.rejectFrame(r.Context(), sink, err.Error())
		return
	}
	defer release()

	ctx, cancel := s.runContext(r)
	defer cancel()
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Str("conversation_id", conversationID).Msg("Websocket run requested")

	// The client closing its side cancels the run
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	run := s.cfg.Runner.Run(ctx, conversationID, req.Input, sink)
	if err := sink.WriteResult(ctx, s.response(run)); err != nil {
		logger.Debug().Err(err).Msg("Failed to send result frame")
		return
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(s.cfg.WriteTimeout))
}

func (s *Server) rejectFrame(ctx context.Context, sink *events.WebSocketSink, msg string) {
	if err := sink.WriteJSON(ctx, ErrorFrame{Type: "error", Error: msg}); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to send error frame")
	}
}

// runContext derives the run context from the request, tagging it with the
// caller's trace id when one is supplied
func (s *Server) runContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := r.Context()
	if traceID := strings.TrimSpace(r.Header.Get(TraceHeader)); traceID != "" {
		ctx = tracing.WithTraceID(ctx, traceID)
	}
	ctx = tracing.NewRequestContext(ctx)
	if s.cfg.RunTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// conversationID picks the body value, then the header, then a new id
func (s *Server) conversationID(req RunRequest, r *http.Request) string {
	if id := strings.TrimSpace(req.ConversationID); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(ConversationHeader)); id != "" {
		return id
	}
	id, err := gonanoid.New()
	if err != nil {
		return tracing.NewTraceID()
	}
	return id
}

func (s *Server) response(run *runstate.RunState) RunResponse {
	return RunResponse{
		Result:          run.Result(),
		ProfileSnapshot: s.cfg.Profile(run),
	}
}

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (RunRequest, error) {
	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		return RunRequest{}, errors.New("invalid request body: " + err.Error())
	}
	if strings.TrimSpace(req.Input) == "" {
		return RunRequest{}, errEmptyInput
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
