package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/roboverse/bookqa-go/internal/agent"
	"github.com/roboverse/bookqa-go/internal/apperr"
	"github.com/roboverse/bookqa-go/internal/logging"
	"github.com/roboverse/bookqa-go/internal/store"
)

// historyContextDepth is how many prior exchanges are loaded from the store
// and handed to the agent per request.
const historyContextDepth = 5

// handleChat handles POST /chat: one full question/answer round trip with
// citations, confidence classification, and best-effort persistence.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.slots.TryAcquire() {
		s.metrics.chatRejectedTotal.Inc()
		writeRateLimited(w, r)
		return
	}
	defer s.slots.Release()

	start := time.Now()
	log := logging.FromContext(r.Context())

	req, err := parseChatRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	areq := s.prepareAgentRequest(r.Context(), req)
	res := s.agent.Answer(r.Context(), areq)

	// Selected-text mode has no retrieved content to fall back on, so a
	// generation failure is a plain dependency failure.
	if req.SelectedText != "" && res.GenerationErr != nil {
		log.Error("generation failed in selected-text mode", slog.Any("error", res.GenerationErr))
		s.finishChat(outcomeError, agent.ModeSelectedText, start)
		writeError(w, r, apperr.Wrap(res.GenerationErr, apperr.KindUnavailable, apperr.CodeServiceUnavailable,
			"answer generation is temporarily unavailable"))
		return
	}

	resp := s.assembleResponse(req, res, requestIDFromContext(r.Context()), time.Since(start))

	if res.GenerationErr != nil {
		log.Warn("generation failed, serving fallback",
			slog.String("mode", resp.Metadata.Mode),
			slog.Any("error", res.GenerationErr),
		)
	}

	if resp.Answer != nil && *resp.Answer != "" {
		s.persistExchange(r.Context(), req.SessionID, req.Query, *resp.Answer, resp.Sources, resp.Metadata)
	}

	outcome := outcomeOK
	if res.GenerationErr != nil {
		outcome = outcomeError
	}
	s.finishChat(outcome, resp.Metadata.Mode, start)

	writeJSON(w, http.StatusOK, resp)
}

// handleChatStream handles POST /chat/stream: the same round trip delivered
// as an SSE stream of JSON events (delta, tool_call, sources, done, error).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if !s.slots.TryAcquire() {
		s.metrics.chatRejectedTotal.Inc()
		writeRateLimited(w, r)
		return
	}
	defer s.slots.Release()

	start := time.Now()
	log := logging.FromContext(r.Context())

	req, err := parseChatRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apperr.New(apperr.KindInternal, apperr.CodeInternal, "streaming not supported"))
		return
	}

	// SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()

	areq := s.prepareAgentRequest(r.Context(), req)

	sse := &sseWriter{w: w, flusher: flusher}
	outcome := outcomeOK
	mode := ""

	for ev := range s.agent.AnswerStream(r.Context(), areq) {
		switch ev.Type {
		case agent.EventDone:
			resp := s.assembleStreamDone(req, ev, requestIDFromContext(r.Context()), time.Since(start))
			mode = resp.Metadata.Mode
			if resp.Answer != "" {
				s.persistExchange(r.Context(), req.SessionID, req.Query, resp.Answer, sourcesFor(req, ev), resp.Metadata)
			}
			sse.writeEvent(log, resp)
		case agent.EventError:
			outcome = outcomeError
			sse.writeEvent(log, streamErrorEvent{
				Type:      agent.EventError,
				Message:   ev.Message,
				RequestID: requestIDFromContext(r.Context()),
			})
		default:
			sse.writeEvent(log, ev)
		}
	}

	s.finishChat(outcome, mode, start)
}

// handleHistory handles GET /history/{session_id}.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.KindInvalidParameter, apperr.CodeInvalidParameter,
			"session_id is not a valid UUID"))
		return
	}

	limit, err := parseHistoryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, apperr.Wrap(err, apperr.KindUnavailable, apperr.CodeServiceUnavailable,
			"history is temporarily unavailable"))
		return
	}

	entries, err := s.store.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.KindUnavailable, apperr.CodeServiceUnavailable,
			"history is temporarily unavailable"))
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, historyResponse{
		SessionID: id.String(),
		Exchanges: entries,
		Count:     len(entries),
	})
}

// prepareAgentRequest resolves the session and prior context. Store failures
// here are logged and swallowed: history is an enhancement, not a
// prerequisite for answering.
func (s *Server) prepareAgentRequest(ctx context.Context, req *validatedChat) agent.Request {
	log := logging.FromContext(ctx)

	if _, err := s.store.GetOrCreateSession(ctx, req.SessionID); err != nil {
		log.Warn("session lookup failed, continuing without persistence",
			slog.String("session_id", req.SessionID.String()),
			slog.Any("error", err),
		)
	}

	areq := agent.Request{
		Query:           req.Query,
		SelectedText:    req.SelectedText,
		SourceURLPrefix: req.SourceURLPrefix,
		Section:         req.Section,
	}

	if req.SelectedText == "" {
		history, err := s.store.RecentContext(ctx, req.SessionID, historyContextDepth)
		if err != nil {
			log.Warn("history load failed, answering without context", slog.Any("error", err))
		} else {
			areq.History = history
		}
	}

	return areq
}

// assembleResponse applies the response-mode state machine to a completed
// agent result: selected_text is terminal; a generation failure with results
// forces retrieval_only; otherwise confidence classification decides.
func (s *Server) assembleResponse(req *validatedChat, res *agent.Result, reqID string, elapsed time.Duration) chatResponse {
	meta := responseMetadata{
		ElapsedMS: float64(elapsed.Microseconds()) / 1000,
		RequestID: reqID,
	}
	resp := chatResponse{SessionID: req.SessionID.String()}

	if req.SelectedText != "" {
		meta.Mode = agent.ModeSelectedText
		resp.Sources = []agent.SelectedTextCitation{agent.NewSelectedTextCitation(req.SelectedText)}
		answer := res.Answer
		resp.Answer = &answer
		resp.Metadata = meta
		return resp
	}

	low, mode := agent.Classify(res.ToolResults, s.agent.Thresholds())
	meta.LowConfidence = low
	meta.RetrievalCount = len(res.ToolResults)

	if res.GenerationErr != nil {
		if len(res.ToolResults) > 0 {
			mode = agent.ModeRetrievalOnly
		} else {
			mode = agent.ModeNoResults
		}
		resp.FallbackMessage = agent.FallbackAnswer(res.ToolResults, true)
	} else {
		answer := res.Answer
		resp.Answer = &answer
		resp.FallbackMessage = agent.FallbackAnswer(res.ToolResults, false)
	}
	meta.Mode = mode

	citations := agent.ExtractCitations(res.ToolResults)
	if citations == nil {
		citations = []agent.Citation{}
	}
	resp.Sources = citations
	resp.Metadata = meta
	return resp
}

// streamDoneEvent is the terminal event of a successful SSE stream.
type streamDoneEvent struct {
	Type     agent.EventType  `json:"type"`
	Answer   string           `json:"answer"`
	Metadata responseMetadata `json:"metadata"`
}

// streamErrorEvent is the terminal event of a failed SSE stream.
type streamErrorEvent struct {
	Type      agent.EventType `json:"type"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
}

// assembleStreamDone builds the done event's metadata from what the stream
// actually retrieved, mirroring assembleResponse for the success path.
func (s *Server) assembleStreamDone(req *validatedChat, ev agent.StreamEvent, reqID string, elapsed time.Duration) streamDoneEvent {
	meta := responseMetadata{
		ElapsedMS: float64(elapsed.Microseconds()) / 1000,
		RequestID: reqID,
	}

	if req.SelectedText != "" {
		meta.Mode = agent.ModeSelectedText
	} else {
		low, mode := agent.Classify(ev.ToolResults, s.agent.Thresholds())
		meta.LowConfidence = low
		meta.RetrievalCount = len(ev.ToolResults)
		meta.Mode = mode
	}

	return streamDoneEvent{Type: agent.EventDone, Answer: ev.Answer, Metadata: meta}
}

// sourcesFor derives the citations to persist for one completed stream.
func sourcesFor(req *validatedChat, ev agent.StreamEvent) any {
	if req.SelectedText != "" {
		return []agent.SelectedTextCitation{agent.NewSelectedTextCitation(req.SelectedText)}
	}
	return agent.ExtractCitations(ev.ToolResults)
}

// persistExchange appends a completed exchange to the store. Failures are
// logged and swallowed: the chat response must succeed even when history
// cannot be written.
func (s *Server) persistExchange(ctx context.Context, sessionID uuid.UUID, query, answer string, sources any, meta responseMetadata) {
	log := logging.FromContext(ctx)

	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		log.Warn("failed to encode sources for persistence", slog.Any("error", err))
		sourcesJSON = []byte("[]")
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		log.Warn("failed to encode metadata for persistence", slog.Any("error", err))
		metaJSON = []byte("{}")
	}

	if err := s.store.SaveConversation(ctx, sessionID, query, answer, sourcesJSON, metaJSON); err != nil {
		log.Warn("failed to persist conversation",
			slog.String("session_id", sessionID.String()),
			slog.Any("error", err),
		)
	}
}

// finishChat records the shared per-request chat metrics.
func (s *Server) finishChat(outcome, mode string, start time.Time) {
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	if mode != "" {
		s.metrics.chatModeTotal.WithLabelValues(mode).Inc()
	}
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// sseWriter emits line-based "data: <json>" SSE records.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// writeEvent marshals v and writes it as one SSE data frame, flushing
// immediately so the client sees events as they happen.
func (s *sseWriter) writeEvent(log *slog.Logger, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error("failed to encode stream event", slog.Any("error", err))
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		log.Warn("stream write failed", slog.Any("error", err))
		return
	}
	s.flusher.Flush()
}
