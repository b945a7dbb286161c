package rest

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonaly/internal/app/assistant"
	"github.com/osa030/tonaly/internal/domain/chat"
)

type chatRequest struct {
	Messages []chat.Message `json:"messages" validate:"required,min=1,dive"`
}

// handleChat streams the assistant's reply using the data-stream line protocol.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "Assistant is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Messages are required")
		return
	}

	deltas, err := s.assistant.Reply(r.Context(), req.Messages)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyConversation) {
			writeError(w, http.StatusBadRequest, "Messages are required")
			return
		}
		zlog.Error().Msgf("failed to start chat: error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process chat request")
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	chunks := 0

	for delta, err := range deltas {
		if err != nil {
			if !started {
				zlog.Error().Msgf("chat completion failed: error=%v", err)
				writeError(w, http.StatusInternalServerError, "Failed to process chat request")
				return
			}
			zlog.Warn().Msgf("chat stream interrupted: chunks=%d error=%v", chunks, err)
			return
		}

		if !started {
			startStream(w)
			started = true
		}

		if err := assistant.WriteDelta(w, delta); err != nil {
			zlog.Debug().Msgf("client went away: chunks=%d error=%v", chunks, err)
			return
		}
		chunks++
		if flusher != nil {
			flusher.Flush()
		}
	}

	if !started {
		// empty reply
		startStream(w)
	}

	zlog.Debug().Msgf("chat stream finished: chunks=%d", chunks)
}

func startStream(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Vercel-AI-Data-Stream", "v1")
	w.WriteHeader(http.StatusOK)
}
