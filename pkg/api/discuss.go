package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"roundtable/pkg/auth"
	"roundtable/pkg/logger"
	"roundtable/pkg/models"
	"roundtable/pkg/scheduler"
	"roundtable/pkg/store"
	"roundtable/pkg/utils"
	"roundtable/pkg/validation"
)

type discussReq struct {
	// Message is the human's new contribution; optional for pure
	// "continue the discussion" triggers.
	Message *struct {
		AuthorName string `json:"author_name"`
		Content    string `json:"content"`
		ReplyTo    string `json:"reply_to"`
	} `json:"message"`
	// InvitedPersona pins the run to one persona.
	InvitedPersona string `json:"invited_persona"`
	// ReplyTo directs the run at one prior message without a new human
	// message attached.
	ReplyTo string `json:"reply_to"`
	// Seed pins the run's random source; used by clients replaying flows.
	Seed *int64 `json:"seed"`
}

// discuss starts a discussion run on a topic and streams it back as SSE.
// The stream is finite: it ends with a done or error event and is not
// restartable.
func (s *Server) discuss(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	topic, err := store.GetTopic(id)
	if err == pebble.ErrNotFound {
		utils.JSONError(w, http.StatusNotFound, "topic not found")
		return
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to load topic")
		return
	}
	if topic.Deleted {
		utils.JSONError(w, http.StatusNotFound, "topic not found")
		return
	}

	var req discussReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	fl, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if _, running := s.inflight.LoadOrStore(id, struct{}{}); running {
		utils.JSONError(w, http.StatusConflict, "discussion already running")
		return
	}
	defer s.inflight.Delete(id)

	history, err := store.ListMessages(id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	opts := scheduler.Options{
		TriggeredBy:         scheduler.TriggerHuman,
		ExplicitReplyTarget: req.ReplyTo,
		InvitedPersona:      req.InvitedPersona,
	}
	if req.Message != nil {
		m := models.Message{
			Topic:      id,
			Author:     auth.IdentityFromContext(r.Context()),
			Kind:       models.AuthorHuman,
			AuthorName: req.Message.AuthorName,
			Content:    req.Message.Content,
			ReplyTo:    req.Message.ReplyTo,
		}
		if err := validation.ValidateMessage(m); err != nil {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if m.ReplyTo != "" && !inHistory(history, m.ReplyTo) {
			utils.JSONError(w, http.StatusBadRequest, "reply_to does not reference a message in this topic")
			return
		}
		opts.UserMessage = &m
	}
	if req.ReplyTo != "" && !inHistory(history, req.ReplyTo) {
		utils.JSONError(w, http.StatusBadRequest, "reply_to does not reference a message in this topic")
		return
	}

	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	opts.Rand = rand.New(rand.NewSource(seed))

	prevStatus := topic.Status
	topic.Status = models.StatusDiscussing
	topic.UpdatedTS = time.Now().UTC().UnixNano()
	if err := store.SaveTopic(topic); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to update topic")
		return
	}

	ch, err := s.Sched.Run(r.Context(), topic, history, opts)
	if err != nil {
		topic.Status = prevStatus
		_ = store.SaveTopic(topic)
		if errors.Is(err, scheduler.ErrValidation) {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "failed to start discussion")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	for ev := range ch {
		writeEvent(w, fl, ev)
	}
	logger.Debug("discussion_stream_closed", "topic", id)
}

func inHistory(history []models.Message, id string) bool {
	for _, m := range history {
		if m.ID == id {
			return true
		}
	}
	return false
}
