package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/gorilla/mux"

	"roundtable/pkg/logger"
	"roundtable/pkg/models"
	"roundtable/pkg/store"
	"roundtable/pkg/utils"
	"roundtable/pkg/validation"
)

type createTopicReq struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CreatedBy   string   `json:"created_by"`
}

// createTopic accepts a human-authored topic. Generated topics go through
// the novelty pipeline instead and never hit this handler.
func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	var req createTopicReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	createdBy := models.CreatorKind(req.CreatedBy)
	if createdBy == "" {
		createdBy = models.CreatorHuman
	}
	now := time.Now().UTC().UnixNano()
	t := models.Topic{
		ID:          utils.GenTopicID(),
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		CreatedBy:   createdBy,
		Status:      models.StatusWaiting,
		CreatedTS:   now,
		UpdatedTS:   now,
	}
	if err := validation.ValidateTopic(t); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.SaveTopic(t); err != nil {
		logger.Error("create_topic_failed", "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "failed to save topic")
		return
	}
	logger.Info("topic_created", "topic", t.ID, "created_by", string(createdBy))
	_ = utils.JSONWrite(w, http.StatusCreated, t)
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	topics, err := store.ListTopics(limit)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list topics")
		return
	}
	if topics == nil {
		topics = []models.Topic{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) getTopic(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := store.GetTopic(id)
	if err == pebble.ErrNotFound {
		utils.JSONError(w, http.StatusNotFound, "topic not found")
		return
	}
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to load topic")
		return
	}
	if t.Deleted {
		utils.JSONError(w, http.StatusNotFound, "topic not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, t)
}

func (s *Server) deleteTopic(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := store.SoftDeleteTopic(id); err != nil {
		if err == pebble.ErrNotFound {
			utils.JSONError(w, http.StatusNotFound, "topic not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "failed to delete topic")
		return
	}
	logger.Info("topic_deleted", "topic", id)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) listTopicMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := store.GetTopic(id); err != nil {
		if err == pebble.ErrNotFound {
			utils.JSONError(w, http.StatusNotFound, "topic not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "failed to load topic")
		return
	}
	msgs, err := store.ListMessages(id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	out := msgs[:0]
	for _, m := range msgs {
		if m.Deleted {
			continue
		}
		out = append(out, m)
	}
	if out == nil {
		out = []models.Message{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"messages": out})
}
