package api

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/pebble"
	"github.com/gorilla/mux"

	"roundtable/pkg/auth"
	"roundtable/pkg/ledger"
	"roundtable/pkg/logger"
	"roundtable/pkg/store"
	"roundtable/pkg/telemetry"
	"roundtable/pkg/utils"
)

type voteReq struct {
	Vote string `json:"vote"`
	// Actor overrides the transport identity; used by trusted backends
	// voting on behalf of an account.
	Actor string `json:"actor,omitempty"`
}

func (s *Server) voteTopic(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := store.GetTopic(id); err != nil {
		if err == pebble.ErrNotFound {
			utils.JSONError(w, http.StatusNotFound, "topic not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "failed to load topic")
		return
	}
	s.applyVote(w, r, id)
}

func (s *Server) voteMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := store.GetMessage(id); err != nil {
		if err == pebble.ErrNotFound {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "failed to load message")
		return
	}
	s.applyVote(w, r, id)
}

// applyVote runs one toggle through the engagement ledger and returns the
// caller-visible state after the transition.
func (s *Server) applyVote(w http.ResponseWriter, r *http.Request, targetID string) {
	var req voteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var vote ledger.Vote
	switch req.Vote {
	case "up":
		vote = ledger.VoteUp
	case "down":
		vote = ledger.VoteDown
	default:
		utils.JSONError(w, http.StatusBadRequest, "vote must be \"up\" or \"down\"")
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = auth.IdentityFromContext(r.Context())
	}
	if actor == "" {
		utils.JSONError(w, http.StatusBadRequest, "actor identity is required")
		return
	}
	st := s.Led.ToggleVote(targetID, actor, vote)
	telemetry.VotesToggled.WithLabelValues(req.Vote).Inc()
	logger.Debug("vote_toggled", "target", targetID, "actor", actor, "vote", req.Vote)
	_ = utils.JSONWrite(w, http.StatusOK, st)
}

type favoriteReq struct {
	Actor string `json:"actor,omitempty"`
}

func (s *Server) favoriteTopic(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := store.GetTopic(id); err != nil {
		if err == pebble.ErrNotFound {
			utils.JSONError(w, http.StatusNotFound, "topic not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "failed to load topic")
		return
	}
	var req favoriteReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	actor := req.Actor
	if actor == "" {
		actor = auth.IdentityFromContext(r.Context())
	}
	if actor == "" {
		utils.JSONError(w, http.StatusBadRequest, "actor identity is required")
		return
	}
	on, err := ledger.ToggleFavorite(actor, id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to toggle favorite")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"favorited": on})
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	actor := mux.Vars(r)["id"]
	ids, err := store.ListFavorites(actor)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to list favorites")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"favorites": ids})
}
