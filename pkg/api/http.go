package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"roundtable/pkg/ledger"
	"roundtable/pkg/personas"
	"roundtable/pkg/scheduler"
	"roundtable/pkg/store"
)

// Server wires the discussion engine into HTTP handlers. Dependencies are
// injected so tests can swap the completion-backed services for fakes.
type Server struct {
	Reg   *personas.Registry
	Sched *scheduler.Scheduler
	Led   *ledger.Ledger

	// Tick runs one autonomous actor pass; wired by the app so the
	// handler does not depend on the runner directly.
	Tick func(ctx context.Context) error

	// inflight guards one discussion run per topic at a time.
	inflight sync.Map
}

// Router returns the /v1 API router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	// topics
	v1.HandleFunc("/topics", s.createTopic).Methods(http.MethodPost)
	v1.HandleFunc("/topics", s.listTopics).Methods(http.MethodGet)
	v1.HandleFunc("/topics/{id}", s.getTopic).Methods(http.MethodGet)
	v1.HandleFunc("/topics/{id}", s.deleteTopic).Methods(http.MethodDelete)
	v1.HandleFunc("/topics/{id}/messages", s.listTopicMessages).Methods(http.MethodGet)

	// engagement
	v1.HandleFunc("/topics/{id}/vote", s.voteTopic).Methods(http.MethodPost)
	v1.HandleFunc("/messages/{id}/vote", s.voteMessage).Methods(http.MethodPost)
	v1.HandleFunc("/topics/{id}/favorite", s.favoriteTopic).Methods(http.MethodPost)
	v1.HandleFunc("/actors/{id}/favorites", s.listFavorites).Methods(http.MethodGet)

	// discussion stream
	v1.HandleFunc("/topics/{id}/discuss", s.discuss).Methods(http.MethodPost)

	// personas and autonomous trigger
	v1.HandleFunc("/personas", s.listPersonas).Methods(http.MethodGet)
	v1.HandleFunc("/autonomous/tick", s.autonomousTick).Methods(http.MethodPost)

	return r
}

// ReadyHandler reports store readiness for deployment probes.
func ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// HealthHandler is the liveness probe used by deployment systems and CI.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
