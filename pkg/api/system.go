package api

import (
	"net/http"

	"roundtable/pkg/logger"
	"roundtable/pkg/utils"
)

func (s *Server) listPersonas(w http.ResponseWriter, _ *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"personas": s.Reg.All()})
}

// autonomousTick runs one autonomous actor pass on demand. The cron runner
// calls the same code path on its own schedule; this endpoint exists for
// operators and tests.
func (s *Server) autonomousTick(w http.ResponseWriter, r *http.Request) {
	if s.Tick == nil {
		utils.JSONError(w, http.StatusServiceUnavailable, "autonomous runner disabled")
		return
	}
	if err := s.Tick(r.Context()); err != nil {
		logger.Error("autonomous_tick_failed", "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "tick failed")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}
