package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/standoffalign/internal/blocks"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	runs, totals := s.orchestrator.Totals().Snapshot()
	src := s.orchestrator.Store(blocks.Source)
	tgt := s.orchestrator.Store(blocks.Target)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"runs":        runs,
		"totals":      totals,
		"queue_depth": s.orchestrator.QueueDepth(),
		"run_latency": s.orchestrator.Latency().Snapshot(),
		"requests":    s.latency.Snapshot(),
		"stores": map[string]any{
			"source": map[string]int{"documents": src.Len(), "blocks": src.BlockCount()},
			"target": map[string]int{"documents": tgt.Len(), "blocks": tgt.BlockCount()},
		},
	})
}
