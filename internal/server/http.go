package server

import (
	"encoding/json"
	"net/http"
)

// Handler routes the websocket endpoint plus two plain HTTP endpoints:
// /latest returns the summary of the last frame and /healthz the tap counters.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleWebSocket)
	mux.HandleFunc("/latest", s.handleLatest)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.auth.OnConnect(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	latest := s.Latest()
	if latest == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, latest)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.GetStats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	_ = json.NewEncoder(w).Encode(v)
}
