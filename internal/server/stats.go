package server

import (
	"encoding/json"
	"net/http"
)

type statsResponse struct {
	Documents      int            `json:"documents"`
	Chunks         int            `json:"chunks"`
	EmbeddedChunks int            `json:"embeddedChunks"`
	IndexSize      int            `json:"indexSize"`
	Files          map[string]int `json:"files"`
	CacheEntries   int            `json:"cacheEntries"`
	RunningJobs    []string       `json:"runningJobs"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docs, err := s.deps.Documents.Count(ctx)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	total, embedded, err := s.deps.Documents.CountChunks(ctx)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	byStatus, err := s.deps.Sources.CountByStatus(ctx)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	files := make(map[string]int, len(byStatus))
	for status, n := range byStatus {
		files[string(status)] = n
	}
	cacheEntries, _, err := s.deps.Cache.Stats(ctx)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	running := s.deps.Scheduler.Running()
	runningTypes := make([]string, 0, len(running))
	for jobType := range running {
		runningTypes = append(runningTypes, string(jobType))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statsResponse{
		Documents:      docs,
		Chunks:         total,
		EmbeddedChunks: embedded,
		IndexSize:      s.deps.Index.Count(),
		Files:          files,
		CacheEntries:   cacheEntries,
		RunningJobs:    runningTypes,
	})
}
