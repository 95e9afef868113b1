package search

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quarry-search/quarry/internal/auth"
	"github.com/quarry-search/quarry/internal/entity"
)

// RegisterRoutes mounts the search, chat, and cache admin routes.
// chatLimiter, when non-nil, wraps only the chat endpoint: search is
// cheap, generation is not.
func RegisterRoutes(r chi.Router, engine *Engine, chat *Chat, cache *Cache, ident auth.Identity, chatLimiter func(http.Handler) http.Handler) {
	r.Post("/api/search", handleSearch(engine))
	if chatLimiter != nil {
		r.With(chatLimiter).Post("/api/chat", handleChat(chat, ident))
	} else {
		r.Post("/api/chat", handleChat(chat, ident))
	}
	r.Route("/api/cache", func(r chi.Router) {
		r.Get("/stats", handleCacheStats(cache))
		r.Post("/purge", handleCachePurge(cache))
	})
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

type searchResponse struct {
	Results  []Result       `json:"results"`
	Entities []entity.Match `json:"entities"`
}

func handleSearch(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
			return
		}

		results, matches, err := engine.Search(r.Context(), req.Query, req.TopK)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if results == nil {
			results = []Result{}
		}
		if matches == nil {
			matches = []entity.Match{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(searchResponse{Results: results, Entities: matches})
	}
}

func handleChat(chat *Chat, ident auth.Identity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
			return
		}
		if req.UserID == "" && ident != nil {
			req.UserID = ident.CurrentUser(r)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, _ := w.(http.Flusher)
		encoder := json.NewEncoder(w)

		emit := func(event StreamEvent) error {
			if err := encoder.Encode(event); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		}

		if err := chat.Answer(r.Context(), req, emit); err != nil {
			// Headers are already out; report the failure in-stream.
			emit(StreamEvent{Type: "error", Error: err.Error()})
		}
	}
}

func handleCacheStats(cache *Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, hits, err := cache.Stats(r.Context())
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"entries": entries, "totalHits": hits})
	}
}

func handleCachePurge(cache *Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cache.PurgeAll(r.Context()); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
