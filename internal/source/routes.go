package source

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the crawl source API routes.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/sources", func(r chi.Router) {
		r.Get("/", handleListSources(store))
		r.Post("/", handleCreateSource(store))
		r.Get("/stats", handleFileStats(store))
		r.Get("/{id}", handleGetSource(store))
		r.Put("/{id}", handleUpdateSource(store))
		r.Delete("/{id}", handleDeleteSource(store))
		r.Get("/{id}/files", handleListFiles(store))
	})
}

func handleListSources(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := store.ListSources(r.Context(), r.URL.Query().Get("enabled") == "true")
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if sources == nil {
			sources = []CrawlSource{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sources)
	}
}

func handleCreateSource(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var src CrawlSource
		if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if src.Path == "" {
			http.Error(w, `{"error":"path is required"}`, http.StatusBadRequest)
			return
		}
		if src.Name == "" {
			src.Name = src.Path
		}

		created, err := store.CreateSource(r.Context(), src)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(created)
	}
}

func handleGetSource(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, err := store.GetSource(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if src == nil {
			http.Error(w, `{"error":"source not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(src)
	}
}

func handleUpdateSource(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var src CrawlSource
		if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		src.ID = chi.URLParam(r, "id")

		if err := store.UpdateSource(r.Context(), src); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(src)
	}
}

func handleDeleteSource(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteSource(r.Context(), chi.URLParam(r, "id")); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListFiles(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}

		files, err := store.ListFiles(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if files == nil {
			files = []File{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(files)
	}
}

func handleFileStats(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := store.CountByStatus(r.Context())
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(counts)
	}
}
