package entity

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the entity admin routes.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/entities", func(r chi.Router) {
		r.Get("/", handleListEntities(store))
		r.Get("/{id}", handleGetEntity(store))
		r.Put("/{id}/variants", handleSetVariants(store))
		r.Delete("/{id}", handleDeleteEntity(store))
	})
}

func handleListEntities(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		entities, err := store.ListByFrequency(r.Context(), limit)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if entities == nil {
			entities = []Entity{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entities)
	}
}

func handleGetEntity(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ent, err := store.GetByID(r.Context(), id)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if ent == nil {
			http.Error(w, `{"error":"entity not found"}`, http.StatusNotFound)
			return
		}

		related, err := store.Related(r.Context(), id, 20)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if related == nil {
			related = []Edge{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Entity  *Entity `json:"entity"`
			Related []Edge  `json:"related"`
		}{ent, related})
	}
}

func handleSetVariants(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Variants []string `json:"variants"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if err := store.SetVariants(r.Context(), chi.URLParam(r, "id"), body.Variants); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteEntity(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(r.Context(), []string{chi.URLParam(r, "id")}); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
