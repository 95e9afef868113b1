package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quarry-search/quarry/internal/ai"
	"github.com/quarry-search/quarry/internal/audit"
	"github.com/quarry-search/quarry/internal/auth"
	"github.com/quarry-search/quarry/internal/db"
	"github.com/quarry-search/quarry/internal/search"
	"github.com/quarry-search/quarry/internal/vectorindex"
)

var validProviders = map[string]bool{
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
}

// writableSettings are the keys operators may change at runtime.
var writableSettings = map[string]func(value string) bool{
	ai.SettingProvider:         func(v string) bool { return validProviders[v] },
	search.SettingSystemPrompt: func(v string) bool { return v != "" },
}

func registerSettingsRoutes(r chi.Router, database *db.DB, auditStore *audit.Store, ident auth.Identity) {
	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/", handleGetSettings(database))
		r.Put("/{key}", handlePutSetting(database, auditStore, ident))
	})
}

func handleGetSettings(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := database.GetSetting(ai.SettingProvider, "")
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		prompt, err := database.GetSetting(search.SettingSystemPrompt, "")
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		dimensions, err := database.GetSetting(vectorindex.SettingDimensions, "")
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			ai.SettingProvider:            provider,
			search.SettingSystemPrompt:    prompt,
			vectorindex.SettingDimensions: dimensions,
		})
	}
}

func handlePutSetting(database *db.DB, auditStore *audit.Store, ident auth.Identity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		validate, ok := writableSettings[key]
		if !ok {
			http.Error(w, `{"error":"unknown or read-only setting"}`, http.StatusNotFound)
			return
		}

		var body struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if !validate(body.Value) {
			http.Error(w, `{"error":"invalid value for `+key+`"}`, http.StatusBadRequest)
			return
		}

		if err := database.SetSetting(key, body.Value); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		auditStore.Record(r.Context(), ident.CurrentUser(r), audit.ActionSettingChanged, "setting:"+key, body.Value)
		w.WriteHeader(http.StatusNoContent)
	}
}
