package jobs

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var validTypes = map[Type]bool{
	TypeCrawl:         true,
	TypeIngest:        true,
	TypeEmbed:         true,
	TypeEntityExtract: true,
	TypeEntityCleanup: true,
	TypeIndexRebuild:  true,
	TypePipeline:      true,
}

// RegisterRoutes mounts the job API routes.
func RegisterRoutes(r chi.Router, store *Store, sched *Scheduler) {
	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", handleListJobs(store))
		r.Get("/running", handleRunning(sched))
		r.Post("/run/{type}", handleRun(sched))
		r.Get("/{id}", handleGetJob(store))
		r.Get("/{id}/children", handleChildren(store))
		r.Post("/{id}/cancel", handleCancel(sched))
		r.Get("/{id}/ws", handleProgressSocket(store))
	})
}

func handleListJobs(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}

		list, err := store.List(r.Context(), Type(r.URL.Query().Get("type")), limit)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []Job{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}
}

func handleRunning(sched *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sched.Running())
	}
}

func handleRun(sched *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobType := Type(chi.URLParam(r, "type"))
		if !validTypes[jobType] {
			http.Error(w, `{"error":"unknown job type"}`, http.StatusBadRequest)
			return
		}

		job, err := sched.Enqueue(r.Context(), jobType, "api", nil)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if job.Status == StatusSkipped {
			w.WriteHeader(http.StatusConflict)
		} else {
			w.WriteHeader(http.StatusAccepted)
		}
		json.NewEncoder(w).Encode(job)
	}
}

func handleGetJob(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if job == nil {
			http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(job)
	}
}

func handleChildren(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		children, err := store.Children(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if children == nil {
			children = []Job{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(children)
	}
}

func handleCancel(sched *Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sched.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP layer already applies CORS policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleProgressSocket streams a job's row over a websocket until it
// reaches a terminal status. Clients use it for live progress bars.
func handleProgressSocket(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			job, err := store.Get(r.Context(), id)
			if err != nil || job == nil {
				conn.WriteJSON(map[string]string{"error": "job not found"})
				return
			}
			if err := conn.WriteJSON(job); err != nil {
				return
			}
			if job.Status.Terminal() {
				return
			}

			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
	}
}
