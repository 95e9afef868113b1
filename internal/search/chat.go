package search

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-search/quarry/internal/ai"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/db"
)

const notFoundAnswer = "I could not find anything in the indexed documents relevant to that question."

// ChatRequest is one question with optional conversation history.
type ChatRequest struct {
	Query   string        `json:"query"`
	History []ChatMessage `json:"history"`
	UserID  string        `json:"userId"`
}

// StreamEvent is one NDJSON line of a chat response.
type StreamEvent struct {
	Type     string    `json:"type"`
	Content  string    `json:"content,omitempty"`
	Citation *Citation `json:"citation,omitempty"`
	Cached   bool      `json:"cached,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// EmitFunc delivers one stream event to the client.
type EmitFunc func(event StreamEvent) error

// Chat answers questions over the indexed corpus, streaming tokens as
// they arrive.
type Chat struct {
	engine    *Engine
	cache     *Cache
	db        *db.DB
	cfg       *config.Config
	providers ProviderSource
}

// NewChat creates a chat service.
func NewChat(engine *Engine, cache *Cache, database *db.DB, cfg *config.Config, providers ProviderSource) *Chat {
	return &Chat{engine: engine, cache: cache, db: database, cfg: cfg, providers: providers}
}

// Answer streams the response to req through emit. Standalone queries
// are served from the response cache when a fresh entry exists.
func (c *Chat) Answer(ctx context.Context, req ChatRequest, emit EmitFunc) error {
	started := time.Now()
	standalone := len(req.History) == 0

	if standalone {
		cached, err := c.cache.Get(ctx, req.Query)
		if err != nil {
			log.Printf("search: cache lookup failed: %v", err)
		} else if cached != nil {
			if err := emit(StreamEvent{Type: "text", Content: cached.Answer}); err != nil {
				return err
			}
			for i := range cached.Citations {
				if err := emit(StreamEvent{Type: "citation", Citation: &cached.Citations[i]}); err != nil {
					return err
				}
			}
			c.logQuery(req.UserID, req.Query, cached.Answer, started)
			return emit(StreamEvent{Type: "done", Cached: true})
		}
	}

	results, _, err := c.engine.Search(ctx, req.Query, c.cfg.Search.TopK)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		if err := emit(StreamEvent{Type: "text", Content: notFoundAnswer}); err != nil {
			return err
		}
		c.logQuery(req.UserID, req.Query, notFoundAnswer, started)
		return emit(StreamEvent{Type: "done"})
	}

	systemPrompt, err := c.db.GetSetting(SettingSystemPrompt, defaultSystemPrompt)
	if err != nil {
		log.Printf("search: reading system prompt: %v", err)
		systemPrompt = defaultSystemPrompt
	}

	provider, err := c.providers.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolving provider: %w", err)
	}

	var emitErr error
	resp, err := provider.Stream(ctx, ai.CompletionRequest{
		Messages: buildMessages(systemPrompt, results, req.History, req.Query),
	}, func(token string) {
		if emitErr == nil {
			emitErr = emit(StreamEvent{Type: "text", Content: token})
		}
	})
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}
	if emitErr != nil {
		return emitErr
	}

	citations := extractCitations(resp.Content, results)
	for i := range citations {
		if err := emit(StreamEvent{Type: "citation", Citation: &citations[i]}); err != nil {
			return err
		}
	}

	if standalone {
		if err := c.cache.Put(ctx, req.Query, resp.Content, citations); err != nil {
			log.Printf("search: caching answer: %v", err)
		}
	}
	c.logQuery(req.UserID, req.Query, resp.Content, started)
	return emit(StreamEvent{Type: "done"})
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations maps bracketed source numbers in the answer to the
// documents they refer to, in first-occurrence order. Numbers outside
// the source range are ignored.
func extractCitations(answer string, results []Result) []Citation {
	seen := make(map[int]bool)
	var citations []Citation
	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		var n int
		fmt.Sscanf(match[1], "%d", &n)
		if n < 1 || n > len(results) || seen[n] {
			continue
		}
		seen[n] = true
		citations = append(citations, Citation{
			Number:       n,
			DocumentID:   results[n-1].DocumentID,
			DocumentName: results[n-1].DocumentName,
		})
	}
	return citations
}

// logQuery records the exchange for usage analysis. Failures are
// logged, never surfaced to the caller.
func (c *Chat) logQuery(userID, query, response string, started time.Time) {
	_, err := c.db.Exec(
		`INSERT INTO query_log (id, user_id, query, response, response_time_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, query, response, time.Since(started).Milliseconds(), time.Now().UTC())
	if err != nil {
		log.Printf("search: writing query log: %v", err)
	}
}
