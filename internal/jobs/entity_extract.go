package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/quarry-search/quarry/internal/ai"
)

// promptContentLimit truncates chunk text sent to the extraction
// prompt. Long table chunks carry little extra signal past this point.
const promptContentLimit = 5000

const extractSystemPrompt = `You extract named entities from business documents.
Return a JSON object of the form:
{"entities":[{"canonical":"...","type":"...","variants":["..."]}]}
Types: organization, person, product, metric, period, location, term.
The canonical field is the full unambiguous name. Variants are other
spellings, abbreviations, or aliases that appear in the text. Return at
most 15 entities. Return {"entities":[]} if there are none.`

type extractedEntity struct {
	Canonical string   `json:"canonical"`
	Type      string   `json:"type"`
	Variants  []string `json:"variants"`
}

type extractResponse struct {
	Entities []extractedEntity `json:"entities"`
}

// runEntityExtract sends unprocessed chunks to the LLM and upserts the
// entities it names, plus co-occurrence edges between entities that
// appear in the same chunk. Chunks that yield unparseable output are
// marked processed anyway so they cannot poison every later run.
func (d Deps) runEntityExtract(ctx context.Context, rc *RunContext) error {
	provider, err := d.AI.Resolve(ctx)
	if err != nil {
		return err
	}

	chunks, err := d.Documents.UnextractedChunks(ctx, d.Config.Ingest.ExtractBatchSize)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		log.Printf("jobs: entity extraction found nothing to do")
		return nil
	}

	processed, failures := 0, 0
	for i, chunk := range chunks {
		if rc.IsCancelled() {
			break
		}

		entities, err := extractFromText(ctx, provider, chunk.Content)
		if err != nil {
			// Provider errors leave the chunk unprocessed for the next run.
			failures++
			log.Printf("jobs: extracting entities from chunk %s: %v", chunk.ID, err)
			if failures >= 5 && processed == 0 {
				return fmt.Errorf("entity extraction failing consistently, last error: %w", err)
			}
			continue
		}

		ids := make([]string, 0, len(entities))
		for _, e := range entities {
			stored, err := d.Entities.Upsert(ctx, e.Canonical, e.Type, e.Variants)
			if err != nil {
				log.Printf("jobs: upserting entity %q: %v", e.Canonical, err)
				continue
			}
			ids = append(ids, stored.ID)
		}
		for a := 0; a < len(ids); a++ {
			for b := a + 1; b < len(ids); b++ {
				if err := d.Entities.UpsertEdge(ctx, ids[a], ids[b], "co_occurs", 1); err != nil {
					log.Printf("jobs: upserting edge %s-%s: %v", ids[a], ids[b], err)
				}
			}
		}

		if err := d.Documents.MarkEntitiesExtracted(ctx, []string{chunk.ID}); err != nil {
			return err
		}
		processed++
		rc.Progress(ctx, i+1, len(chunks))
	}

	if processed > 0 {
		d.Expander.Invalidate()
	}
	log.Printf("jobs: entity extraction processed %d chunks (%d provider errors)", processed, failures)
	return nil
}

func extractFromText(ctx context.Context, provider ai.Provider, content string) ([]extractedEntity, error) {
	if len(content) > promptContentLimit {
		content = content[:promptContentLimit]
	}

	resp, err := provider.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: extractSystemPrompt},
			{Role: ai.RoleUser, Content: content},
		},
		MaxTokens:   1024,
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var parsed extractResponse
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); err != nil {
		// Unparseable output counts as "no entities", not a retryable error.
		return nil, nil
	}

	entities := parsed.Entities
	if len(entities) > 15 {
		entities = entities[:15]
	}
	return entities, nil
}

// extractJSONObject trims any prose a model wraps around its JSON.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
