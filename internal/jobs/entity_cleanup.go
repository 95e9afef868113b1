package jobs

import (
	"context"
	"log"
	"strings"
	"unicode"
)

// runEntityCleanup prunes the entity table. Entities seen exactly once
// with no edge to any other entity are deleted outright; on top of
// that, terms too short or purely numeric to ever expand a query
// usefully are removed, and variant lists polluted with duplicates or
// the canonical form itself are cleaned.
func (d Deps) runEntityCleanup(ctx context.Context, rc *RunContext) error {
	orphans, err := d.Entities.DeleteOrphans(ctx)
	if err != nil {
		return err
	}

	entities, err := d.Entities.ListByFrequency(ctx, 0)
	if err != nil {
		return err
	}
	if len(entities) == 0 && orphans == 0 {
		log.Printf("jobs: entity cleanup found nothing to do")
		return nil
	}

	var toDelete []string
	cleanedVariants := 0

	for i, e := range entities {
		if rc.IsCancelled() {
			return nil
		}

		if isNoiseEntity(e.Canonical) {
			toDelete = append(toDelete, e.ID)
			continue
		}

		pruned := pruneVariants(e.Canonical, e.Variants)
		if len(pruned) != len(e.Variants) {
			if err := d.Entities.SetVariants(ctx, e.ID, pruned); err != nil {
				return err
			}
			cleanedVariants++
		}

		if i%100 == 0 {
			rc.Progress(ctx, i, len(entities))
		}
	}

	if len(toDelete) > 0 {
		if err := d.Entities.Delete(ctx, toDelete); err != nil {
			return err
		}
	}
	if orphans > 0 || len(toDelete) > 0 || cleanedVariants > 0 {
		d.Expander.Invalidate()
	}

	log.Printf("jobs: entity cleanup removed %d orphans and %d noise entities, cleaned %d variant lists",
		orphans, len(toDelete), cleanedVariants)
	return nil
}

// isNoiseEntity flags canonical forms that would only ever hurt query
// expansion: too short, or bare numbers.
func isNoiseEntity(canonical string) bool {
	trimmed := strings.TrimSpace(canonical)
	if len(trimmed) < 3 {
		return true
	}
	for _, r := range trimmed {
		if !unicode.IsDigit(r) && !unicode.IsPunct(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// pruneVariants drops empty strings, duplicates, the canonical form,
// and noise terms from a variant list.
func pruneVariants(canonical string, variants []string) []string {
	seen := map[string]bool{strings.ToLower(canonical): true}
	pruned := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] || isNoiseEntity(v) {
			continue
		}
		seen[key] = true
		pruned = append(pruned, v)
	}
	return pruned
}
