package search

import "sort"

// rrfK dampens the weight differences between nearby ranks.
const rrfK = 60

// fuse merges the vector and lexical rankings with reciprocal rank
// fusion. Each branch contributes 1/(k+rank) with zero-based ranks;
// a chunk present in both branches sums both contributions. The
// weighted combined score breaks ties.
func fuse(results map[string]*Result, vectorRank, lexicalRank []string) []Result {
	for rank, chunkID := range vectorRank {
		if r, ok := results[chunkID]; ok {
			r.RRFScore += 1.0 / float64(rrfK+rank)
		}
	}
	for rank, chunkID := range lexicalRank {
		if r, ok := results[chunkID]; ok {
			r.RRFScore += 1.0 / float64(rrfK+rank)
		}
	}

	fused := make([]Result, 0, len(results))
	for _, r := range results {
		fused = append(fused, *r)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].RRFScore != fused[j].RRFScore {
			return fused[i].RRFScore > fused[j].RRFScore
		}
		if fused[i].Combined != fused[j].Combined {
			return fused[i].Combined > fused[j].Combined
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})
	return fused
}
