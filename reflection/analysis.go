package reflection

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mindwell-ai/memcore/types"
)

// analyze runs the depth-gated analysis stages over the gathered sample.
// Insights are produced in a fixed generation order: patterns, temporal,
// topics, deep, metacognitive. The caller truncates to the depth cap.
func (e *Engine) analyze(chunks []types.Chunk, depth Depth, focusAreas []string) []string {
	if len(chunks) == 0 {
		return []string{"no memories in scope for this pass"}
	}

	insights := e.analyzePatterns(chunks)
	insights = append(insights, e.analyzeTemporal(chunks)...)
	insights = append(insights, e.analyzeTopics(chunks, focusAreas)...)

	if depth == DepthMedium || depth == DepthDeep {
		insights = append(insights, e.analyzeDeep(chunks)...)
	}
	if depth == DepthDeep {
		insights = append(insights, e.analyzeMetacognitive(chunks)...)
	}
	return insights
}

// analyzePatterns mines source and bucket frequency.
func (e *Engine) analyzePatterns(chunks []types.Chunk) []string {
	sources := make(map[string]int)
	buckets := make(map[string]int)
	for _, c := range chunks {
		sources[c.Source]++
		buckets[c.Bucket]++
	}

	topSource, topCount := "", 0
	for src, n := range sources {
		if n > topCount || (n == topCount && src < topSource) {
			topSource, topCount = src, n
		}
	}

	insights := []string{
		fmt.Sprintf("memories span %d sources across %d buckets", len(sources), len(buckets)),
	}
	if topCount > 1 {
		insights = append(insights, fmt.Sprintf("source %q dominates with %d of %d memories", topSource, topCount, len(chunks)))
	}
	return insights
}

// analyzeTemporal compares the last 24 hours against the last 7 days.
func (e *Engine) analyzeTemporal(chunks []types.Chunk) []string {
	now := e.config.Now()
	day, week := 0, 0
	for _, c := range chunks {
		age := now.Sub(c.CreatedAt)
		if age <= 24*time.Hour {
			day++
		}
		if age <= 7*24*time.Hour {
			week++
		}
	}
	return []string{
		fmt.Sprintf("%d memories formed in the last 24h, %d in the last 7d", day, week),
	}
}

// analyzeTopics mines keyword frequency (tokens longer than 3 characters,
// top 5) plus caller-supplied focus-area substring matches.
func (e *Engine) analyzeTopics(chunks []types.Chunk, focusAreas []string) []string {
	freq := make(map[string]int)
	for _, c := range chunks {
		for _, tok := range strings.Fields(strings.ToLower(c.Text)) {
			if len(tok) > 3 {
				freq[tok]++
			}
		}
	}

	type kv struct {
		token string
		count int
	}
	ranked := make([]kv, 0, len(freq))
	for tok, n := range freq {
		ranked = append(ranked, kv{tok, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].token < ranked[j].token
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}

	insights := make([]string, 0, 1+len(focusAreas))
	if len(ranked) > 0 {
		tokens := make([]string, 0, len(ranked))
		for _, r := range ranked {
			tokens = append(tokens, r.token)
		}
		insights = append(insights, fmt.Sprintf("recurring topics: %s", strings.Join(tokens, ", ")))
	}

	for _, area := range focusAreas {
		needle := strings.ToLower(area)
		matches := 0
		for _, c := range chunks {
			if strings.Contains(strings.ToLower(c.Text), needle) {
				matches++
			}
		}
		if matches > 0 {
			insights = append(insights, fmt.Sprintf("focus area %q appears in %d memories", area, matches))
		}
	}
	return insights
}

// analyzeDeep reports the most-accessed chunk and the decay-resistant
// population (score > 1.5 with more than 2 accesses).
func (e *Engine) analyzeDeep(chunks []types.Chunk) []string {
	mostAccessed := chunks[0]
	resistant := 0
	for _, c := range chunks {
		if c.AccessCount > mostAccessed.AccessCount {
			mostAccessed = c
		}
		if c.Score > 1.5 && c.AccessCount > 2 {
			resistant++
		}
	}

	insights := []string{
		fmt.Sprintf("most accessed memory is %q (%d accesses, score %.2f)",
			truncateText(mostAccessed.Text, 48), mostAccessed.AccessCount, mostAccessed.Score),
	}
	if resistant > 0 {
		insights = append(insights, fmt.Sprintf("%d memories are decay-resistant", resistant))
	}
	return insights
}

// analyzeMetacognitive estimates how much of the sample reflects
// learning activity and how many memories have consolidated.
func (e *Engine) analyzeMetacognitive(chunks []types.Chunk) []string {
	learning, consolidated := 0, 0
	for _, c := range chunks {
		if isLearningChunk(c) {
			learning++
		}
		if c.Score > 2.0 && c.AccessCount > 3 {
			consolidated++
		}
	}

	fraction := float64(learning) / float64(len(chunks))
	insights := []string{
		fmt.Sprintf("%.0f%% of the sample reflects learning activity", fraction*100),
	}
	if consolidated > 0 {
		insights = append(insights, fmt.Sprintf("%d memories have consolidated through repeated access", consolidated))
	}
	return insights
}

// recommend derives up to maxRecommendations strings from simple
// thresholds over the sample.
func (e *Engine) recommend(chunks []types.Chunk) []string {
	recommendations := make([]string, 0, maxRecommendations)

	lowScore := 0
	sources := make(map[string]struct{})
	learning := false
	for _, c := range chunks {
		if c.Score < 0.5 {
			lowScore++
		}
		sources[c.Source] = struct{}{}
		if isLearningChunk(c) {
			learning = true
		}
	}

	if lowScore > 10 {
		recommendations = append(recommendations,
			fmt.Sprintf("%d memories are fading; review and boost the ones worth keeping", lowScore))
	}
	if learning {
		recommendations = append(recommendations,
			"learning activity detected; continue active recall to reinforce it")
	}
	if len(chunks) > 0 && len(sources) < 3 {
		recommendations = append(recommendations,
			"memories come from few sources; diversify inputs for broader context")
	}

	if len(recommendations) > maxRecommendations {
		recommendations = recommendations[:maxRecommendations]
	}
	return recommendations
}

// isLearningChunk reports whether a chunk's source, metadata, or text
// indicates learning activity.
func isLearningChunk(c types.Chunk) bool {
	if strings.Contains(strings.ToLower(c.Source), "learn") {
		return true
	}
	if v, ok := c.Metadata["learning"]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	return strings.Contains(strings.ToLower(c.Text), "learn")
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
