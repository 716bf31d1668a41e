package writer

import "strings"

const (
	// baseWordsPerChapter is the target chapter size for a fast, directly
	// hosted provider (e.g. the Anthropic or OpenAI APIs).
	baseWordsPerChapter = 1800

	// minWordsPerChapter floors the chunk size so a long draft never gets
	// split into an unmanageable number of tiny chapters.
	minWordsPerChapter = 600

	// minChapters/maxChapters bound the recommended chapter count regardless
	// of totalWords, mirroring compaction's MinChunkRatio/BaseChunkRatio
	// floor-and-ceiling treatment of its chunk ratio.
	minChapters = 1
	maxChapters = 60
)

// speedFactor scales baseWordsPerChapter down for provider families known to
// run slower per request (higher latency, smaller effective throughput),
// so a stall is less likely before the next chapter lands. 1.0 means no
// adjustment.
var speedFactor = map[string]float64{
	"anthropic":     1.0,
	"openai":        1.0,
	"azure-openai":  0.85,
	"google":        0.85,
	"bedrock":       0.7,
	"openrouter":    0.7,
	"copilot-proxy": 0.7,
	"ollama":        0.4,
}

// ChunkPlan is the recommended split for a generation task of a given size.
type ChunkPlan struct {
	ChapterCount    int
	WordsPerChapter int
}

// SuggestChunkSize recommends a chapter count and words-per-chapter for a
// task of totalWords words, biased by providerID's family: slower families
// get smaller chapters so progress lands more often and a stall is caught
// before it burns through the whole task.
func SuggestChunkSize(totalWords int, providerID string) ChunkPlan {
	if totalWords <= 0 {
		return ChunkPlan{ChapterCount: minChapters, WordsPerChapter: 0}
	}

	wordsPerChapter := int(float64(baseWordsPerChapter) * providerSpeedFactor(providerID))
	if wordsPerChapter < minWordsPerChapter {
		wordsPerChapter = minWordsPerChapter
	}

	chapterCount := (totalWords + wordsPerChapter - 1) / wordsPerChapter
	if chapterCount < minChapters {
		chapterCount = minChapters
	}
	if chapterCount > maxChapters {
		chapterCount = maxChapters
		wordsPerChapter = (totalWords + chapterCount - 1) / chapterCount
	}

	return ChunkPlan{ChapterCount: chapterCount, WordsPerChapter: wordsPerChapter}
}

// providerSpeedFactor matches providerID against the known family prefixes,
// falling back to 1.0 (no adjustment) for an unrecognized provider.
func providerSpeedFactor(providerID string) float64 {
	id := strings.ToLower(providerID)
	for family, factor := range speedFactor {
		if strings.Contains(id, family) {
			return factor
		}
	}
	return 1.0
}
