package context

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codecoder/core/internal/causal"
	"github.com/codecoder/core/internal/memory"
	"github.com/codecoder/core/pkg/models"
)

// cacheTTL is the Context Builder's single-slot cache lifetime.
const cacheTTL = 30 * time.Second

// defaultIncludeDays is how many trailing daily notes Build renders when
// BuildRequest.IncludeDays is left at its zero value.
const defaultIncludeDays = 3

// maxRelevantFiles/maxRecentEdits/maxRecentDecisions/maxLearnedPatterns cap
// the corresponding AgentContextTechnical slices.
const (
	maxRelevantFiles    = 10
	maxRecentEdits      = 5
	maxRecentDecisions  = 5
	maxLearnedPatterns  = 5
	summaryTruncateAt   = 200
	decisionTitleLength = 80
)

// BuildRequest is the Context Builder's per-call input.
type BuildRequest struct {
	SessionID   string
	Task        string
	FilePaths   []string
	IncludeDays int
	SkipCache   bool
}

// RecentEditsSource supplies the most recent edit ledger entries for a
// session. A concrete implementation (backed by internal/storage, the same
// way the Memory Router and agent history are) is wired in by whatever
// assembles the process; leaving it nil just drops that section.
type RecentEditsSource interface {
	RecentEdits(ctx context.Context, sessionID string, limit int) ([]*models.EditRecord, error)
}

// Builder gathers the per-turn AgentContext: long-term/daily Markdown notes,
// style preferences, learned patterns, recent edits/decisions, and a
// relevance-ranked file list, under a short-TTL single-slot cache that the
// Memory Router invalidates on any write that could change the result.
type Builder struct {
	router      *memory.Router
	manager     *memory.Manager   // optional: nil disables relevant-file ranking
	recorder    *causal.Recorder  // optional: nil disables recent-decisions
	edits       RecentEditsSource // optional: nil disables recent-edits
	fingerprint string

	mu       sync.Mutex
	cacheKey string
	cached   *models.AgentContext
	cachedAt time.Time
}

// NewBuilder constructs a Builder and, if router is non-nil, registers an
// invalidation callback so any Router write that could affect the
// rendered context drops the cache immediately instead of waiting out the
// TTL.
func NewBuilder(router *memory.Router, manager *memory.Manager, recorder *causal.Recorder, edits RecentEditsSource, fingerprint string) *Builder {
	b := &Builder{
		router:      router,
		manager:     manager,
		recorder:    recorder,
		edits:       edits,
		fingerprint: fingerprint,
	}
	if router != nil {
		router.OnInvalidate(b.invalidate)
	}
	return b
}

func (b *Builder) invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cached = nil
	b.cacheKey = ""
}

// Build returns the AgentContext for req, serving the cached value when it
// is still fresh and req hashes to the same cache key. Sub-fetch failures
// never propagate: each missing section is left at its default and a
// warning is appended instead.
func (b *Builder) Build(ctx context.Context, req *BuildRequest) *models.AgentContext {
	if req == nil {
		req = &BuildRequest{}
	}
	includeDays := req.IncludeDays
	if includeDays <= 0 {
		includeDays = defaultIncludeDays
	}
	key := cacheKeyFor(req.Task, req.FilePaths, includeDays)

	if !req.SkipCache {
		if cached, ok := b.cachedFor(key); ok {
			return cached
		}
	}

	out := b.assemble(ctx, req, includeDays)

	b.mu.Lock()
	b.cacheKey = key
	b.cached = out
	b.cachedAt = time.Now()
	b.mu.Unlock()

	return out
}

func (b *Builder) cachedFor(key string) (*models.AgentContext, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached == nil || b.cacheKey != key {
		return nil, false
	}
	if time.Since(b.cachedAt) >= cacheTTL {
		return nil, false
	}
	return b.cached, true
}

func (b *Builder) assemble(ctx context.Context, req *BuildRequest, includeDays int) *models.AgentContext {
	technical := models.AgentContextTechnical{Fingerprint: b.fingerprint}
	var warnings []string

	markdown, mdWarnings := b.buildMarkdown(ctx, includeDays)
	warnings = append(warnings, mdWarnings...)

	if b.router != nil {
		if prefs, err := b.router.Preferences(ctx); err != nil {
			warnings = append(warnings, fmt.Sprintf("style preferences unavailable: %v", err))
		} else {
			technical.Style = styleMap(prefs)
		}
		if patterns, err := b.router.TopPatterns(ctx, maxLearnedPatterns); err != nil {
			warnings = append(warnings, fmt.Sprintf("learned patterns unavailable: %v", err))
		} else {
			technical.LearnedPatterns = patterns
		}
	} else {
		warnings = append(warnings, "memory router not configured")
	}

	// Knowledge/Semantic-Graph/Call-Graph counts have no implementation
	// yet; degrade to zero rather than guess.
	warnings = append(warnings, "endpoint/model/component counts unavailable: call graph not built")

	if b.manager != nil && strings.TrimSpace(req.Task) != "" {
		hreq := &memory.HierarchyRequest{Query: req.Task, Limit: maxRelevantFiles, SessionID: req.SessionID}
		resp, err := b.manager.SearchHierarchical(ctx, hreq)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("relevant files unavailable: %v", err))
		} else {
			technical.RelevantFiles = relevantFilesFrom(resp, maxRelevantFiles)
		}
	}

	if b.edits != nil && req.SessionID != "" {
		recs, err := b.edits.RecentEdits(ctx, req.SessionID, maxRecentEdits)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("recent edits unavailable: %v", err))
		} else {
			technical.RecentEdits = recentEditsFrom(recs, maxRecentEdits)
		}
	}

	if b.recorder != nil && req.SessionID != "" {
		chains := b.recorder.GetCausalChainsForSession(req.SessionID)
		technical.RecentDecisions = recentDecisionsFrom(chains, maxRecentDecisions)
	}

	technical.Warnings = warnings

	return &models.AgentContext{
		Technical: technical,
		Markdown:  markdown,
		Formatted: formatAgentContext(technical, markdown),
	}
}

// buildMarkdown renders the long-term notes for each Router category plus
// the last includeDays daily notes. A category that errors or is empty
// is silently skipped from the markdown but recorded as a warning on error.
func (b *Builder) buildMarkdown(ctx context.Context, includeDays int) (string, []string) {
	if b.router == nil {
		return "", nil
	}

	var warnings []string
	var sb strings.Builder

	for _, kind := range []memory.WriteKind{memory.WritePreference, memory.WriteDecision, memory.WriteLesson, memory.WriteContext} {
		md, err := b.router.LongTermMarkdown(ctx, kind)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s notes unavailable: %v", kind, err))
			continue
		}
		if strings.TrimSpace(md) == "" {
			continue
		}
		fmt.Fprintf(&sb, "# %s\n\n%s\n", headingForKind(kind), md)
	}

	daily, err := b.router.DailyMarkdown(ctx, includeDays)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("daily notes unavailable: %v", err))
	} else if strings.TrimSpace(daily) != "" {
		sb.WriteString("# Daily Notes\n\n")
		sb.WriteString(daily)
	}

	return sb.String(), warnings
}

func headingForKind(kind memory.WriteKind) string {
	switch kind {
	case memory.WritePreference:
		return "Preferences"
	case memory.WriteDecision:
		return "Decisions"
	case memory.WriteLesson:
		return "Lessons"
	case memory.WriteContext:
		return "Context Notes"
	default:
		return string(kind)
	}
}

func styleMap(prefs *models.Preferences) map[string]string {
	if prefs == nil {
		return nil
	}
	m := make(map[string]string, 4)
	if prefs.Indentation != "" {
		m["indentation"] = prefs.Indentation
	}
	if prefs.Quotes != "" {
		m["quotes"] = prefs.Quotes
	}
	if prefs.Semicolons != "" {
		m["semicolons"] = prefs.Semicolons
	}
	if prefs.TrailingCommas != "" {
		m["trailing_commas"] = prefs.TrailingCommas
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func relevantFilesFrom(resp *models.SearchResponse, limit int) []models.RelevantFile {
	if resp == nil {
		return nil
	}
	out := make([]models.RelevantFile, 0, limit)
	for _, res := range resp.Results {
		if len(out) >= limit || res == nil || res.Entry == nil {
			break
		}
		path := res.Entry.Metadata.Source
		if path == "" {
			path = res.Entry.ID
		}
		out = append(out, models.RelevantFile{
			Path:    path,
			Reason:  "semantic match",
			Summary: truncate(res.Entry.Content, summaryTruncateAt),
		})
	}
	return out
}

func recentEditsFrom(recs []*models.EditRecord, limit int) []models.RecentEdit {
	if len(recs) == 0 {
		return nil
	}
	sorted := append([]*models.EditRecord(nil), recs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })

	now := time.Now()
	out := make([]models.RecentEdit, 0, limit)
	for _, rec := range sorted {
		if rec == nil {
			continue
		}
		for _, change := range rec.Changes {
			if len(out) >= limit {
				return out
			}
			out = append(out, models.RecentEdit{
				Path:       change.Path,
				MinutesAgo: int(now.Sub(rec.Timestamp).Minutes()),
			})
		}
	}
	return out
}

func recentDecisionsFrom(chains []*models.CausalChain, limit int) []models.RecentDecision {
	if len(chains) == 0 {
		return nil
	}
	sorted := append([]*models.CausalChain(nil), chains...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Decision.Timestamp.After(sorted[j].Decision.Timestamp)
	})

	out := make([]models.RecentDecision, 0, limit)
	for _, chain := range sorted {
		if len(out) >= limit || chain.Decision == nil {
			break
		}
		actionType := "decision"
		if len(chain.Actions) > 0 && chain.Actions[0] != nil {
			actionType = string(chain.Actions[0].Type)
		}
		out = append(out, models.RecentDecision{
			Title: truncate(chain.Decision.Prompt, decisionTitleLength),
			Type:  actionType,
		})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formatAgentContext(technical models.AgentContextTechnical, markdown string) string {
	var sb strings.Builder
	sb.WriteString("## Project Context\n\n")
	if technical.Fingerprint != "" {
		fmt.Fprintf(&sb, "Fingerprint: %s\n\n", technical.Fingerprint)
	}
	if len(technical.Style) > 0 {
		sb.WriteString("Style:\n")
		keys := make([]string, 0, len(technical.Style))
		for k := range technical.Style {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, technical.Style[k])
		}
		sb.WriteString("\n")
	}
	if len(technical.LearnedPatterns) > 0 {
		sb.WriteString("Learned patterns:\n")
		for _, p := range technical.LearnedPatterns {
			fmt.Fprintf(&sb, "- %s/%s (confidence %.2f)\n", p.Category, p.Name, p.Confidence)
		}
		sb.WriteString("\n")
	}
	if len(technical.RelevantFiles) > 0 {
		sb.WriteString("Relevant files:\n")
		for _, f := range technical.RelevantFiles {
			fmt.Fprintf(&sb, "- %s: %s\n", f.Path, f.Reason)
		}
		sb.WriteString("\n")
	}
	if len(technical.RecentEdits) > 0 {
		sb.WriteString("Recent edits:\n")
		for _, e := range technical.RecentEdits {
			fmt.Fprintf(&sb, "- %s (%dm ago)\n", e.Path, e.MinutesAgo)
		}
		sb.WriteString("\n")
	}
	if len(technical.RecentDecisions) > 0 {
		sb.WriteString("Recent decisions:\n")
		for _, d := range technical.RecentDecisions {
			fmt.Fprintf(&sb, "- [%s] %s\n", d.Type, d.Title)
		}
		sb.WriteString("\n")
	}
	if len(technical.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range technical.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
		sb.WriteString("\n")
	}
	if markdown != "" {
		sb.WriteString(markdown)
	}
	return sb.String()
}

func cacheKeyFor(task string, filePaths []string, includeDays int) string {
	sorted := append([]string(nil), filePaths...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{0})
	for _, p := range sorted {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%d", includeDays)
	return hex.EncodeToString(h.Sum(nil))
}
