package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codecoder/core/internal/storage"
	"github.com/codecoder/core/pkg/models"
)

// WriteKind is the closed set of Router write types.
type WriteKind string

const (
	WritePreference WriteKind = "preference"
	WriteDecision   WriteKind = "decision"
	WriteLesson     WriteKind = "lesson"
	WriteContext    WriteKind = "context"
	WriteDaily      WriteKind = "daily"
	WritePattern    WriteKind = "pattern"
)

// categoryForKind maps a write kind onto the long-term Markdown category it
// merges into. daily and pattern are routed separately (see Write).
var categoryForKind = map[WriteKind]string{
	WritePreference: "preferences",
	WriteDecision:   "decisions",
	WriteLesson:     "lessons",
	WriteContext:    "context",
}

// WriteRequest is one Router write. Content is the Markdown fragment merged
// into (or appended to) the destination category/daily note; Pattern is only
// read for WritePattern requests; Date (local) only for WriteDaily.
type WriteRequest struct {
	Kind    WriteKind
	Title   string
	Content string
	Date    time.Time
	Pattern *models.Pattern
}

// WriteResult pairs a WriteRequest with its outcome, by index, so callers can
// tell exactly which entries in a batch failed without aborting the rest.
type WriteResult struct {
	Request WriteRequest
	Err     error
}

// Router is the single public write entry point for every long-term memory
// store: it guarantees a write lands in both the human-readable Markdown
// category and the unified key-value store, and invalidates the Context
// Builder's cache on anything that could change what it renders.
type Router struct {
	store storage.Store

	catMu sync.Mutex
	locks map[string]*sync.Mutex

	invalidateMu sync.Mutex
	invalidate   []func()
}

// NewRouter wires a Router onto the shared path-addressed storage.Store. A
// nil store falls back to an in-memory one, sufficient for tests and
// single-process use.
func NewRouter(store storage.Store) *Router {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &Router{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// OnInvalidate registers a callback fired after any write that affects the
// Context Builder's cached output (preference, decision, lesson, context;
// not daily or pattern,).
func (r *Router) OnInvalidate(fn func()) {
	r.invalidateMu.Lock()
	defer r.invalidateMu.Unlock()
	r.invalidate = append(r.invalidate, fn)
}

func (r *Router) fireInvalidate() {
	r.invalidateMu.Lock()
	fns := append([]func(){}, r.invalidate...)
	r.invalidateMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// categoryLock returns the mutex guarding atomic read-modify-write of a
// single category key, creating it on first use.
func (r *Router) categoryLock(key string) *sync.Mutex {
	r.catMu.Lock()
	defer r.catMu.Unlock()
	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	return mu
}

// Write routes a batch of writes to their destination stores. Each entry
// resolves independently: one entry's failure never blocks or rolls back
// another's.
func (r *Router) Write(ctx context.Context, reqs []WriteRequest) []WriteResult {
	results := make([]WriteResult, len(reqs))
	var invalidated bool

	for i, req := range reqs {
		err := r.writeOne(ctx, req)
		results[i] = WriteResult{Request: req, Err: err}
		if err == nil && req.Kind != WriteDaily && req.Kind != WritePattern {
			invalidated = true
		}
	}

	if invalidated {
		r.fireInvalidate()
	}
	return results
}

func (r *Router) writeOne(ctx context.Context, req WriteRequest) error {
	switch req.Kind {
	case WritePreference, WriteDecision, WriteLesson, WriteContext:
		return r.writeLongTerm(ctx, req)
	case WriteDaily:
		return r.writeDaily(ctx, req)
	case WritePattern:
		return r.writePattern(ctx, req)
	default:
		return fmt.Errorf("memory: unknown write kind %q", req.Kind)
	}
}

func longTermPath(category string) []string {
	return []string{"memory", "longterm", category}
}

// writeLongTerm atomically merges req.Content into the category's Markdown
// note and upserts the same entry into the KV store, under the category's
// own lock so concurrent batch writes to the same category never interleave.
func (r *Router) writeLongTerm(ctx context.Context, req WriteRequest) error {
	category, ok := categoryForKind[req.Kind]
	if !ok {
		return fmt.Errorf("memory: no category mapping for kind %q", req.Kind)
	}
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("memory: %s write requires content", req.Kind)
	}

	path := longTermPath(category)
	mu := r.categoryLock(strings.Join(path, "/"))
	mu.Lock()
	defer mu.Unlock()

	note, err := r.readLongTermNote(ctx, path)
	if err != nil {
		return err
	}
	note.Entries = append(note.Entries, longTermEntry{
		Title:   req.Title,
		Content: req.Content,
		At:      time.Now(),
	})

	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return r.store.Write(ctx, &storage.Record{Path: path, Kind: "longterm", Data: data})
}

// longTermNote is the KV-backed representation of a long-term Markdown
// category; RenderMarkdown produces the human-readable form on demand
// instead of maintaining two copies that could drift.
type longTermNote struct {
	Entries []longTermEntry `json:"entries"`
}

type longTermEntry struct {
	Title   string    `json:"title,omitempty"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

func (r *Router) readLongTermNote(ctx context.Context, path []string) (*longTermNote, error) {
	rec, err := r.store.Read(ctx, path...)
	if err != nil {
		if err == storage.ErrNotFound {
			return &longTermNote{}, nil
		}
		return nil, err
	}
	var note longTermNote
	if err := json.Unmarshal(rec.Data, &note); err != nil {
		return nil, fmt.Errorf("decode long-term note %v: %w", path, err)
	}
	return &note, nil
}

// LongTermMarkdown renders a category's accumulated entries as Markdown, the
// form MEMORY.md / the Context Builder consume.
func (r *Router) LongTermMarkdown(ctx context.Context, kind WriteKind) (string, error) {
	category, ok := categoryForKind[kind]
	if !ok {
		return "", fmt.Errorf("memory: no category mapping for kind %q", kind)
	}
	note, err := r.readLongTermNote(ctx, longTermPath(category))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range note.Entries {
		if e.Title != "" {
			fmt.Fprintf(&b, "## %s\n\n", e.Title)
		}
		b.WriteString(e.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func dailyPath(date time.Time) []string {
	return []string{"memory", "daily", date.Format("2006-01-02")}
}

// writeDaily appends to the day's note (keyed by local date) and mirrors the
// same content into the KV store. Daily writes never invalidate the context
// cache.
func (r *Router) writeDaily(ctx context.Context, req WriteRequest) error {
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("memory: daily write requires content")
	}
	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	path := dailyPath(date)
	mu := r.categoryLock(strings.Join(path, "/"))
	mu.Lock()
	defer mu.Unlock()

	note, err := r.readLongTermNote(ctx, path)
	if err != nil {
		return err
	}
	note.Entries = append(note.Entries, longTermEntry{
		Title:   req.Title,
		Content: req.Content,
		At:      time.Now(),
	})
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return r.store.Write(ctx, &storage.Record{Path: path, Kind: "daily", Data: data})
}

// DailyMarkdown renders the last n daily notes (most recent last), skipping
// days with no entries.
func (r *Router) DailyMarkdown(ctx context.Context, days int) (string, error) {
	if days <= 0 {
		days = 1
	}
	var b strings.Builder
	for i := days - 1; i >= 0; i-- {
		date := time.Now().AddDate(0, 0, -i)
		note, err := r.readLongTermNote(ctx, dailyPath(date))
		if err != nil {
			return "", err
		}
		if len(note.Entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", date.Format("2006-01-02"))
		for _, e := range note.Entries {
			b.WriteString(e.Content)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func preferencesPath() []string {
	return []string{"memory", "preferences"}
}

// writePattern adds/increments a learned pattern in the shared Preferences
// record, under the preferences category lock. Pattern writes never
// invalidate the context cache.
func (r *Router) writePattern(ctx context.Context, req WriteRequest) error {
	if req.Pattern == nil || req.Pattern.Category == "" || req.Pattern.Name == "" {
		return fmt.Errorf("memory: pattern write requires category and name")
	}

	path := preferencesPath()
	mu := r.categoryLock(strings.Join(path, "/"))
	mu.Lock()
	defer mu.Unlock()

	prefs, err := r.readPreferences(ctx)
	if err != nil {
		return err
	}
	if prefs.Patterns == nil {
		prefs.Patterns = make(map[string]models.Pattern)
	}
	key := req.Pattern.Category + ":" + req.Pattern.Name
	existing, ok := prefs.Patterns[key]
	if !ok {
		existing = models.Pattern{Category: req.Pattern.Category, Name: req.Pattern.Name, Confidence: req.Pattern.Confidence}
	}
	existing.Frequency++
	if req.Pattern.Template != "" {
		existing.Template = req.Pattern.Template
	}
	if req.Pattern.Confidence > existing.Confidence {
		existing.Confidence = req.Pattern.Confidence
	}
	if len(req.Pattern.Files) > 0 {
		existing.Files = appendUniqueFiles(existing.Files, req.Pattern.Files)
	}
	prefs.Patterns[key] = existing

	return r.writePreferences(ctx, prefs)
}

func appendUniqueFiles(have, add []string) []string {
	seen := make(map[string]bool, len(have))
	for _, f := range have {
		seen[f] = true
	}
	for _, f := range add {
		if !seen[f] {
			have = append(have, f)
			seen[f] = true
		}
	}
	return have
}

func (r *Router) readPreferences(ctx context.Context) (*models.Preferences, error) {
	rec, err := r.store.Read(ctx, preferencesPath()...)
	if err != nil {
		if err == storage.ErrNotFound {
			return &models.Preferences{}, nil
		}
		return nil, err
	}
	var prefs models.Preferences
	if err := json.Unmarshal(rec.Data, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return &prefs, nil
}

func (r *Router) writePreferences(ctx context.Context, prefs *models.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return r.store.Write(ctx, &storage.Record{Path: preferencesPath(), Kind: "preferences", Data: data})
}

// Preferences returns the current Preferences record (style settings plus
// the learned pattern catalog).
func (r *Router) Preferences(ctx context.Context) (*models.Preferences, error) {
	return r.readPreferences(ctx)
}

// PromoteStylePreference upserts a single style dimension (indentation,
// quotes, semicolons, trailingCommas) once its StyleObservation crosses the
// promotion confidence threshold. It is a direct preferences
// write, not routed through WriteRequest, since it's a single scalar field
// rather than a merged Markdown entry.
func (r *Router) PromoteStylePreference(ctx context.Context, field, value string) error {
	path := preferencesPath()
	mu := r.categoryLock(strings.Join(path, "/"))
	mu.Lock()
	defer mu.Unlock()

	prefs, err := r.readPreferences(ctx)
	if err != nil {
		return err
	}
	switch field {
	case "indentation":
		prefs.Indentation = value
	case "quotes":
		prefs.Quotes = value
	case "semicolons":
		prefs.Semicolons = value
	case "trailingCommas":
		prefs.TrailingCommas = value
	default:
		return fmt.Errorf("memory: unknown style preference field %q", field)
	}
	return r.writePreferences(ctx, prefs)
}

// TopPatterns returns up to limit learned patterns, ordered by confidence
// descending, for the Context Builder's "learned patterns" section.
func (r *Router) TopPatterns(ctx context.Context, limit int) ([]models.PatternSummary, error) {
	prefs, err := r.readPreferences(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.PatternSummary, 0, len(prefs.Patterns))
	for _, p := range prefs.Patterns {
		summaries = append(summaries, models.PatternSummary{
			Category:   p.Category,
			Name:       p.Name,
			Confidence: p.Confidence,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Confidence > summaries[j].Confidence
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
