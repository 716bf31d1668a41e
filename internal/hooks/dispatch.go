package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codecoder/core/internal/bus"
	"github.com/codecoder/core/internal/cache"
)

// notifyDedupeTTL bounds how often the same hook/tool pair republishes a
// notify-only event to the bus; a tool called in a tight loop shouldn't
// flood subscribers with one identical event per call.
const notifyDedupeTTL = 5 * time.Second

// Result is the only shape the Runtime consumes from a dispatch pass.
type Result struct {
	Blocked  bool   `json:"blocked"`
	HookName string `json:"hookName,omitempty"`
	Message  string `json:"message,omitempty"`
}

type compiledAction struct {
	kind           ActionType
	scanPatterns   []*regexp.Regexp
	block          bool
	message        string
	variable       string
	commandPattern *regexp.Regexp
}

type compiledEntry struct {
	name        string
	enabled     bool
	pattern     *regexp.Regexp
	filePattern *regexp.Regexp
	actions     []compiledAction
}

// Dispatcher holds the compiled hooks.json ruleset for both stages and
// evaluates it against tool calls.
type Dispatcher struct {
	mu     sync.RWMutex
	stages map[Stage][]compiledEntry
	bus    *bus.Bus
	logger *slog.Logger
	paths  []string

	watcher     *fsnotify.Watcher
	watchCancel context.CancelFunc
	watchWg     sync.WaitGroup

	notifySeen *cache.DedupeCache
}

// Load reads and compiles hooks.json files from paths, in order.
// A missing file is silently skipped; a malformed file is logged and
// skipped, and loading continues with the remaining files — one bad
// config never disables the rest of the pipeline.
func Load(paths []string, b *bus.Bus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		stages:     make(map[Stage][]compiledEntry),
		bus:        b,
		logger:     logger.With("component", "hooks"),
		paths:      paths,
		notifySeen: cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: notifyDedupeTTL, MaxSize: 1024}),
	}
	d.stages = compileStages(paths, d.logger)
	return d
}

func compileStages(paths []string, logger *slog.Logger) map[Stage][]compiledEntry {
	stages := make(map[Stage][]compiledEntry)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("failed to read hooks config", "path", path, "error", err)
			}
			continue
		}
		cfg, err := parseConfig(data)
		if err != nil {
			logger.Warn("malformed hooks config, skipping", "path", path, "error", err)
			continue
		}
		enabled := cfg.fileEnabled()

		for stage, entries := range cfg.Hooks {
			for _, ne := range entries {
				ce, err := compileEntry(ne.name, ne.entry, enabled)
				if err != nil {
					logger.Warn("invalid hook entry, skipping", "name", ne.name, "path", path, "error", err)
					continue
				}
				stages[stage] = append(stages[stage], ce)
			}
		}
	}
	return stages
}

// Watch starts an fsnotify watch on the directories containing the
// dispatcher's hooks.json files and recompiles the ruleset, debounced,
// whenever one of them changes. Paths that don't exist yet are still
// watched via their parent directory so a file created later is picked
// up. Calling Watch twice is a no-op; Close stops the watch.
func (d *Dispatcher) Watch(ctx context.Context) error {
	d.mu.Lock()
	if d.watcher != nil {
		d.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("hooks: create watcher: %w", err)
	}
	dirs := make(map[string]struct{})
	for _, path := range d.paths {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			d.logger.Warn("failed to watch hooks directory", "dir", dir, "error", err)
		}
	}
	d.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	d.watchCancel = cancel
	d.watchWg.Add(1)
	d.mu.Unlock()

	go d.watchLoop(watchCtx, watcher)
	return nil
}

// Close stops the hot-reload watch, if running.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.watchCancel != nil {
		d.watchCancel()
		d.watchCancel = nil
	}
	watcher := d.watcher
	d.watcher = nil
	d.mu.Unlock()

	if watcher != nil {
		_ = watcher.Close()
	}
	d.watchWg.Wait()
	return nil
}

func (d *Dispatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer d.watchWg.Done()

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	reload := func() {
		stages := compileStages(d.paths, d.logger)
		d.mu.Lock()
		d.stages = stages
		d.mu.Unlock()
		d.logger.Info("reloaded hooks config")
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("hooks watch error", "error", err)
		}
	}
}

func compileEntry(name string, e rawEntry, enabled bool) (compiledEntry, error) {
	ce := compiledEntry{name: name, enabled: enabled}

	pattern, err := regexp.Compile(e.Pattern)
	if err != nil {
		return ce, fmt.Errorf("pattern %q: %w", e.Pattern, err)
	}
	ce.pattern = pattern

	if e.FilePattern != "" {
		filePattern, err := regexp.Compile(e.FilePattern)
		if err != nil {
			return ce, fmt.Errorf("file_pattern %q: %w", e.FilePattern, err)
		}
		ce.filePattern = filePattern
	}

	for _, a := range e.Actions {
		ca := compiledAction{kind: a.Type, block: a.Block, message: a.Message, variable: a.Variable}
		for _, p := range a.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return ce, fmt.Errorf("action pattern %q: %w", p, err)
			}
			ca.scanPatterns = append(ca.scanPatterns, re)
		}
		if a.CommandPattern != "" {
			re, err := regexp.Compile(a.CommandPattern)
			if err != nil {
				return ce, fmt.Errorf("command_pattern %q: %w", a.CommandPattern, err)
			}
			ca.commandPattern = re
		}
		ce.actions = append(ce.actions, ca)
	}
	return ce, nil
}

// PreToolUse evaluates the PreToolUse stage against a pending tool
// call. input is the value scan actions search (typically the tool's
// serialized input); filePath is the path extracted from that input,
// used to test file_pattern — empty if the tool has no path argument.
func (d *Dispatcher) PreToolUse(ctx context.Context, toolName, filePath, input string) Result {
	return d.run(ctx, StagePreToolUse, toolName, filePath, input)
}

// PostToolUse evaluates the PostToolUse stage against a completed tool
// call. output is the value scan actions search.
func (d *Dispatcher) PostToolUse(ctx context.Context, toolName, filePath, output string) Result {
	return d.run(ctx, StagePostToolUse, toolName, filePath, output)
}

func (d *Dispatcher) run(ctx context.Context, stage Stage, toolName, filePath, content string) (result Result) {
	d.mu.RLock()
	entries := d.stages[stage]
	d.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("hook action panicked, treating as unblocked", "stage", stage, "error", r)
			result = Result{}
		}
	}()

	for _, entry := range entries {
		if !entry.enabled {
			continue
		}
		if !entry.pattern.MatchString(toolName) {
			continue
		}
		if entry.filePattern != nil && !entry.filePattern.MatchString(filePath) {
			continue
		}

		for _, action := range entry.actions {
			switch action.kind {
			case ActionScan:
				if match, ok := firstScanMatch(action.scanPatterns, content); ok && action.block {
					return Result{Blocked: true, HookName: entry.name, Message: substituteMatch(action.message, match)}
				}
			case ActionNotifyOnly:
				d.notify(ctx, entry.name, stage, toolName, content)
			case ActionCheckEnv:
				if os.Getenv(action.variable) == "" && action.commandPattern != nil && action.commandPattern.MatchString(content) {
					return Result{Blocked: true, HookName: entry.name, Message: action.message}
				}
			}
		}
	}
	return Result{}
}

func firstScanMatch(patterns []*regexp.Regexp, content string) (string, bool) {
	for _, re := range patterns {
		if m := re.FindString(content); m != "" || re.MatchString(content) {
			return m, true
		}
	}
	return "", false
}

func substituteMatch(message, match string) string {
	return strings.ReplaceAll(message, "{match}", match)
}

func (d *Dispatcher) notify(ctx context.Context, hookName string, stage Stage, toolName, content string) {
	if d.bus == nil {
		return
	}
	if d.notifySeen != nil && d.notifySeen.Check(hookName+"|"+string(stage)+"|"+toolName) {
		return
	}
	d.bus.Publish(ctx, bus.NewEvent(bus.KindHookNotification, "", map[string]string{
		"hook_name": hookName,
		"stage":     string(stage),
		"tool_name": toolName,
	}))
}
