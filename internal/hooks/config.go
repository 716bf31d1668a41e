// Package hooks implements the Hook Dispatch Pipeline: a declarative,
// config-driven pre/post check around tool calls that can block or
// merely observe, without baking policy into the tools themselves.
package hooks

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Stage identifies which side of a tool call a hook entry applies to.
type Stage string

const (
	StagePreToolUse  Stage = "PreToolUse"
	StagePostToolUse Stage = "PostToolUse"
)

// ActionType is the kind of check an action performs.
type ActionType string

const (
	ActionScan       ActionType = "scan"
	ActionNotifyOnly ActionType = "notify_only"
	ActionCheckEnv   ActionType = "check_env"
)

// rawAction mirrors one element of an entry's "actions" array.
type rawAction struct {
	Type           ActionType `json:"type"`
	Patterns       []string   `json:"patterns,omitempty"`
	Block          bool       `json:"block,omitempty"`
	Message        string     `json:"message,omitempty"`
	Variable       string     `json:"variable,omitempty"`
	CommandPattern string     `json:"command_pattern,omitempty"`
}

// rawEntry mirrors one named entry under hooks.PreToolUse / hooks.PostToolUse.
type rawEntry struct {
	Pattern     string      `json:"pattern"`
	FilePattern string      `json:"file_pattern,omitempty"`
	Actions     []rawAction `json:"actions"`
}

// namedEntry pairs an entry with the JSON object key it was declared
// under, since entries fire in declaration order, not name order.
type namedEntry struct {
	name  string
	entry rawEntry
}

// stageEntries preserves the declared order of a hooks.json object's
// keys. encoding/json's map decoding does not preserve key order, so
// this walks the token stream by hand.
type stageEntries []namedEntry

func (s *stageEntries) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("hooks: expected object, got %v", tok)
	}

	var entries stageEntries
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("hooks: expected string key, got %v", keyTok)
		}
		var entry rawEntry
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("hooks: decode entry %q: %w", key, err)
		}
		entries = append(entries, namedEntry{name: key, entry: entry})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return err
	}
	*s = entries
	return nil
}

// rawConfig mirrors the top-level shape of a hooks.json file.
type rawConfig struct {
	Hooks    map[Stage]stageEntries `json:"hooks"`
	Settings struct {
		Enabled *bool `json:"enabled"`
	} `json:"settings"`
}

func parseConfig(data []byte) (*rawConfig, error) {
	var cfg rawConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fileEnabled reports whether a parsed config's settings.enabled allows
// its entries to run; an absent settings.enabled defaults to true.
func (c *rawConfig) fileEnabled() bool {
	if c.Settings.Enabled == nil {
		return true
	}
	return *c.Settings.Enabled
}
