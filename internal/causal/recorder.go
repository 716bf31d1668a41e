// Package causal records the Decision -> Action -> Outcome graph produced by
// an agent run (spec §4.9) and answers queries over it. Recording is
// in-process and append-only; it is not a durable store.
package causal

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/codecoder/core/pkg/models"
)

// Recorder accumulates DecisionNodes, ActionNodes, OutcomeNodes and the
// derived edges linking them, grouped by session.
type Recorder struct {
	mu sync.RWMutex

	decisions map[string]*models.DecisionNode
	actions   map[string]*models.ActionNode
	outcomes  map[string]*models.OutcomeNode

	// outcomeByAction maps an ActionNode ID to its (at most one) outcome.
	outcomeByAction map[string]string

	// actionsByDecision preserves recording order per decision.
	actionsByDecision map[string][]string

	// sessionDecisions preserves recording order per session.
	sessionDecisions map[string][]string
	decisionSession  map[string]string
}

// NewRecorder creates an empty causal graph recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		decisions:         make(map[string]*models.DecisionNode),
		actions:           make(map[string]*models.ActionNode),
		outcomes:          make(map[string]*models.OutcomeNode),
		outcomeByAction:   make(map[string]string),
		actionsByDecision: make(map[string][]string),
		sessionDecisions:  make(map[string][]string),
		decisionSession:   make(map[string]string),
	}
}

// RecordDecision appends a new DecisionNode and returns its ID.
func (r *Recorder) RecordDecision(sessionID, agentID, prompt, reasoning string, confidence float64) *models.DecisionNode {
	node := &models.DecisionNode{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		AgentID:    agentID,
		Prompt:     prompt,
		Reasoning:  reasoning,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[node.ID] = node
	r.sessionDecisions[sessionID] = append(r.sessionDecisions[sessionID], node.ID)
	r.decisionSession[node.ID] = sessionID
	return node
}

// RecordAction appends a new ActionNode under decisionID and returns its ID.
// decisionID must name an existing DecisionNode; an empty or unknown ID
// still records the action, ungrouped, so a caller never loses data because
// decision tracking was skipped upstream.
func (r *Recorder) RecordAction(decisionID string, actionType models.ActionType, description, input, output string, duration time.Duration) *models.ActionNode {
	node := &models.ActionNode{
		ID:          uuid.NewString(),
		DecisionID:  decisionID,
		Type:        actionType,
		Description: description,
		Input:       input,
		Output:      output,
		Duration:    duration,
		Timestamp:   time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[node.ID] = node
	if decisionID != "" {
		r.actionsByDecision[decisionID] = append(r.actionsByDecision[decisionID], node.ID)
	}
	return node
}

// RecordOutcome appends the (at most one) OutcomeNode for actionID.
// A second call for the same actionID replaces the prior outcome, matching
// the "at most one" invariant on ActionNode -> OutcomeNode.
func (r *Recorder) RecordOutcome(actionID string, status models.OutcomeStatus, description string, metrics map[string]float64, feedback string) *models.OutcomeNode {
	node := &models.OutcomeNode{
		ID:          uuid.NewString(),
		ActionID:    actionID,
		Status:      status,
		Description: description,
		Metrics:     metrics,
		Feedback:    feedback,
		Timestamp:   time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[node.ID] = node
	r.outcomeByAction[actionID] = node.ID
	return node
}

// GetCausalChain assembles the decision, its actions, and their outcomes
// into a single CausalChain with derived edges.
func (r *Recorder) GetCausalChain(decisionID string) (*models.CausalChain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decision, ok := r.decisions[decisionID]
	if !ok {
		return nil, false
	}

	actionIDs := r.actionsByDecision[decisionID]
	actions := make([]*models.ActionNode, 0, len(actionIDs))
	outcomes := make([]*models.OutcomeNode, 0, len(actionIDs))
	edges := make([]*models.CausalEdge, 0, len(actionIDs)*2)

	for _, actionID := range actionIDs {
		action := r.actions[actionID]
		if action == nil {
			continue
		}
		actions = append(actions, action)
		edges = append(edges, &models.CausalEdge{
			Source:       decision.ID,
			Target:       action.ID,
			Relationship: models.RelCauses,
			Weight:       1,
		})

		if outcomeID, ok := r.outcomeByAction[actionID]; ok {
			if outcome := r.outcomes[outcomeID]; outcome != nil {
				outcomes = append(outcomes, outcome)
				edges = append(edges, &models.CausalEdge{
					Source:       action.ID,
					Target:       outcome.ID,
					Relationship: models.RelResultsIn,
					Weight:       1,
				})
			}
		}
	}

	return &models.CausalChain{
		Decision: decision,
		Actions:  actions,
		Outcomes: outcomes,
		Edges:    edges,
	}, true
}

// GetCausalChainsForSession returns every causal chain recorded for a
// session, in recording order.
func (r *Recorder) GetCausalChainsForSession(sessionID string) []*models.CausalChain {
	r.mu.RLock()
	decisionIDs := append([]string(nil), r.sessionDecisions[sessionID]...)
	r.mu.RUnlock()

	chains := make([]*models.CausalChain, 0, len(decisionIDs))
	for _, id := range decisionIDs {
		if chain, ok := r.GetCausalChain(id); ok {
			chains = append(chains, chain)
		}
	}
	return chains
}

// Query filters actions across all sessions by action type and/or outcome
// status. Either filter may be left as its zero value to match anything.
func (r *Recorder) Query(actionType models.ActionType, status models.OutcomeStatus) []*models.ActionNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*models.ActionNode
	for _, action := range r.actions {
		if actionType != "" && action.Type != actionType {
			continue
		}
		if status != "" {
			outcomeID, ok := r.outcomeByAction[action.ID]
			if !ok {
				continue
			}
			outcome := r.outcomes[outcomeID]
			if outcome == nil || outcome.Status != status {
				continue
			}
		}
		matches = append(matches, action)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Timestamp.Before(matches[j].Timestamp)
	})
	return matches
}

// GetSuccessRate reports the fraction of recorded outcomes with status
// OutcomeSuccess, optionally restricted to a single action type. Returns
// 0 when no matching outcomes exist.
func (r *Recorder) GetSuccessRate(actionType models.ActionType) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total, success int
	for actionID, outcomeID := range r.outcomeByAction {
		action := r.actions[actionID]
		if action == nil {
			continue
		}
		if actionType != "" && action.Type != actionType {
			continue
		}
		outcome := r.outcomes[outcomeID]
		if outcome == nil {
			continue
		}
		total++
		if outcome.Status == models.OutcomeSuccess {
			success++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total)
}

// Stats summarizes the recorder's current contents.
type Stats struct {
	Decisions     int                         `json:"decisions"`
	Actions       int                         `json:"actions"`
	Outcomes      int                         `json:"outcomes"`
	ByActionType  map[models.ActionType]int   `json:"by_action_type"`
	ByOutcome     map[models.OutcomeStatus]int `json:"by_outcome"`
}

// GetStats returns aggregate counts over the whole graph.
func (r *Recorder) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Decisions:    len(r.decisions),
		Actions:      len(r.actions),
		Outcomes:     len(r.outcomes),
		ByActionType: make(map[models.ActionType]int),
		ByOutcome:    make(map[models.OutcomeStatus]int),
	}
	for _, action := range r.actions {
		stats.ByActionType[action.Type]++
	}
	for _, outcome := range r.outcomes {
		stats.ByOutcome[outcome.Status]++
	}
	return stats
}

// ToMermaid renders a decision's causal chain as a Mermaid flowchart,
// useful for debugging a single run without a graph viewer.
func (r *Recorder) ToMermaid(decisionID string) (string, bool) {
	chain, ok := r.GetCausalChain(decisionID)
	if !ok {
		return "", false
	}

	var b strings.Builder
	b.WriteString("flowchart TD\n")
	fmt.Fprintf(&b, "  %s[%q]\n", nodeID(chain.Decision.ID), truncateLabel(chain.Decision.Prompt))
	for _, action := range chain.Actions {
		fmt.Fprintf(&b, "  %s[%q]\n", nodeID(action.ID), truncateLabel(action.Description))
	}
	for _, outcome := range chain.Outcomes {
		fmt.Fprintf(&b, "  %s{%q}\n", nodeID(outcome.ID), string(outcome.Status))
	}
	for _, edge := range chain.Edges {
		fmt.Fprintf(&b, "  %s --> %s\n", nodeID(edge.Source), nodeID(edge.Target))
	}
	return b.String(), true
}

func nodeID(id string) string {
	return "n" + strings.ReplaceAll(id, "-", "")
}

func truncateLabel(s string) string {
	const max = 40
	s = strings.ReplaceAll(s, "\"", "'")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
