package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/codecoder/core/internal/storage"
	"github.com/codecoder/core/pkg/models"
)

// storageEditRecorder persists the FileChange ledger on the shared
// path-addressed storage.Store, the same backend storageHistoryStore uses
// for sessions/messages. It satisfies both the Runtime's EditRecorder
// interface and internal/context's RecentEditsSource — the same ledger is
// appended to by a running turn and read back by the Context Builder.
type storageEditRecorder struct {
	store storage.Store
}

// NewEditRecorder wraps a storage.Store as an edit ledger. Passing nil uses
// a fresh in-memory store.
func NewEditRecorder(store storage.Store) *storageEditRecorder {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &storageEditRecorder{store: store}
}

func editPath(sessionID, recordID string) []string {
	return []string{"session", sessionID, "edit", recordID}
}

// Append records rec in the session's edit ledger.
func (s *storageEditRecorder) Append(ctx context.Context, rec *models.EditRecord) error {
	if rec == nil || rec.SessionID == "" || rec.ID == "" {
		return fmt.Errorf("edit record must have a session ID and ID")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.store.Write(ctx, &storage.Record{
		Path: editPath(rec.SessionID, rec.ID),
		Kind: "edit",
		Data: data,
	})
}

// RecentEdits returns sessionID's edit ledger, most recent first, capped at
// limit (0 means no cap).
func (s *storageEditRecorder) RecentEdits(ctx context.Context, sessionID string, limit int) ([]*models.EditRecord, error) {
	recs, err := s.store.List(ctx, "session", sessionID, "edit")
	if err != nil {
		return nil, err
	}
	edits := make([]*models.EditRecord, 0, len(recs))
	for _, rec := range recs {
		var edit models.EditRecord
		if err := json.Unmarshal(rec.Data, &edit); err != nil {
			return nil, fmt.Errorf("decode edit record in session %s: %w", sessionID, err)
		}
		edits = append(edits, &edit)
	}
	sort.Slice(edits, func(i, j int) bool {
		return edits[i].Timestamp.After(edits[j].Timestamp)
	})
	if limit > 0 && len(edits) > limit {
		edits = edits[:limit]
	}
	return edits, nil
}
