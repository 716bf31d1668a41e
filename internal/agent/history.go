package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/codecoder/core/internal/storage"
	"github.com/codecoder/core/pkg/models"
)

// HistoryStore is the runtime's view of session/message persistence: enough
// to replay a session's transcript into a completion request and append the
// turn's result, without depending on a particular storage backend or on
// the channel/agent-routing concerns a full session directory handles.
type HistoryStore interface {
	// GetSession returns the session record, or (nil, nil) if it doesn't exist.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// PutSession upserts the session record.
	PutSession(ctx context.Context, session *models.Session) error

	// History returns every message recorded for sessionID, oldest first.
	History(ctx context.Context, sessionID string) ([]*models.Message, error)

	// AppendMessage records one message in a session's transcript.
	AppendMessage(ctx context.Context, msg *models.Message) error
}

// storageHistoryStore implements HistoryStore on top of the shared
// path-addressed storage.Store, the same backend the memory and permission
// subsystems use (internal/storage).
type storageHistoryStore struct {
	store storage.Store
}

// NewHistoryStore wraps a storage.Store as a HistoryStore. Passing nil uses
// a fresh in-memory store, sufficient for a single-process runtime or tests.
func NewHistoryStore(store storage.Store) HistoryStore {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &storageHistoryStore{store: store}
}

func sessionPath(sessionID string) []string {
	return []string{"session", sessionID, "meta"}
}

func messagePath(sessionID, messageID string) []string {
	return []string{"session", sessionID, "message", messageID}
}

func (s *storageHistoryStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	rec, err := s.store.Read(ctx, sessionPath(sessionID)...)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal(rec.Data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (s *storageHistoryStore) PutSession(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session must have an ID")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.store.Write(ctx, &storage.Record{
		Path: sessionPath(session.ID),
		Kind: "session",
		Data: data,
	})
}

func (s *storageHistoryStore) History(ctx context.Context, sessionID string) ([]*models.Message, error) {
	recs, err := s.store.List(ctx, "session", sessionID, "message")
	if err != nil {
		return nil, err
	}
	messages := make([]*models.Message, 0, len(recs))
	for _, rec := range recs {
		var msg models.Message
		if err := json.Unmarshal(rec.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode message in session %s: %w", sessionID, err)
		}
		messages = append(messages, &msg)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (s *storageHistoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.SessionID == "" || msg.ID == "" {
		return fmt.Errorf("message must have a session ID and ID")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.store.Write(ctx, &storage.Record{
		Path: messagePath(msg.SessionID, msg.ID),
		Kind: "message",
		Data: data,
	})
}
