package session

import "context"

// ChunkRecord is the persisted form of one chunk, embedding included, so a
// restarted process can rebuild the index without re-embedding.
type ChunkRecord struct {
	ID     string
	Index  int
	Text   string
	Start  int
	End    int
	Vector []float32
}

// DocumentRecord is the persisted form of one ingested document.
type DocumentRecord struct {
	SessionID  string
	DocumentID string
	Name       string
	Text       string
	Chunks     []ChunkRecord
}

// SessionRecord is one persisted session with its documents in upload order.
type SessionRecord struct {
	ID        string
	Documents []DocumentRecord
}

// Backend persists session artifacts. A document is saved atomically:
// after a failed save nothing of it may be visible. Implementations live in
// the storage package; a nil Backend means in-memory-only operation.
type Backend interface {
	SaveDocument(ctx context.Context, record DocumentRecord) error
	LoadSessions(ctx context.Context) ([]SessionRecord, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
