// Package storage persists session artifacts in Postgres with pgvector so
// sessions survive a process restart without re-embedding.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/docqa/session"
)

// Postgres implements session.Backend on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and ensures the schema exists with the given
// embedding dimension.
func NewPostgres(ctx context.Context, dsn string, dimension int) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx, dimension); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) ensureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS qa_documents (
			id UUID PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq BIGSERIAL,
			display_name TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS qa_chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES qa_documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			start_offset INT NOT NULL,
			end_offset INT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			UNIQUE(document_id, chunk_index)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_qa_documents_session ON qa_documents(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_qa_chunks_document ON qa_chunks(document_id)",
	}

	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}

// SaveDocument writes a document and all of its chunks in one transaction.
func (p *Postgres) SaveDocument(ctx context.Context, record session.DocumentRecord) (err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `
		INSERT INTO qa_documents (id, session_id, display_name, content)
		VALUES ($1, $2, $3, $4)
	`, record.DocumentID, record.SessionID, record.Name, record.Text); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	for _, chunk := range record.Chunks {
		vec := pgvector.NewVector(chunk.Vector)
		if _, err = tx.Exec(ctx, `
			INSERT INTO qa_chunks (id, document_id, chunk_index, start_offset, end_offset, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, chunk.ID, record.DocumentID, chunk.Index, chunk.Start, chunk.End, chunk.Text, vec); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadSessions reads every persisted session with its documents in upload
// order and each document's chunks in sequence order.
func (p *Postgres) LoadSessions(ctx context.Context) ([]session.SessionRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, display_name, content
		FROM qa_documents
		ORDER BY session_id, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	order := make([]string, 0)
	bySession := make(map[string]*session.SessionRecord)
	docs := make([]session.DocumentRecord, 0)

	for rows.Next() {
		var doc session.DocumentRecord
		if err := rows.Scan(&doc.DocumentID, &doc.SessionID, &doc.Name, &doc.Text); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate documents: %w", rows.Err())
	}

	for i := range docs {
		doc := &docs[i]
		chunks, err := p.loadChunks(ctx, doc.DocumentID)
		if err != nil {
			return nil, err
		}
		doc.Chunks = chunks

		record, ok := bySession[doc.SessionID]
		if !ok {
			record = &session.SessionRecord{ID: doc.SessionID}
			bySession[doc.SessionID] = record
			order = append(order, doc.SessionID)
		}
		record.Documents = append(record.Documents, *doc)
	}

	records := make([]session.SessionRecord, 0, len(order))
	for _, id := range order {
		records = append(records, *bySession[id])
	}
	return records, nil
}

func (p *Postgres) loadChunks(ctx context.Context, documentID string) ([]session.ChunkRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, chunk_index, start_offset, end_offset, content, embedding
		FROM qa_chunks
		WHERE document_id = $1
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]session.ChunkRecord, 0)
	for rows.Next() {
		var chunk session.ChunkRecord
		var vec pgvector.Vector
		if err := rows.Scan(&chunk.ID, &chunk.Index, &chunk.Start, &chunk.End, &chunk.Text, &vec); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.Vector = vec.Slice()
		chunks = append(chunks, chunk)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate chunks: %w", rows.Err())
	}
	return chunks, nil
}

// DeleteSession removes a session's documents; chunks cascade.
func (p *Postgres) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM qa_documents WHERE session_id = $1", sessionID); err != nil {
		return fmt.Errorf("delete session documents: %w", err)
	}
	return nil
}

var _ session.Backend = (*Postgres)(nil)
