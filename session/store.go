// Package session scopes uploaded documents, their chunks, and their vector
// index to isolated, unguessable session identifiers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/fabfab/docqa/chunker"
	"github.com/fabfab/docqa/decision"
	"github.com/fabfab/docqa/embeddings"
	"github.com/fabfab/docqa/index"
)

// ErrNotFound reports an unknown session id. Every operation on an unknown
// id fails this way, including Delete.
var ErrNotFound = errors.New("session not found")

// Document is one ingested source file. Immutable after ingestion.
type Document struct {
	ID   string
	Name string
	Text string
}

// chunkRef maps a vector index handle back to its source for attribution.
type chunkRef struct {
	docID   string
	docName string
	index   int
	text    string
}

// Session holds one user's corpus. All mutation is serialized by mu so a
// document's chunks become visible together or not at all.
type Session struct {
	mu    sync.RWMutex
	id    string
	docs  []Document
	refs  map[string]chunkRef
	index *index.Index
}

func newSession(id string) *Session {
	return &Session{
		id:    id,
		refs:  make(map[string]chunkRef),
		index: index.New(),
	}
}

// Options tunes the ingestion pipeline shared by all sessions of a store.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// Store is the registry mapping session ids to sessions. Its lock covers
// creation, lookup, and deletion only; per-session work runs under the
// session's own lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	embedder embeddings.Embedder
	backend  Backend
	opts     Options
	logger   *log.Logger
}

// NewStore builds a registry. backend may be nil for in-memory-only
// operation.
func NewStore(embedder embeddings.Embedder, backend Backend, opts Options, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 300
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}

	return &Store{
		sessions: make(map[string]*Session),
		embedder: embedder,
		backend:  backend,
		opts:     opts,
		logger:   logger,
	}
}

// Open reloads persisted sessions from the backend, rebuilding each vector
// index from stored embeddings without re-embedding anything. A nil backend
// makes Open a no-op.
func (s *Store) Open(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	records, err := s.backend.LoadSessions(ctx)
	if err != nil {
		return fmt.Errorf("load persisted sessions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		sess := newSession(record.ID)
		for _, doc := range record.Documents {
			entries := make([]index.Entry, 0, len(doc.Chunks))
			for _, chunk := range doc.Chunks {
				entries = append(entries, index.Entry{ChunkID: chunk.ID, Vector: chunk.Vector})
				sess.refs[chunk.ID] = chunkRef{
					docID:   doc.DocumentID,
					docName: doc.Name,
					index:   chunk.Index,
					text:    chunk.Text,
				}
			}
			if err := sess.index.Insert(entries); err != nil {
				return fmt.Errorf("rebuild index for session %s: %w", record.ID, err)
			}
			sess.docs = append(sess.docs, Document{ID: doc.DocumentID, Name: doc.Name, Text: doc.Text})
		}
		s.sessions[record.ID] = sess
		s.logger.Printf("restored session %s (%d documents, %d chunks)", record.ID, len(sess.docs), len(sess.refs))
	}

	return nil
}

// CreateOrGet returns the id of an existing session, or mints a fresh
// unguessable id when none is supplied. A non-empty unknown id is an error,
// never a silent new session.
func (s *Store) CreateOrGet(id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
		s.mu.Lock()
		s.sessions[id] = newSession(id)
		s.mu.Unlock()
		return id, nil
	}

	s.mu.RLock()
	_, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return id, nil
}

func (s *Store) get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, nil
}

// AddDocument runs the ingestion pipeline for one extracted document:
// chunking, embedding, and an all-or-nothing index insert. Embedding happens
// outside the session lock so a slow or cancelled model call never leaves a
// partial insert behind. Duplicate display names are renamed with a counter
// suffix rather than overwritten.
func (s *Store) AddDocument(ctx context.Context, sessionID, name, text string) (Document, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return Document{}, err
	}

	chunks, err := chunker.Split(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if err != nil {
		return Document{}, fmt.Errorf("chunk document: %w", err)
	}

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}

		vectors, err = s.embedder.Embed(ctx, texts)
		if err != nil {
			return Document{}, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(chunks) {
			return Document{}, fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(chunks), len(vectors))
		}
	}

	doc := Document{ID: uuid.NewString(), Text: chunker.Normalize(text)}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	doc.Name = uniqueName(name, sess.docs)

	record := DocumentRecord{
		SessionID:  sessionID,
		DocumentID: doc.ID,
		Name:       doc.Name,
		Text:       doc.Text,
		Chunks:     make([]ChunkRecord, len(chunks)),
	}

	entries := make([]index.Entry, len(chunks))
	for i, chunk := range chunks {
		chunkID := uuid.NewString()
		entries[i] = index.Entry{ChunkID: chunkID, Vector: vectors[i]}
		record.Chunks[i] = ChunkRecord{
			ID:     chunkID,
			Index:  chunk.Index,
			Text:   chunk.Text,
			Start:  chunk.Start,
			End:    chunk.End,
			Vector: vectors[i],
		}
	}

	if s.backend != nil {
		if err := s.backend.SaveDocument(ctx, record); err != nil {
			return Document{}, fmt.Errorf("persist document: %w", err)
		}
	}

	if err := sess.index.Insert(entries); err != nil {
		return Document{}, fmt.Errorf("index document: %w", err)
	}

	for _, chunk := range record.Chunks {
		sess.refs[chunk.ID] = chunkRef{
			docID:   doc.ID,
			docName: doc.Name,
			index:   chunk.Index,
			text:    chunk.Text,
		}
	}
	sess.docs = append(sess.docs, doc)

	s.logger.Printf("session %s: ingested %q (%d chunks)", sessionID, doc.Name, len(chunks))
	return doc, nil
}

// ListFiles returns the display names of a session's documents in upload
// order.
func (s *Store) ListFiles(sessionID string) ([]string, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()

	names := make([]string, len(sess.docs))
	for i, doc := range sess.docs {
		names[i] = doc.Name
	}
	return names, nil
}

// Retrieve embeds the query and returns the session's top-k most similar
// chunks with attribution, ordered by descending similarity. A session with
// no ingested evidence yields an empty result, never an error.
func (s *Store) Retrieve(ctx context.Context, sessionID, query string, k int) ([]decision.Match, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}

	vector, err := embeddings.EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()

	if sess.index.Len() == 0 {
		return nil, nil
	}

	results, err := sess.index.Search(vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	matches := make([]decision.Match, 0, len(results))
	for _, result := range results {
		ref, ok := sess.refs[result.ChunkID]
		if !ok {
			return nil, fmt.Errorf("chunk %s missing from attribution map", result.ChunkID)
		}
		matches = append(matches, decision.Match{
			ChunkID:    result.ChunkID,
			Document:   ref.docName,
			ChunkIndex: ref.index,
			Text:       ref.text,
			Score:      result.Score,
		})
	}

	return matches, nil
}

// Delete discards a session and everything derived from it. Deleting an
// unknown id returns ErrNotFound, consistent with the other operations.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	if s.backend != nil {
		if err := s.backend.DeleteSession(ctx, sessionID); err != nil {
			return fmt.Errorf("delete persisted session: %w", err)
		}
	}

	s.logger.Printf("session %s deleted", sessionID)
	return nil
}

// uniqueName appends a counter suffix until name collides with no existing
// document.
func uniqueName(name string, docs []Document) string {
	taken := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		taken[doc.Name] = struct{}{}
	}

	if _, ok := taken[name]; !ok {
		return name
	}

	base, ext := splitExt(name)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

func splitExt(name string) (string, string) {
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i:]
		}
	}
	return name, ""
}
