// Package api exposes the HTTP surface consumed by the chat UI: upload,
// ask, list files, and delete session.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/fabfab/docqa/answer"
	"github.com/fabfab/docqa/chunker"
	"github.com/fabfab/docqa/embeddings"
	"github.com/fabfab/docqa/ingestion"
	"github.com/fabfab/docqa/qa"
	"github.com/fabfab/docqa/session"
)

// Server routes HTTP requests to the session store and the QA service. Both
// are injected at construction so tests can run against stubs.
type Server struct {
	store          *session.Store
	svc            *qa.Service
	maxUploadBytes int64
	logger         *log.Logger
	handler        http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	SessionID string   `json:"sessionId"`
	Document  string   `json:"document"`
	Files     []string `json:"files"`
}

type askRequest struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

type askResponse struct {
	Answer  string      `json:"answer"`
	Refused bool        `json:"refused"`
	Sources []askSource `json:"sources,omitempty"`
}

type askSource struct {
	Document string  `json:"document"`
	Chunk    int     `json:"chunk"`
	Snippet  string  `json:"snippet"`
	Score    float64 `json:"score"`
}

type filesResponse struct {
	SessionID string   `json:"sessionId"`
	Files     []string `json:"files"`
}

// New constructs a Server over an assembled store and QA service.
func New(store *session.Store, svc *qa.Service, maxUploadBytes int64, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		store:          store,
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/documents", s.handleUpload)
	mux.HandleFunc("/v1/ask", s.handleAsk)
	mux.HandleFunc("/v1/sessions/", s.handleSessions)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	// Multipart framing adds overhead beyond the document itself; the
	// precise limit is enforced against the decoded payload below.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read upload payload: %w", err))
		return
	}

	name := strings.TrimSpace(header.Filename)
	if name == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("upload has no file name"))
		return
	}

	text, err := ingestion.Extract(ingestion.Payload{Name: name, Data: data}, s.maxUploadBytes)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	sessionID, err := s.store.CreateOrGet(strings.TrimSpace(r.FormValue("session_id")))
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	doc, err := s.store.AddDocument(r.Context(), sessionID, name, text)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	files, err := s.store.ListFiles(sessionID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		SessionID: sessionID,
		Document:  doc.Name,
		Files:     files,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("sessionId is required"))
		return
	}

	resp, err := s.svc.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	converted := askResponse{Answer: resp.Answer, Refused: resp.Refused}
	for _, source := range resp.Sources {
		converted.Sources = append(converted.Sources, askSource{
			Document: source.Document,
			Chunk:    source.Chunk,
			Snippet:  source.Snippet,
			Score:    source.Score,
		})
	}

	s.writeJSON(w, http.StatusOK, converted)
}

// handleSessions covers GET /v1/sessions/{id}/files and
// DELETE /v1/sessions/{id}.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 2 && parts[1] == "files":
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w, http.MethodGet)
			return
		}
		s.listFiles(w, parts[0])
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodDelete {
			s.methodNotAllowed(w, http.MethodDelete)
			return
		}
		s.deleteSession(w, r, parts[0])
	default:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown resource: %s", r.URL.Path))
	}
}

func (s *Server) listFiles(w http.ResponseWriter, sessionID string) {
	files, err := s.store.ListFiles(sessionID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, filesResponse{SessionID: sessionID, Files: files})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.store.Delete(r.Context(), sessionID); err != nil {
		s.writeMappedError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "session deleted"})
}

// writeMappedError translates the error taxonomy into HTTP statuses.
// Refusals never pass through here: a refusal is a successful response.
func (s *Server) writeMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ingestion.ErrTooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge, err)
	case errors.Is(err, ingestion.ErrUnsupportedFormat), errors.Is(err, chunker.ErrConfiguration), errors.Is(err, embeddings.ErrEmptyInput):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, answer.ErrGeneration):
		s.writeError(w, http.StatusBadGateway, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
