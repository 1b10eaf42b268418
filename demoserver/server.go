package demoserver

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/corestateio/corestate/schema"
)

// Server is an in-process REST+SSE backend for one collection of records,
// wired the way handlers.DatabaseList wires database/contents/auth/sse, but
// over a flat "/items" collection instead of a recursive database/document/
// collection tree.
type Server struct {
	store   *recordStore
	auth    *authManager
	events  *broadcaster
	mux     *http.ServeMux
	handler http.Handler
}

// Config configures a Server.
type Config struct {
	Validator     *schema.Validator
	TokenDuration time.Duration
}

// NewServer builds a Server ready to be wrapped in an httptest.Server or
// handed to http.ListenAndServe.
func NewServer(cfg Config) *Server {
	duration := cfg.TokenDuration
	if duration <= 0 {
		duration = time.Hour
	}

	s := &Server{
		store:  newRecordStore(cfg.Validator),
		auth:   newAuthManager(duration),
		events: newBroadcaster(),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /items/subscribe", s.events.ServeHTTP)
	s.mux.HandleFunc("GET /items", s.handleList)
	s.mux.HandleFunc("POST /items", s.handleCreate)
	s.mux.HandleFunc("GET /items/{id}", s.handleGet)
	s.mux.HandleFunc("PUT /items/{id}", s.handlePut)
	s.mux.HandleFunc("PATCH /items/{id}", s.handlePatch)
	s.mux.HandleFunc("DELETE /items/{id}", s.handleDelete)

	s.handler = s.auth.middleware("/auth/login", s.mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeError(w, http.StatusBadRequest, "invalid login request")
		return
	}
	token, err := s.auth.login(body.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, s.store.list())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, ok := s.store.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeEnvelope(w, http.StatusOK, record)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := generateID()
	record, err := s.store.put(id, usernameFromContext(r.Context()), fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, _ := json.Marshal(record)
	s.events.publish("update", string(raw))
	slog.Info("demoserver: created record", "id", id)
	writeEnvelope(w, http.StatusCreated, record)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	record, err := s.store.put(id, usernameFromContext(r.Context()), fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw, _ := json.Marshal(record)
	s.events.publish("update", string(raw))
	writeEnvelope(w, http.StatusOK, record)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	record, err := s.store.patch(id, usernameFromContext(r.Context()), partial)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	raw, _ := json.Marshal(record)
	s.events.publish("update", string(raw))
	writeEnvelope(w, http.StatusOK, record)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, ok := s.store.delete(id)
	if !ok {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	raw, _ := json.Marshal(map[string]string{"id": record.ID})
	s.events.publish("delete", string(raw))
	w.WriteHeader(http.StatusNoContent)
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

func generateID() string {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().String()))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
