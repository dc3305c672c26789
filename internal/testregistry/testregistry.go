// Package testregistry provides an httptest-backed stand-in for a real
// npm registry, for use in registry/resolver/install tests. It is
// adapted from the teacher's internal/test/registry mock server (a
// net/http/httptest.Server verifying a fixed bearer token and serving
// package documents from a fixture tree) to the JSON shape spec.md
// defines for RegistryPackage rather than the teacher's Go-module shape.
package testregistry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// TokenAuth is the fixed bearer token the server accepts when Auth is
// enabled.
const TokenAuth = "test-registry-token-0001"

// Server is an in-memory npm-shaped registry.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	packages map[string]json.RawMessage
	Auth     bool
}

// New starts a Server with no packages registered.
func New() *Server {
	s := &Server{packages: make(map[string]json.RawMessage)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// PutRaw registers the literal JSON body a GET for name should return.
func (s *Server) PutRaw(name string, body json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[name] = body
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if s.Auth {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != TokenAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	s.mu.Lock()
	body, ok := s.packages[name]
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
