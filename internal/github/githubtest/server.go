// Package githubtest provides an in-process fake of the GitHub contents API
// with real sha based compare-and-swap, for tests.
package githubtest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type file struct {
	content []byte
	sha     string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	token    string
	files    map[string]*file
	gets     int
	puts     int
	failures map[string]int // method -> status to answer with once
	getRef   string
	putRef   string
}

// NewServer starts a fake that accepts only the given bearer token. Files
// are keyed by "owner/repo/path".
func NewServer(t *testing.T, token string) *Server {
	t.Helper()
	s := &Server{token: token, files: map[string]*file{}, failures: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func Sha(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

// Seed stores content as if another writer had put it and returns its sha.
func (s *Server) Seed(key string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &file{content: content, sha: Sha(content)}
	s.files[key] = f
	return f.sha
}

func (s *Server) Content(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[key]
	if !ok {
		return nil, false
	}
	return f.content, true
}

// FailNext makes the next request with method answer status.
func (s *Server) FailNext(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = status
}

func (s *Server) Counts() (gets, puts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.puts
}

// Refs returns the ref of the last read and the branch of the last write.
func (s *Server) Refs() (get, put string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getRef, s.putRef
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+s.token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	if status, ok := s.failures[r.Method]; ok {
		delete(s.failures, r.Method)
		writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
		return
	}

	if r.URL.Path == "/user" {
		writeJSON(w, http.StatusOK, map[string]string{"login": "tester"})
		return
	}

	const prefix = "/repos/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, prefix), "/", 4)
	if len(parts) != 4 || parts[2] != "contents" {
		http.NotFound(w, r)
		return
	}
	key := parts[0] + "/" + parts[1] + "/" + parts[3]

	switch r.Method {
	case http.MethodGet:
		s.gets++
		s.getRef = r.URL.Query().Get("ref")
		f, ok := s.files[key]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"sha":      f.sha,
			"encoding": "base64",
			"content":  wrap(base64.StdEncoding.EncodeToString(f.content), 60),
		})
	case http.MethodPut:
		s.puts++
		var req struct {
			Message string `json:"message"`
			Content string `json:"content"`
			SHA     string `json:"sha"`
			Branch  string `json:"branch"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
			return
		}
		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "content is not valid Base64"})
			return
		}
		s.putRef = req.Branch
		f, exists := s.files[key]
		switch {
		case exists && req.SHA == "":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request.\n\n\"sha\" wasn't supplied."})
			return
		case exists && req.SHA != f.sha, !exists && req.SHA != "":
			writeJSON(w, http.StatusConflict, map[string]string{"message": key + " does not match " + req.SHA})
			return
		}
		nf := &file{content: content, sha: Sha(content)}
		s.files[key] = nf
		status := http.StatusOK
		if !exists {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{"content": map[string]string{"sha": nf.sha}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteByte('\n')
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
