// Package tgtest runs a fake Telegram Bot API for tests. It answers getMe,
// records every sendMessage and acknowledges every other method.
package tgtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type Sent struct {
	Method      string
	ChatID      int64
	Text        string
	ReplyMarkup string
}

type Server struct {
	*httptest.Server

	mu    sync.Mutex
	token string
	sent  []Sent
}

func NewServer(t *testing.T, token string) *Server {
	t.Helper()
	s := &Server{token: token}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Endpoint is the value for tgbotapi.NewBotAPIWithAPIEndpoint.
func (s *Server) Endpoint() string {
	return s.URL + "/bot%s/%s"
}

// Messages returns the texts sent so far.
func (s *Server) Messages() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Sent
	for _, m := range s.sent {
		if m.Method == "sendMessage" {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the last message sent, or a zero Sent.
func (s *Server) Last() Sent {
	msgs := s.Messages()
	if len(msgs) == 0 {
		return Sent{}
	}
	return msgs[len(msgs)-1]
}

func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	prefix := "/bot" + s.token + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)
	_ = r.ParseForm()

	switch method {
	case "getMe":
		writeResult(w, map[string]any{"id": 1, "is_bot": true, "first_name": "Registrar", "username": "registrar_test_bot"})
		return
	case "sendMessage":
		chatID, _ := strconv.ParseInt(r.FormValue("chat_id"), 10, 64)
		s.mu.Lock()
		s.sent = append(s.sent, Sent{
			Method:      method,
			ChatID:      chatID,
			Text:        r.FormValue("text"),
			ReplyMarkup: r.FormValue("reply_markup"),
		})
		s.mu.Unlock()
		writeResult(w, map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": chatID, "type": "private"}})
		return
	}

	s.mu.Lock()
	s.sent = append(s.sent, Sent{Method: method})
	s.mu.Unlock()
	writeResult(w, true)
}

func writeResult(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}
