package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ziadismael/DevPath/interviewer/internal/model/chat"
	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
	chatservice "github.com/ziadismael/DevPath/interviewer/internal/service/chat"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(chatservice.NewService()).RegisterRoutes(r)
	return r
}

func createSession(t *testing.T, r http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateSessionStartsInLobby(t *testing.T) {
	r := setupRouter()
	resp := createSession(t, r, nil)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var session chat.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.ID == "" || session.Mode != persona.Lobby || session.Connected {
		t.Fatalf("unexpected session %+v", session)
	}

	get := httptest.NewRecorder()
	r.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/session/"+session.ID, nil))
	if get.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", get.Code)
	}
}

func TestCreateSessionIgnoresBody(t *testing.T) {
	resp := createSession(t, setupRouter(), []byte(`{"mode":"behavioral"}`))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var session chat.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.Mode != persona.Lobby {
		t.Fatalf("unexpected mode %q", session.Mode)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/session/missing", nil))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
