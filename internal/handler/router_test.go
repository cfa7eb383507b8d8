package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadismael/DevPath/interviewer/internal/metrics"
	"github.com/ziadismael/DevPath/interviewer/internal/model/chat"
	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
	chatService "github.com/ziadismael/DevPath/interviewer/internal/service/chat"
	"github.com/ziadismael/DevPath/interviewer/internal/service/interview"
)

type prefixAnalyzer struct{}

func (prefixAnalyzer) Report(_ context.Context, code string) string {
	return "report: " + code
}

// toolResponder always asks for a code review and speaks the result.
type toolResponder struct{}

func (toolResponder) Reply(ctx context.Context, agent *interview.Agent, _ []chat.Message, _ string) (string, error) {
	if len(agent.Tools) == 0 {
		return "no tools", nil
	}
	return agent.Tools[0].InvokableRun(ctx, `{}`)
}

type wireFrame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	router := NewRouter(Dependencies{
		Registry:    persona.NewDefaultRegistry(),
		Sessions:    chatService.NewService(),
		Analyzer:    prefixAnalyzer{},
		Responder:   toolResponder{},
		Metrics:     metrics.NewRecorder(),
		Greeting:    "Hello, Are you ready for our interview?",
		ReadTimeout: 5 * time.Second,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func createSession(t *testing.T, srv *httptest.Server) chat.Session {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/session", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var session chat.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return session
}

func getSession(t *testing.T, srv *httptest.Server, id string) chat.Session {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/session/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session chat.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return session
}

func roomURL(srv *httptest.Server, id, transport string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/interview/ws/" + id + "?transport=" + transport
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wireFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestInterviewRoomEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	session := createSession(t, srv)
	assert.Equal(t, persona.Lobby, session.Mode)

	conn, _, err := websocket.DefaultDialer.Dial(roomURL(srv, session.ID, "sip"), nil)
	require.NoError(t, err)

	f := readFrame(t, conn)
	require.Equal(t, "session", f.Type)
	assert.Contains(t, string(f.Data), `"noiseCancellation":"bvc_telephony"`)
	assert.Contains(t, string(f.Data), `"mode":"lobby"`)

	got := getSession(t, srv, session.ID)
	assert.True(t, got.Connected)
	assert.Equal(t, persona.Lobby, got.Mode)

	sendFrame(t, conn, `{"type":"data","payload":{"topic":"INIT","mode":"behavioral"}}`)

	f = readFrame(t, conn)
	require.Equal(t, "agent", f.Type)
	assert.Contains(t, string(f.Data), `"mode":"behavioral"`)

	f = readFrame(t, conn)
	require.Equal(t, "say", f.Type)
	var greeting struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &greeting))
	assert.Equal(t, "Hello, Are you ready for our interview?", greeting.Text)
	sendFrame(t, conn, `{"type":"playback_done","id":"`+greeting.ID+`"}`)

	sendFrame(t, conn, `{"type":"data","payload":"{\"topic\":\"CODE_UPDATE\",\"code\":\"def solve(): return 42\"}"}`)
	sendFrame(t, conn, `{"type":"data","payload":"not json"}`)
	sendFrame(t, conn, `{"type":"transcript","text":"I'm done, can you check it?"}`)

	f = readFrame(t, conn)
	require.Equal(t, "transcript", f.Type)
	assert.Contains(t, string(f.Data), "report: def solve(): return 42")

	f = readFrame(t, conn)
	require.Equal(t, "say", f.Type)
	assert.Contains(t, string(f.Data), "report: def solve(): return 42")

	got = getSession(t, srv, session.ID)
	assert.True(t, got.Connected)
	assert.Equal(t, persona.Behavioral, got.Mode)

	second, resp, err := websocket.DefaultDialer.Dial(roomURL(srv, session.ID, "web"), nil)
	if second != nil {
		second.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return !getSession(t, srv, session.ID).Connected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInterviewRoomRejectsUnknownFrames(t *testing.T) {
	srv := newTestServer(t)
	session := createSession(t, srv)

	conn, _, err := websocket.DefaultDialer.Dial(roomURL(srv, session.ID, "web"), nil)
	require.NoError(t, err)
	defer conn.Close()

	f := readFrame(t, conn)
	require.Equal(t, "session", f.Type)
	assert.Contains(t, string(f.Data), `"noiseCancellation":"bvc"`)

	sendFrame(t, conn, `{"type":"audio"}`)
	f = readFrame(t, conn)
	assert.Equal(t, "error", f.Type)

	sendFrame(t, conn, `{{{`)
	f = readFrame(t, conn)
	assert.Equal(t, "error", f.Type)
}

func TestInterviewRoomUnknownSession(t *testing.T) {
	srv := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(roomURL(srv, "missing", "web"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, bytes.Contains(body, []byte("interview_active_sessions")))
}

func TestPersonasRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/personas")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []persona.Persona
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, persona.Technical, got[0].Mode)
}
