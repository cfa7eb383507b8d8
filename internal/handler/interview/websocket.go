package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ziadismael/DevPath/interviewer/internal/metrics"
	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
	chatService "github.com/ziadismael/DevPath/interviewer/internal/service/chat"
	"github.com/ziadismael/DevPath/interviewer/internal/service/interview"
	"github.com/ziadismael/DevPath/interviewer/internal/service/voice"
	"github.com/ziadismael/DevPath/interviewer/pkg/utils"
)

const (
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Inbound frame types.
const (
	frameData          = "data"
	frameTranscript    = "transcript"
	frameSpeechStarted = "speech_started"
	framePlaybackDone  = "playback_done"
)

// Options wires the room socket handler.
type Options struct {
	Sessions    *chatService.Service
	Registry    *persona.Registry
	Analyzer    interview.Analyzer
	Responder   voice.Responder
	Metrics     *metrics.Recorder
	Logger      *zap.Logger
	Greeting    string
	ReadTimeout time.Duration
}

// WebSocketHandler attaches a live interview to a room socket.
type WebSocketHandler struct {
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the room socket handler.
func NewWebSocketHandler(opts Options) *WebSocketHandler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	return &WebSocketHandler{
		opts:   opts,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes registers the room socket route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/interview/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Text    string          `json:"text"`
	ID      string          `json:"id"`
}

// connWriter serialises writes; gorilla allows one concurrent writer.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connWriter) WriteFrame(f voice.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(f)
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sessions := h.opts.Sessions

	if _, err := sessions.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := sessions.Attach(r.Context(), sessionID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionInUse) {
			status = http.StatusConflict
		}
		utils.RespondError(w, status, err.Error())
		return
	}
	defer sessions.Detach(context.Background(), sessionID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session", sessionID))
	transport := interview.ParseTransportKind(r.URL.Query().Get("transport"))
	writer := &connWriter{conn: conn}

	speech := voice.NewSession(sessionID, writer, h.opts.Responder, sessions, logger.Named("voice"))
	orchestrator := interview.New(sessionID, interview.Options{
		Registry: h.opts.Registry,
		Speech:   speech,
		Analyzer: h.opts.Analyzer,
		Greeting: h.opts.Greeting,
		Logger:   logger.Named("session"),
		Metrics:  h.opts.Metrics,
		OnSwitch: func(mode persona.Mode) {
			sessions.SetMode(context.Background(), sessionID, mode)
		},
	})
	defer func() {
		orchestrator.Close()
		speech.Close()
	}()

	if err := orchestrator.Start(r.Context(), transport); err != nil {
		logger.Error("failed to start session", zap.Error(err))
		h.sendError(writer, sessionID, "failed to start session")
		return
	}

	h.opts.Metrics.SessionOpened()
	defer h.opts.Metrics.SessionClosed()
	logger.Info("room connected", zap.String("transport", string(transport)))

	ctx, cancel := context.WithCancel(r.Context())
	var pinger sync.WaitGroup
	pinger.Add(1)
	go func() {
		defer pinger.Done()
		h.pingLoop(ctx, conn)
	}()
	defer func() {
		cancel()
		pinger.Wait()
	}()

	readTimeout := h.opts.ReadTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", zap.Error(err))
			}
			logger.Info("room disconnected")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(writer, sessionID, "invalid frame")
			continue
		}

		switch msg.Type {
		case frameData:
			if err := orchestrator.HandleData(controlPayload(msg.Payload)); err != nil {
				return
			}
		case frameTranscript:
			speech.HandleTranscript(msg.Text)
		case frameSpeechStarted:
			speech.CallerSpeechStarted()
		case framePlaybackDone:
			speech.PlaybackDone(msg.ID)
		default:
			h.sendError(writer, sessionID, "unsupported message type: "+msg.Type)
		}
	}
}

// controlPayload returns the raw side-channel bytes. Clients may send the
// control message as a JSON object or as a string holding it.
func controlPayload(raw json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return []byte(s)
		}
	}
	return trimmed
}

func (h *WebSocketHandler) sendError(w *connWriter, sessionID, message string) {
	err := w.WriteFrame(voice.Frame{
		Type:      voice.FrameError,
		SessionID: sessionID,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Debug("failed to send error frame", zap.Error(err))
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
