// Package voice adapts the client-side speech pipeline, reached over the room
// socket, to the interview.SpeechSession contract.
package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadismael/DevPath/interviewer/internal/model/chat"
	"github.com/ziadismael/DevPath/interviewer/internal/service/interview"
)

// Outbound frame types.
const (
	FrameSession    = "session"
	FrameAgent      = "agent"
	FrameSay        = "say"
	FrameCancel     = "cancel"
	FrameTranscript = "transcript"
	FrameError      = "error"
)

const turnQueueSize = 8

// Frame is one server to client message on the room socket.
type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// FrameWriter delivers frames to the client. Implementations must be safe for
// concurrent use.
type FrameWriter interface {
	WriteFrame(Frame) error
}

// Responder produces the interviewer's reply to a caller turn.
type Responder interface {
	Reply(ctx context.Context, agent *interview.Agent, history []chat.Message, userText string) (string, error)
}

// History stores conversation turns for the life of the call.
type History interface {
	LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error)
	SaveMessage(ctx context.Context, message chat.Message) error
}

// SayData is the payload of a say frame.
type SayData struct {
	ID                 string `json:"id"`
	Text               string `json:"text"`
	AllowInterruptions bool   `json:"allowInterruptions"`
}

// TranscriptData is the payload of a transcript frame.
type TranscriptData struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session plays utterances one at a time and runs caller turns through the
// responder.
type Session struct {
	id        string
	out       FrameWriter
	responder Responder
	history   History
	logger    *zap.Logger

	agent atomic.Pointer[interview.Agent]

	mu      sync.Mutex
	queue   []*utterance
	current *utterance
	closed  bool

	wake  chan struct{}
	turns chan string

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   atomic.Bool
	closeOnce sync.Once
}

var _ interview.SpeechSession = (*Session)(nil)

// NewSession creates a speech session for one room.
func NewSession(id string, out FrameWriter, responder Responder, history History, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		out:       out,
		responder: responder,
		history:   history,
		logger:    logger.With(zap.String("session", id)),
		wake:      make(chan struct{}, 1),
		turns:     make(chan string, turnQueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start announces the audio options and starts playout and turn handling.
func (s *Session) Start(ctx context.Context, agent *interview.Agent, opts interview.AudioOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("speech session already started")
	}
	s.agent.Store(agent)

	if err := s.write(FrameSession, map[string]any{
		"noiseCancellation": opts.NoiseCancellation,
		"mode":              agent.Persona.Mode,
	}); err != nil {
		return err
	}

	s.wg.Add(2)
	go s.playout()
	go s.turnLoop()
	return nil
}

// UpdateAgent replaces the agent used for the next turn.
func (s *Session) UpdateAgent(agent *interview.Agent) error {
	if s.ctx.Err() != nil {
		return interview.ErrSessionClosed
	}
	s.agent.Store(agent)
	return s.write(FrameAgent, map[string]any{
		"mode":  agent.Persona.Mode,
		"name":  agent.Persona.Name,
		"title": agent.Persona.Title,
	})
}

// Say queues text behind anything already queued.
func (s *Session) Say(text string, allowInterruptions bool) interview.SpeechHandle {
	u := newUtterance(s, text, allowInterruptions)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		u.finish()
		return u
	}
	s.queue = append(s.queue, u)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return u
}

// HandleTranscript queues a final caller transcript for a reply.
func (s *Session) HandleTranscript(text string) {
	if text == "" || s.ctx.Err() != nil {
		return
	}
	select {
	case s.turns <- text:
	default:
		s.logger.Warn("dropping caller turn, too many pending", zap.Int("pending", turnQueueSize))
	}
}

// CallerSpeechStarted interrupts the current utterance and drops queued
// ones when they allow it.
func (s *Session) CallerSpeechStarted() {
	s.mu.Lock()
	kept := s.queue[:0]
	var dropped []*utterance
	for _, u := range s.queue {
		if u.allow {
			dropped = append(dropped, u)
			continue
		}
		kept = append(kept, u)
	}
	s.queue = kept
	current := s.current
	s.mu.Unlock()

	for _, u := range dropped {
		u.finish()
	}
	if current != nil && current.allow {
		current.stop()
	}
}

// PlaybackDone marks the utterance with id as fully played.
func (s *Session) PlaybackDone(id string) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current != nil && current.id == id {
		current.markPlayed()
	}
}

// Close stops playout and turn handling. Pending utterances complete.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		pending := s.queue
		s.queue = nil
		current := s.current
		s.current = nil
		s.mu.Unlock()

		for _, u := range pending {
			u.finish()
		}
		if current != nil {
			current.finish()
		}
	})
}

func (s *Session) interrupt(u *utterance) {
	s.mu.Lock()
	for i, q := range s.queue {
		if q == u {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.mu.Unlock()
			u.finish()
			return
		}
	}
	current := s.current
	s.mu.Unlock()

	if current == u {
		u.stop()
	}
}

func (s *Session) next() *utterance {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			u := s.queue[0]
			s.queue = s.queue[1:]
			s.current = u
			s.mu.Unlock()
			return u
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.ctx.Done():
			return nil
		}
	}
}

func (s *Session) playout() {
	defer s.wg.Done()

	for {
		u := s.next()
		if u == nil {
			return
		}

		err := s.write(FrameSay, SayData{ID: u.id, Text: u.text, AllowInterruptions: u.allow})
		if err != nil {
			s.logger.Warn("failed to send utterance", zap.String("utterance", u.id), zap.Error(err))
		} else {
			select {
			case <-u.played:
			case <-u.stopped:
				if err := s.write(FrameCancel, map[string]string{"id": u.id}); err != nil {
					s.logger.Debug("failed to send cancel", zap.Error(err))
				}
			case <-s.ctx.Done():
			}
		}

		s.mu.Lock()
		if s.current == u {
			s.current = nil
		}
		s.mu.Unlock()
		u.finish()
	}
}

func (s *Session) turnLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case text := <-s.turns:
			s.runTurn(text)
		}
	}
}

func (s *Session) runTurn(text string) {
	ctx := s.ctx
	agent := s.agent.Load()

	history, err := s.history.LoadTranscript(ctx, s.id)
	if err != nil {
		s.logger.Warn("failed to load history", zap.Error(err))
		history = nil
	}

	s.save(chat.SenderUser, text)

	reply, err := s.responder.Reply(ctx, agent, history, text)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("failed to generate reply", zap.Error(err))
		_ = s.write(FrameError, map[string]string{"message": "failed to generate reply"})
		return
	}
	if reply == "" {
		return
	}

	s.save(chat.SenderAssistant, reply)
	if err := s.write(FrameTranscript, TranscriptData{Role: chat.SenderAssistant, Text: reply}); err != nil {
		s.logger.Debug("failed to send transcript", zap.Error(err))
	}
	s.Say(reply, true)
}

func (s *Session) save(sender, content string) {
	err := s.history.SaveMessage(s.ctx, chat.Message{
		SessionID: s.id,
		Sender:    sender,
		Content:   content,
	})
	if err != nil {
		s.logger.Debug("failed to save message", zap.String("sender", sender), zap.Error(err))
	}
}

func (s *Session) write(frameType string, data any) error {
	return s.out.WriteFrame(Frame{
		Type:      frameType,
		SessionID: s.id,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

type utterance struct {
	session *Session
	id      string
	text    string
	allow   bool

	played     chan struct{}
	playedOnce sync.Once
	stopped    chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	doneOnce   sync.Once
}

func newUtterance(s *Session, text string, allow bool) *utterance {
	return &utterance{
		session: s,
		id:      uuid.NewString(),
		text:    text,
		allow:   allow,
		played:  make(chan struct{}),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (u *utterance) ID() string            { return u.id }
func (u *utterance) Done() <-chan struct{} { return u.done }

func (u *utterance) Interrupt() {
	select {
	case <-u.done:
		return
	default:
	}
	u.session.interrupt(u)
}

func (u *utterance) markPlayed() { u.playedOnce.Do(func() { close(u.played) }) }
func (u *utterance) stop()       { u.stopOnce.Do(func() { close(u.stopped) }) }
func (u *utterance) finish()     { u.doneOnce.Do(func() { close(u.done) }) }
