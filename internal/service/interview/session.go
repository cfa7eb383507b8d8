// Package interview orchestrates one live interview call: persona hot swap,
// the shared editor, and the analyze_code tool.
package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/tool"
	"go.uber.org/zap"

	"github.com/ziadismael/DevPath/interviewer/internal/metrics"
	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
	"github.com/ziadismael/DevPath/interviewer/internal/service/analysis"
	"github.com/ziadismael/DevPath/interviewer/internal/service/control"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("interview session closed")

// switchPrefix is prepended to persona instructions on a mid-call swap so the
// model drops the previous persona.
const switchPrefix = "SYSTEM OVERRIDE: SWITCH PERSONA NOW. \n\n"

// Analyzer runs the external analysis. Report must not return an error; it
// degrades to a fixed message.
type Analyzer interface {
	Report(ctx context.Context, code string) string
}

// Options wires a Session to its collaborators.
type Options struct {
	Registry *persona.Registry
	Speech   SpeechSession
	// Analyzer defaults to one that always reports analysis.FailureMessage.
	Analyzer Analyzer
	// Greeting is spoken after a persona swap when the persona has none of its own.
	Greeting string
	Logger   *zap.Logger
	Metrics  *metrics.Recorder
	Now      func() time.Time
	// OnSwitch, if set, is called on the session loop after each persona swap.
	OnSwitch func(mode persona.Mode)
}

type unavailableAnalyzer struct{}

func (unavailableAnalyzer) Report(context.Context, string) string {
	return analysis.FailureMessage
}

type event interface{}

type dataEvent struct {
	payload []byte
}

type toolEvent struct {
	ctx     context.Context
	snippet string
	reply   chan string
}

// Session is the orchestrator for one call. Control messages and tool
// invocations are handled one at a time on the session loop; only the
// external analysis call runs off the loop.
type Session struct {
	id       string
	registry *persona.Registry
	speech   SpeechSession
	analyzer Analyzer
	greeting string
	logger   *zap.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
	onSwitch func(mode persona.Mode)

	editor EditorState
	agent  atomic.Pointer[Agent]

	// loop-owned
	pendingGreeting SpeechHandle

	events    chan event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
	workers   sync.WaitGroup
}

// New creates a Session. Call Start to begin processing events.
func New(id string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	registry := opts.Registry
	if registry == nil {
		registry = persona.NewDefaultRegistry()
	}
	analyzer := opts.Analyzer
	if analyzer == nil {
		logger.Warn("no code analyzer configured, analyze_code will report failure")
		analyzer = unavailableAnalyzer{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       id,
		registry: registry,
		speech:   opts.Speech,
		analyzer: analyzer,
		greeting: opts.Greeting,
		logger:   logger.With(zap.String("session", id)),
		metrics:  opts.Metrics,
		now:      now,
		onSwitch: opts.OnSwitch,
		events:   make(chan event, 64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start activates the lobby persona, starts the speech session and the event
// loop. No greeting is spoken until the first INIT.
func (s *Session) Start(ctx context.Context, transport TransportKind) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("interview session already started")
	}

	agent := s.newAgent(s.registry.Lobby(), false)
	s.agent.Store(agent)

	opts := AudioOptionsFor(transport)
	if err := s.speech.Start(ctx, agent, opts); err != nil {
		close(s.done)
		return fmt.Errorf("start speech session: %w", err)
	}

	s.logger.Info("session started",
		zap.String("transport", string(transport)),
		zap.String("noise_cancellation", string(opts.NoiseCancellation)))

	go s.run()
	return nil
}

// Close stops the loop, cancels in-flight analysis and clears the editor.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.started.Load() {
			<-s.done
		}
		s.workers.Wait()
		s.editor.Clear()
		s.logger.Info("session closed")
	})
}

// HandleData queues a raw side-channel payload. Payloads are processed in
// arrival order.
func (s *Session) HandleData(payload []byte) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	buf := append([]byte(nil), payload...)
	select {
	case s.events <- dataEvent{payload: buf}:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// AnalyzeCode is the analyze_code tool entry point. It resolves the code to
// analyze on the session loop, runs the analysis off the loop and waits for
// the result. It always returns a string for the model.
func (s *Session) AnalyzeCode(ctx context.Context, snippet string) string {
	if s.ctx.Err() != nil {
		return analysis.FailureMessage
	}
	ev := toolEvent{ctx: ctx, snippet: snippet, reply: make(chan string, 1)}

	select {
	case s.events <- ev:
	case <-ctx.Done():
		return analysis.FailureMessage
	case <-s.ctx.Done():
		return analysis.FailureMessage
	}

	select {
	case result := <-ev.reply:
		return result
	case <-ctx.Done():
		return analysis.FailureMessage
	case <-s.ctx.Done():
		return analysis.FailureMessage
	}
}

// Mode returns the mode of the active persona.
func (s *Session) Mode() persona.Mode {
	if a := s.agent.Load(); a != nil {
		return a.Persona.Mode
	}
	return ""
}

// ActiveAgent returns the current persona instance.
func (s *Session) ActiveAgent() *Agent {
	return s.agent.Load()
}

// SharedCode returns the latest editor contents and their update time.
func (s *Session) SharedCode() (string, time.Time) {
	return s.editor.Snapshot()
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked", zap.Any("panic", r))
		}
	}()

	switch e := ev.(type) {
	case dataEvent:
		s.handleData(e.payload)
	case toolEvent:
		s.handleTool(e)
	}
}

func (s *Session) handleData(payload []byte) {
	msg, err := control.Decode(payload)
	if err != nil {
		s.metrics.ControlMessage(metrics.TopicOther, "dropped")
		s.logger.Warn("dropping control message", zap.Int("bytes", len(payload)), zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case control.CodeUpdate:
		s.editor.Update(m.Code, s.now())
		s.metrics.ControlMessage(string(control.TopicCodeUpdate), "applied")
		s.logger.Debug("editor updated", zap.Int("chars", utf8.RuneCountInString(m.Code)))
	case control.Init:
		s.switchPersona(m.Mode)
		s.metrics.ControlMessage(string(control.TopicInit), "applied")
	default:
		s.metrics.ControlMessage(metrics.TopicOther, "ignored")
		s.logger.Debug("ignoring control message", zap.String("topic", string(msg.Topic())))
	}
}

func (s *Session) switchPersona(mode persona.Mode) {
	p := s.registry.Resolve(mode)
	if p.Mode != mode {
		s.logger.Warn("unknown interview mode, using default", zap.String("requested", string(mode)), zap.String("mode", string(p.Mode)))
	}

	agent := s.newAgent(p, true)
	if err := s.speech.UpdateAgent(agent); err != nil {
		s.logger.Error("persona swap rejected by speech session", zap.String("mode", string(p.Mode)), zap.Error(err))
		return
	}
	s.agent.Store(agent)
	s.metrics.PersonaSwitch(string(p.Mode))
	s.logger.Info("persona switched", zap.String("mode", string(p.Mode)))
	if s.onSwitch != nil {
		s.onSwitch(p.Mode)
	}

	if prev := s.pendingGreeting; prev != nil {
		select {
		case <-prev.Done():
		default:
			prev.Interrupt()
			s.metrics.GreetingSuperseded()
		}
	}

	greeting := p.Greeting
	if greeting == "" {
		greeting = s.greeting
	}
	s.pendingGreeting = nil
	if greeting != "" {
		s.pendingGreeting = s.speech.Say(greeting, true)
	}
}

func (s *Session) handleTool(e toolEvent) {
	code, updatedAt := s.editor.Snapshot()
	snap := ResolveSnapshot(code, updatedAt, e.snippet)

	if snap.Empty() {
		s.metrics.AnalysisCall(string(SourceNone), "absent")
		s.logger.Info("analyze_code found no code")
		e.reply <- NoCodeMessage
		return
	}
	s.logger.Info("analyze_code resolved snapshot",
		zap.String("source", string(snap.Source)),
		zap.Int("chars", utf8.RuneCountInString(snap.Code)))

	ctx, cancel := context.WithCancel(e.ctx)
	stop := context.AfterFunc(s.ctx, cancel)

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer stop()
		defer cancel()

		result := s.analyzer.Report(ctx, snap.Code)
		status := "ok"
		if result == analysis.FailureMessage {
			status = "failed"
		}
		s.metrics.AnalysisCall(string(snap.Source), status)
		e.reply <- result
	}()
}

func (s *Session) newAgent(p persona.Persona, swap bool) *Agent {
	instructions := p.Instructions
	if swap {
		instructions = switchPrefix + instructions
	}

	var tools []tool.InvokableTool
	if p.HasTool(persona.AnalyzeCode) {
		tools = append(tools, NewAnalyzeCodeTool(s))
	}

	return &Agent{Persona: p, Instructions: instructions, Tools: tools}
}
