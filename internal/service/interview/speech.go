package interview

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/tool"

	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
)

// Agent is one live persona instance: the persona it was built from, the
// instructions handed to the model and the tools bound to this session.
// A session replaces its Agent wholesale; an Agent is never modified.
type Agent struct {
	Persona      persona.Persona
	Instructions string
	Tools        []tool.InvokableTool
}

// SpeechHandle tracks one queued utterance.
type SpeechHandle interface {
	ID() string
	// Interrupt stops the utterance if it is playing and drops it if it is
	// still queued. It is a no-op once Done is closed.
	Interrupt()
	Done() <-chan struct{}
}

// SpeechSession is the voice pipeline the orchestrator drives. Speech to
// text, synthesis and turn detection all live behind it.
type SpeechSession interface {
	Start(ctx context.Context, agent *Agent, opts AudioOptions) error
	UpdateAgent(agent *Agent) error
	// Say queues text behind anything already queued and returns immediately.
	Say(text string, allowInterruptions bool) SpeechHandle
}

// TransportKind is how the caller reached the room.
type TransportKind string

const (
	TransportWeb TransportKind = "web"
	TransportSIP TransportKind = "sip"
)

// ParseTransportKind maps a query value to a TransportKind, defaulting to web.
func ParseTransportKind(raw string) TransportKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sip", "telephony", "phone":
		return TransportSIP
	default:
		return TransportWeb
	}
}

// NoiseCancellation names the input filter profile.
type NoiseCancellation string

const (
	NoiseCancellationBVC          NoiseCancellation = "bvc"
	NoiseCancellationBVCTelephony NoiseCancellation = "bvc_telephony"
)

// AudioOptions configures audio input for a call.
type AudioOptions struct {
	NoiseCancellation NoiseCancellation `json:"noiseCancellation"`
}

// AudioOptionsFor selects the telephony profile for SIP callers.
func AudioOptionsFor(kind TransportKind) AudioOptions {
	if kind == TransportSIP {
		return AudioOptions{NoiseCancellation: NoiseCancellationBVCTelephony}
	}
	return AudioOptions{NoiseCancellation: NoiseCancellationBVC}
}
