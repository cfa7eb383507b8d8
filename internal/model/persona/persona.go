package persona

// Mode identifies which interviewer persona is active.
type Mode string

const (
	// Technical is the fail-closed default.
	Technical  Mode = "technical"
	Behavioral Mode = "behavioral"
	// Lobby is never sent by clients; it backs the call until the first INIT.
	Lobby Mode = "lobby"
)

// ToolRef names a capability a persona declares to the language model.
type ToolRef string

// AnalyzeCode is the code review tool exposed to the model.
const AnalyzeCode ToolRef = "analyze_code"

// Persona is an immutable instruction set for one interview mode. Values are
// copied out of the registry; nothing mutates a Persona after construction.
type Persona struct {
	Mode         Mode      `json:"mode" yaml:"mode"`
	Name         string    `json:"name" yaml:"name"`
	Title        string    `json:"title" yaml:"title"`
	Instructions string    `json:"-" yaml:"instructions"`
	Greeting     string    `json:"greeting,omitempty" yaml:"greeting"`
	Tools        []ToolRef `json:"tools" yaml:"tools"`
}

// HasTool reports whether the persona declares ref.
func (p Persona) HasTool(ref ToolRef) bool {
	for _, t := range p.Tools {
		if t == ref {
			return true
		}
	}
	return false
}

func (p Persona) clone() Persona {
	p.Tools = append([]ToolRef(nil), p.Tools...)
	return p
}
