package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type fileEntry struct {
	Mode     Mode      `yaml:"mode"`
	Name     string    `yaml:"name"`
	Title    string    `yaml:"title"`
	Role     string    `yaml:"role"`
	Warmup   bool      `yaml:"warmup"`
	Greeting string    `yaml:"greeting"`
	Tools    []ToolRef `yaml:"tools"`
}

type file struct {
	Base     string      `yaml:"base"`
	Warmup   string      `yaml:"warmup"`
	Personas []fileEntry `yaml:"personas"`
}

// Parse decodes a persona file and composes each persona's instructions from
// the shared base text, the optional warm-up, and the persona role.
func Parse(data []byte) ([]Persona, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode persona file: %w", err)
	}

	items := make([]Persona, 0, len(f.Personas))
	for i, entry := range f.Personas {
		if entry.Mode == "" {
			return nil, fmt.Errorf("persona %d: mode is required", i)
		}
		for _, ref := range entry.Tools {
			if ref != AnalyzeCode {
				return nil, fmt.Errorf("persona %d: unknown tool %q", i, ref)
			}
		}

		sections := []string{strings.TrimSpace(f.Base)}
		if entry.Warmup {
			sections = append(sections, strings.TrimSpace(f.Warmup))
		}
		sections = append(sections, strings.TrimSpace(entry.Role))

		var parts []string
		for _, s := range sections {
			if s != "" {
				parts = append(parts, s)
			}
		}

		items = append(items, Persona{
			Mode:         entry.Mode,
			Name:         entry.Name,
			Title:        entry.Title,
			Instructions: strings.Join(parts, "\n\n"),
			Greeting:     strings.TrimSpace(entry.Greeting),
			Tools:        append([]ToolRef(nil), entry.Tools...),
		})
	}
	return items, nil
}

// LoadFile reads and parses a persona file from disk.
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// Defaults returns the built-in personas.
func Defaults() []Persona {
	items, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded personas are invalid: %v", err))
	}
	return items
}

// Registry maps a mode to its persona. Lookups never fail: unknown modes
// resolve to the technical persona.
type Registry struct {
	mu       sync.RWMutex
	defaults map[Mode]Persona
	byMode   map[Mode]Persona
}

// NewRegistry returns a Registry seeded with items. Items must include the
// technical and lobby personas.
func NewRegistry(items []Persona) (*Registry, error) {
	byMode, err := index(items)
	if err != nil {
		return nil, err
	}
	if err := requireCore(byMode); err != nil {
		return nil, err
	}
	return &Registry{defaults: byMode, byMode: byMode}, nil
}

// NewDefaultRegistry returns a Registry holding the built-in personas.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults())
	if err != nil {
		panic(err)
	}
	return r
}

// Apply replaces the current overrides. Modes absent from overrides fall back
// to the seed personas.
func (r *Registry) Apply(overrides []Persona) error {
	extra, err := index(overrides)
	if err != nil {
		return err
	}

	merged := make(map[Mode]Persona, len(r.defaults)+len(extra))
	for mode, p := range r.defaults {
		merged[mode] = p
	}
	for mode, p := range extra {
		merged[mode] = p
	}

	r.mu.Lock()
	r.byMode = merged
	r.mu.Unlock()
	return nil
}

// Resolve returns the persona for mode, falling back to technical.
func (r *Registry) Resolve(mode Mode) Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.byMode[mode]; ok && mode != Lobby {
		return p.clone()
	}
	return r.byMode[Technical].clone()
}

// Lobby returns the persona used before the first INIT.
func (r *Registry) Lobby() Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byMode[Lobby].clone()
}

// List returns the interview personas in a stable order.
func (r *Registry) List() []Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Persona, 0, 2)
	for _, mode := range []Mode{Technical, Behavioral} {
		if p, ok := r.byMode[mode]; ok {
			out = append(out, p.clone())
		}
	}
	return out
}

func index(items []Persona) (map[Mode]Persona, error) {
	byMode := make(map[Mode]Persona, len(items))
	for _, p := range items {
		if _, dup := byMode[p.Mode]; dup {
			return nil, fmt.Errorf("duplicate persona for mode %q", p.Mode)
		}
		if strings.TrimSpace(p.Instructions) == "" {
			return nil, fmt.Errorf("persona %q has no instructions", p.Mode)
		}
		byMode[p.Mode] = p.clone()
	}
	return byMode, nil
}

func requireCore(byMode map[Mode]Persona) error {
	for _, mode := range []Mode{Technical, Lobby} {
		if _, ok := byMode[mode]; !ok {
			return fmt.Errorf("persona for mode %q is required", mode)
		}
	}
	return nil
}
