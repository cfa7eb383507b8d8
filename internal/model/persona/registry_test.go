package persona

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsCoverEveryMode(t *testing.T) {
	registry := NewDefaultRegistry()

	for _, mode := range []Mode{Technical, Behavioral} {
		p := registry.Resolve(mode)
		if p.Mode != mode {
			t.Fatalf("Resolve(%s) returned mode %s", mode, p.Mode)
		}
		if p.Greeting == "" {
			t.Fatalf("persona %s has no greeting", mode)
		}
		if !p.HasTool(AnalyzeCode) {
			t.Fatalf("persona %s does not declare analyze_code", mode)
		}
	}

	lobby := registry.Lobby()
	if lobby.Mode != Lobby || lobby.Greeting != "" {
		t.Fatalf("unexpected lobby persona: %+v", lobby)
	}
}

func TestResolveFailsClosedToTechnical(t *testing.T) {
	registry := NewDefaultRegistry()

	for _, mode := range []Mode{"", "hybrid", Lobby, "TECHNICAL"} {
		if got := registry.Resolve(mode).Mode; got != Technical {
			t.Fatalf("Resolve(%q) = %s, want technical", mode, got)
		}
	}
}

func TestInstructionsComposeSections(t *testing.T) {
	registry := NewDefaultRegistry()

	tech := registry.Resolve(Technical).Instructions
	if !strings.Contains(tech, "DevPath AI") || !strings.Contains(tech, "Warm-up first") || !strings.Contains(tech, "Senior Staff Engineer") {
		t.Fatalf("technical instructions missing sections:\n%s", tech)
	}

	lobby := registry.Lobby().Instructions
	if strings.Contains(lobby, "Warm-up first") {
		t.Fatalf("lobby should not carry the warm-up section")
	}
}

func TestResolveReturnsIndependentCopies(t *testing.T) {
	registry := NewDefaultRegistry()

	first := registry.Resolve(Technical)
	first.Tools[0] = "mutated"

	if registry.Resolve(Technical).Tools[0] != AnalyzeCode {
		t.Fatal("registry persona was mutated through a returned copy")
	}
}

func TestApplyOverridesAndFallsBack(t *testing.T) {
	registry := NewDefaultRegistry()

	err := registry.Apply([]Persona{{Mode: Behavioral, Name: "Custom", Instructions: "be kind"}})
	if err != nil {
		t.Fatalf("Apply err: %v", err)
	}
	if got := registry.Resolve(Behavioral).Instructions; got != "be kind" {
		t.Fatalf("override not applied, got %q", got)
	}
	if registry.Resolve(Technical).Name != "DevPath AI" {
		t.Fatal("technical persona should fall back to the defaults")
	}

	if err := registry.Apply(nil); err != nil {
		t.Fatalf("Apply(nil) err: %v", err)
	}
	if registry.Resolve(Behavioral).Name != "DevPath AI" {
		t.Fatal("clearing overrides should restore defaults")
	}
}

func TestNewRegistryRequiresCorePersonas(t *testing.T) {
	if _, err := NewRegistry([]Persona{{Mode: Behavioral, Instructions: "x"}}); err == nil {
		t.Fatal("expected error when technical and lobby personas are missing")
	}
}

func TestParseRejectsMissingMode(t *testing.T) {
	if _, err := Parse([]byte("personas:\n  - name: nobody\n    role: hi\n")); err == nil {
		t.Fatal("expected error for persona without mode")
	}
}

func TestParseRejectsUnknownTool(t *testing.T) {
	body := "personas:\n  - mode: technical\n    role: hi\n    tools: [run_shell]\n"
	if _, err := Parse([]byte(body)); err == nil {
		t.Fatal("expected error for persona with unknown tool")
	}

	items, err := Parse([]byte("personas:\n  - mode: technical\n    role: hi\n    tools: [analyze_code]\n"))
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if !items[0].HasTool(AnalyzeCode) {
		t.Fatal("analyze_code tool not parsed")
	}
}

func TestWatcherReloadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	write := func(role string) {
		t.Helper()
		body := "personas:\n  - mode: behavioral\n    name: Recruiter\n    role: " + role + "\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write persona file: %v", err)
		}
	}

	write("first version")
	registry := NewDefaultRegistry()
	w, err := NewWatcher(path, registry, nil)
	if err != nil {
		t.Fatalf("NewWatcher err: %v", err)
	}
	w.debounce = 10 * time.Millisecond

	if got := registry.Resolve(Behavioral).Instructions; got != "first version" {
		t.Fatalf("initial load not applied, got %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	write("second version")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Resolve(Behavioral).Instructions == "second version" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher did not reload the persona file")
}
