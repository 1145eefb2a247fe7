package config_test

import (
	"testing"

	"github.com/Tommy0Storm/BUA-XI-sub000/internal/config"
)

func basePersonas() []config.PersonaConfig {
	return []config.PersonaConfig{
		{Name: "receptionist", Voice: "Puck", Instructions: "Answer the desk."},
		{Name: "support", Voice: "Kore", Instructions: "Debug politely."},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	old := &config.Config{Personas: basePersonas()}
	new := &config.Config{Personas: basePersonas()}
	d := config.Diff(old, new)
	if d.PersonasChanged || d.LogLevelChanged {
		t.Errorf("diff of identical configs = %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}, Personas: basePersonas()}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}, Personas: basePersonas()}
	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
}

func TestDiff_PersonaEdits(t *testing.T) {
	t.Parallel()

	old := &config.Config{Personas: basePersonas()}
	edited := basePersonas()
	edited[0].Instructions = "Answer the desk, warmly."
	edited[1].Voice = "Charon"
	new := &config.Config{Personas: edited}

	d := config.Diff(old, new)
	if !d.PersonasChanged || len(d.PersonaChanges) != 2 {
		t.Fatalf("diff = %+v, want 2 persona changes", d)
	}
	byName := map[string]config.PersonaDiff{}
	for _, pc := range d.PersonaChanges {
		byName[pc.Name] = pc
	}
	if !byName["receptionist"].InstructionsChanged {
		t.Error("receptionist instructions change not detected")
	}
	if !byName["support"].VoiceChanged {
		t.Error("support voice change not detected")
	}
}

func TestDiff_PersonaTools(t *testing.T) {
	t.Parallel()

	old := &config.Config{Personas: basePersonas()}
	edited := basePersonas()
	edited[0].Tools = []config.ToolConfig{{Name: "book_slot", Description: "Reserve a slot."}}
	new := &config.Config{Personas: edited}

	d := config.Diff(old, new)
	if !d.PersonasChanged || len(d.PersonaChanges) != 1 {
		t.Fatalf("diff = %+v, want one persona change", d)
	}
	if !d.PersonaChanges[0].ToolsChanged {
		t.Errorf("change = %+v, want tools change detected", d.PersonaChanges[0])
	}
}

func TestDiff_AddedAndRemoved(t *testing.T) {
	t.Parallel()

	old := &config.Config{Personas: basePersonas()}
	new := &config.Config{Personas: []config.PersonaConfig{
		basePersonas()[0],
		{Name: "concierge", Voice: "Fenrir"},
	}}

	d := config.Diff(old, new)
	if !d.PersonasChanged {
		t.Fatal("add/remove not detected")
	}
	var added, removed bool
	for _, pc := range d.PersonaChanges {
		if pc.Name == "concierge" && pc.Added {
			added = true
		}
		if pc.Name == "support" && pc.Removed {
			removed = true
		}
	}
	if !added || !removed {
		t.Errorf("changes = %+v, want concierge added and support removed", d.PersonaChanges)
	}
}
