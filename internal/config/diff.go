package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything that
// would require restarting a live session (model, credentials, audio
// settings) is deliberately excluded.
type ConfigDiff struct {
	PersonasChanged bool          // true if any persona changed, appeared, or disappeared
	PersonaChanges  []PersonaDiff // per-persona diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// PersonaDiff describes what changed for a single persona between two
// configs.
type PersonaDiff struct {
	Name                string
	InstructionsChanged bool
	VoiceChanged        bool
	MaxDurationChanged  bool
	ToolsChanged        bool
	Added               bool
	Removed             bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Build persona lookup maps keyed by name.
	oldPersonas := make(map[string]*PersonaConfig, len(old.Personas))
	for i := range old.Personas {
		oldPersonas[old.Personas[i].Name] = &old.Personas[i]
	}
	newPersonas := make(map[string]*PersonaConfig, len(new.Personas))
	for i := range new.Personas {
		newPersonas[new.Personas[i].Name] = &new.Personas[i]
	}

	// Detect modified and removed personas.
	for name, oldP := range oldPersonas {
		newP, exists := newPersonas[name]
		if !exists {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{
				Name:    name,
				Removed: true,
			})
			d.PersonasChanged = true
			continue
		}
		pd := diffPersona(name, oldP, newP)
		if pd.InstructionsChanged || pd.VoiceChanged || pd.MaxDurationChanged || pd.ToolsChanged {
			d.PersonaChanges = append(d.PersonaChanges, pd)
			d.PersonasChanged = true
		}
	}

	// Detect added personas.
	for name := range newPersonas {
		if _, exists := oldPersonas[name]; !exists {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{
				Name:  name,
				Added: true,
			})
			d.PersonasChanged = true
		}
	}

	return d
}

// diffPersona compares two persona configs with the same name.
func diffPersona(name string, old, new *PersonaConfig) PersonaDiff {
	pd := PersonaDiff{Name: name}

	if old.Instructions != new.Instructions {
		pd.InstructionsChanged = true
	}
	if old.Voice != new.Voice {
		pd.VoiceChanged = true
	}
	if old.MaxDuration != new.MaxDuration {
		pd.MaxDurationChanged = true
	}
	if !reflect.DeepEqual(old.Tools, new.Tools) {
		pd.ToolsChanged = true
	}

	return pd
}
