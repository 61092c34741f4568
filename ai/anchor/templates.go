package anchor

import (
	"strings"

	"github.com/hrygo/voxcache/ai/configloader"
)

// Template is one anchor phrasing. Pattern may reference {device}, {area}
// and, for entity scope, {entity_name}.
type Template struct {
	Slots   map[string]any `yaml:"slots"`
	Pattern string         `yaml:"pattern"`
	Intent  string         `yaml:"intent"`
}

// Templates holds the phrasings per scope, keyed by domain.
type Templates struct {
	Devices map[string]string     `yaml:"devices"`
	Area    map[string][]Template `yaml:"area"`
	Entity  map[string][]Template `yaml:"entity"`
	Global  map[string][]Template `yaml:"global"`
}

// DefaultTemplates returns the built-in German phrasings.
func DefaultTemplates() *Templates {
	return &Templates{
		Devices: map[string]string{
			"light":        "das Licht",
			"cover":        "die Rollläden",
			"climate":      "die Heizung",
			"switch":       "den Schalter",
			"fan":          "den Ventilator",
			"media_player": "den Fernseher",
			"sensor":       "den Sensor",
			"automation":   "die Automatisierung",
		},
		Area: map[string][]Template{
			"light": {
				{Pattern: "Schalte {device} in {area} an", Intent: "HassTurnOn"},
				{Pattern: "Schalte {device} in {area} aus", Intent: "HassTurnOff"},
				{Pattern: "Erhöhe die Helligkeit von {device} in {area}", Intent: "HassLightSet", Slots: map[string]any{"command": "step_up"}},
				{Pattern: "Reduziere die Helligkeit von {device} in {area}", Intent: "HassLightSet", Slots: map[string]any{"command": "step_down"}},
				{Pattern: "Dimme {device} in {area} auf 50 Prozent", Intent: "HassLightSet", Slots: map[string]any{"brightness": 50}},
				{Pattern: "Ist {device} in {area} an", Intent: "HassGetState"},
			},
			"cover": {
				{Pattern: "Öffne {device} in {area}", Intent: "HassTurnOn"},
				{Pattern: "Schließe {device} in {area}", Intent: "HassTurnOff"},
				{Pattern: "Fahre {device} in {area} weiter hoch", Intent: "HassSetPosition", Slots: map[string]any{"command": "step_up"}},
				{Pattern: "Fahre {device} in {area} weiter runter", Intent: "HassSetPosition", Slots: map[string]any{"command": "step_down"}},
				{Pattern: "Stelle {device} in {area} auf 50 Prozent", Intent: "HassSetPosition", Slots: map[string]any{"position": 50}},
				{Pattern: "Ist {device} in {area} offen", Intent: "HassGetState"},
			},
			"climate": {
				{Pattern: "Schalte {device} in {area} an", Intent: "HassTurnOn"},
				{Pattern: "Schalte {device} in {area} aus", Intent: "HassTurnOff"},
				{Pattern: "Stelle {device} in {area} auf 21 Grad", Intent: "HassClimateSetTemperature", Slots: map[string]any{"temperature": 21}},
				{Pattern: "Wie warm ist es in {area}", Intent: "HassGetState"},
			},
			"switch":       onOffState("Schalte {device} in {area} an", "Schalte {device} in {area} aus", "Ist {device} in {area} an"),
			"fan":          onOffState("Schalte {device} in {area} an", "Schalte {device} in {area} aus", "Ist {device} in {area} an"),
			"media_player": onOffState("Schalte {device} in {area} an", "Schalte {device} in {area} aus", "Ist {device} in {area} an"),
			"automation":   onOffState("Aktiviere {device} in {area}", "Deaktiviere {device} in {area}", "Ist {device} in {area} aktiv"),
		},
		Entity: map[string][]Template{
			"light": {
				{Pattern: "Schalte {device} {entity_name} in {area} an", Intent: "HassTurnOn"},
				{Pattern: "Schalte {device} {entity_name} in {area} aus", Intent: "HassTurnOff"},
				{Pattern: "Dimme {device} {entity_name} in {area} auf 50 Prozent", Intent: "HassLightSet", Slots: map[string]any{"brightness": 50}},
			},
			"cover": {
				{Pattern: "Öffne {device} {entity_name} in {area}", Intent: "HassTurnOn"},
				{Pattern: "Schließe {device} {entity_name} in {area}", Intent: "HassTurnOff"},
				{Pattern: "Stelle {device} {entity_name} in {area} auf 50 Prozent", Intent: "HassSetPosition", Slots: map[string]any{"position": 50}},
			},
			"climate": {
				{Pattern: "Schalte {device} {entity_name} in {area} an", Intent: "HassTurnOn"},
				{Pattern: "Schalte {device} {entity_name} in {area} aus", Intent: "HassTurnOff"},
				{Pattern: "Stelle {device} {entity_name} in {area} auf 21 Grad", Intent: "HassClimateSetTemperature", Slots: map[string]any{"temperature": 21}},
			},
			"switch":       onOff("Schalte {device} {entity_name} in {area} an", "Schalte {device} {entity_name} in {area} aus"),
			"fan":          onOff("Schalte {device} {entity_name} in {area} an", "Schalte {device} {entity_name} in {area} aus"),
			"media_player": onOff("Schalte {device} {entity_name} in {area} an", "Schalte {device} {entity_name} in {area} aus"),
			"automation":   onOff("Aktiviere {device} {entity_name} in {area}", "Deaktiviere {device} {entity_name} in {area}"),
		},
		Global: map[string][]Template{
			"light": {
				{Pattern: "Schalte alle Lichter aus", Intent: "HassTurnOff"},
				{Pattern: "Schalte alle Lichter an", Intent: "HassTurnOn"},
				{Pattern: "Mach alle Lichter heller", Intent: "HassLightSet", Slots: map[string]any{"command": "step_up"}},
				{Pattern: "Mach alle Lichter dunkler", Intent: "HassLightSet", Slots: map[string]any{"command": "step_down"}},
				{Pattern: "Dimme alle Lichter auf 50 Prozent", Intent: "HassLightSet", Slots: map[string]any{"brightness": 50}},
			},
			"cover": {
				{Pattern: "Schließe alle Rollläden", Intent: "HassTurnOff"},
				{Pattern: "Öffne alle Rollläden", Intent: "HassTurnOn"},
				{Pattern: "Fahre alle Rollläden weiter hoch", Intent: "HassSetPosition", Slots: map[string]any{"command": "step_up"}},
				{Pattern: "Fahre alle Rollläden weiter runter", Intent: "HassSetPosition", Slots: map[string]any{"command": "step_down"}},
				{Pattern: "Stelle alle Rollläden auf 50 Prozent", Intent: "HassSetPosition", Slots: map[string]any{"position": 50}},
			},
			"switch":       onOff("Schalte alle Schalter an", "Schalte alle Schalter aus"),
			"fan":          onOff("Schalte alle Ventilatoren an", "Schalte alle Ventilatoren aus"),
			"media_player": onOff("Schalte alle Fernseher an", "Schalte alle Fernseher aus"),
			"automation":   onOff("Aktiviere alle Automatisierungen", "Deaktiviere alle Automatisierungen"),
		},
	}
}

func onOff(on, off string) []Template {
	return []Template{
		{Pattern: on, Intent: "HassTurnOn"},
		{Pattern: off, Intent: "HassTurnOff"},
	}
}

func onOffState(on, off, state string) []Template {
	return append(onOff(on, off), Template{Pattern: state, Intent: "HassGetState"})
}

// LoadTemplates reads a YAML file and layers it over the defaults. A domain
// listed in the file replaces that domain's defaults for the given scope.
func LoadTemplates(loader *configloader.Loader, path string) (*Templates, error) {
	var override Templates
	if err := loader.Load(path, &override); err != nil {
		return nil, err
	}
	t := DefaultTemplates()
	for domain, word := range override.Devices {
		t.Devices[domain] = word
	}
	for domain, list := range override.Area {
		t.Area[domain] = list
	}
	for domain, list := range override.Entity {
		t.Entity[domain] = list
	}
	for domain, list := range override.Global {
		t.Global[domain] = list
	}
	return t, nil
}

// device returns the noun phrase for domain.
func (t *Templates) device(domain string) string {
	if word, ok := t.Devices[domain]; ok {
		return word
	}
	return "das " + domain
}

func render(pattern, device, area, entityName string) string {
	return strings.NewReplacer(
		"{device}", device,
		"{area}", area,
		"{entity_name}", entityName,
	).Replace(pattern)
}
