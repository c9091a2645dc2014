// Package persona loads the bot's character sheet: system prompt, mood
// table, spontaneous outbursts, and fallback lines. Files are YAML,
// validated against an embedded JSON schema before use so a broken edit
// fails at startup rather than mid-conversation.
package persona

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	_ "embed"
)

//go:embed default.yaml
var defaultYAML []byte

//go:embed schema.json
var schemaJSON string

// Mood is one weighted entry in the mood table. Modifier is appended to
// the system prompt when the mood is active.
type Mood struct {
	Name     string `yaml:"name" json:"name"`
	Weight   int    `yaml:"weight" json:"weight"`
	Modifier string `yaml:"modifier" json:"modifier"`
}

// TrustScale maps trust bands to prompt fragments.
type TrustScale struct {
	Low  string `yaml:"low" json:"low"`
	Mid  string `yaml:"mid" json:"mid"`
	High string `yaml:"high" json:"high"`
}

// Persona is a validated character sheet.
type Persona struct {
	SystemPrompt string     `yaml:"system_prompt" json:"system_prompt"`
	TrustScale   TrustScale `yaml:"trust_scale" json:"trust_scale"`
	Moods        []Mood     `yaml:"moods" json:"moods"`
	Outbursts    []string   `yaml:"outbursts" json:"outbursts"`
	Fallbacks    []string   `yaml:"fallbacks" json:"fallbacks"`

	totalWeight int
}

// Load reads and validates a persona file. An empty path loads the
// embedded default.
func Load(path string) (*Persona, error) {
	raw := defaultYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("persona: read %s: %w", path, err)
		}
		raw = data
	}
	return Parse(raw)
}

// Parse validates raw YAML against the schema and decodes it.
func Parse(raw []byte) (*Persona, error) {
	if err := validate(raw); err != nil {
		return nil, err
	}

	var p Persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("persona: decode: %w", err)
	}
	for _, m := range p.Moods {
		p.totalWeight += m.Weight
	}
	return &p, nil
}

// validate round-trips the YAML through JSON so the schema compiler can
// check it.
func validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("persona: parse yaml: %w", err)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("persona: encode for validation: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(encoded, &jsonDoc); err != nil {
		return fmt.Errorf("persona: decode for validation: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("persona.schema.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		return fmt.Errorf("persona: load schema: %w", err)
	}
	schema, err := compiler.Compile("persona.schema.json")
	if err != nil {
		return fmt.Errorf("persona: compile schema: %w", err)
	}
	if err := schema.Validate(jsonDoc); err != nil {
		return fmt.Errorf("persona: invalid: %w", err)
	}
	return nil
}

// RandomMood picks a mood by weight using roll in [0,1).
func (p *Persona) RandomMood(roll float64) Mood {
	if len(p.Moods) == 0 {
		return Mood{}
	}
	target := int(roll * float64(p.totalWeight))
	for _, m := range p.Moods {
		target -= m.Weight
		if target < 0 {
			return m
		}
	}
	return p.Moods[len(p.Moods)-1]
}

// Modifier returns the prompt modifier for a named mood, or "".
func (p *Persona) Modifier(mood string) string {
	for _, m := range p.Moods {
		if m.Name == mood {
			return m.Modifier
		}
	}
	return ""
}

// RandomOutburst picks an outburst line using roll in [0,1).
func (p *Persona) RandomOutburst(roll float64) string {
	return pick(p.Outbursts, roll)
}

// Fallback picks a fallback line using roll in [0,1).
func (p *Persona) Fallback(roll float64) string {
	return pick(p.Fallbacks, roll)
}

// TrustDescription maps a trust level to its prompt fragment. Levels 1-3
// are low, 4-7 mid, 8-10 high.
func (p *Persona) TrustDescription(trust int) string {
	switch {
	case trust <= 3:
		return p.TrustScale.Low
	case trust <= 7:
		return p.TrustScale.Mid
	default:
		return p.TrustScale.High
	}
}

func pick(items []string, roll float64) string {
	if len(items) == 0 {
		return ""
	}
	i := int(roll * float64(len(items)))
	if i >= len(items) {
		i = len(items) - 1
	}
	return items[i]
}
