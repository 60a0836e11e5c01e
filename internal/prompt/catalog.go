// Package prompt loads and resolves the instruction template catalog: the
// bot's persona prompt plus the per-situation request templates.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Name identifies an instruction template in the catalog.
type Name string

const (
	// Completion asks the model to answer the triggering message.
	Completion Name = "completion"
	// Greeting asks the model to open the conversation when the trigger
	// carried no text of its own.
	Greeting Name = "greeting"
	// FarewellTimeout asks the model to close the conversation after the
	// collection window expired.
	FarewellTimeout Name = "farewell_timeout"
	// Dummy is the no-op instruction used in place of a completion when the
	// triggering message has no content.
	Dummy Name = "dummy"
)

// ErrUnknownTemplate marks a request for a template name absent from the
// catalog.
var ErrUnknownTemplate = errors.New("prompt: unknown template")

// document is the on-disk YAML shape of the catalog.
type document struct {
	General struct {
		Character  string `yaml:"character"`
		Answering  string `yaml:"answering"`
		Formatting string `yaml:"formatting"`
	} `yaml:"general"`
	Request map[string]string `yaml:"request"`
}

// Catalog is the fixed, externally supplied set of instruction strings. It
// is immutable after Load and safe for concurrent use by multiple sessions.
type Catalog struct {
	persona  string
	requests map[Name]string
}

// Load reads a YAML catalog file from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompt: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Catalog. It fails fast,
// listing every missing key, so a broken catalog is caught at startup
// rather than mid-conversation.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("prompt: parse catalog: %w", err)
	}

	var missing []string
	if doc.General.Character == "" {
		missing = append(missing, "general.character")
	}
	if doc.General.Answering == "" {
		missing = append(missing, "general.answering")
	}
	if doc.General.Formatting == "" {
		missing = append(missing, "general.formatting")
	}
	requests := make(map[Name]string, len(doc.Request))
	for _, name := range []Name{Completion, Greeting, FarewellTimeout, Dummy} {
		text, ok := doc.Request[string(name)]
		if !ok || text == "" {
			missing = append(missing, "request."+string(name))
			continue
		}
		requests[name] = text
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("prompt: catalog missing keys: %s", strings.Join(missing, ", "))
	}

	return &Catalog{
		persona:  doc.General.Character + " " + doc.General.Answering + " " + doc.General.Formatting,
		requests: requests,
	}, nil
}

// Persona returns the bot's system prompt, assembled from the general
// catalog sections. It may contain the assistant placeholder.
func (c *Catalog) Persona() string {
	return c.persona
}

// Resolve returns the instruction template for name, or ErrUnknownTemplate
// if the catalog has no such entry.
func (c *Catalog) Resolve(name Name) (string, error) {
	text, ok := c.requests[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	return text, nil
}
