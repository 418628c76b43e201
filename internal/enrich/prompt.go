package enrich

import (
	"fmt"
	"os"
	"strings"
)

// inputPlaceholder is the substitution marker inside the prompt file.
const inputPlaceholder = "{{INPUT}}"

// Template is a prompt loaded from disk with an {{INPUT}} placeholder.
type Template struct {
	text string
}

// LoadTemplate reads a prompt template file. The file must contain the
// {{INPUT}} placeholder, otherwise every prompt would be identical and the
// misconfiguration would only show up as garbage cards.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}
	text := string(data)
	if !strings.Contains(text, inputPlaceholder) {
		return nil, fmt.Errorf("prompt file %s does not contain %s", path, inputPlaceholder)
	}
	return &Template{text: text}, nil
}

// Render substitutes the captured text into the template.
func (t *Template) Render(input string) string {
	return strings.ReplaceAll(t.text, inputPlaceholder, input)
}
