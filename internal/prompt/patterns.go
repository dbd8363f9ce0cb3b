package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PatternFile is the on-disk shape of a user pattern file
// (~/.config/convocli/prompts.yaml).
type PatternFile struct {
	// Patterns are regular expressions tried after the built-ins,
	// in file order.
	Patterns []string `yaml:"patterns"`
}

// LoadPatternFile reads and validates extra prompt patterns from path.
// A missing file is not an error; it just contributes nothing.
func LoadPatternFile(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the user's own config dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read prompt pattern file: %w", err)
	}

	var file PatternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prompt pattern file: %w", err)
	}

	if err := CompilePatterns(file.Patterns); err != nil {
		return nil, err
	}

	return file.Patterns, nil
}
