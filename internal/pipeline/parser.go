package pipeline

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	novapipeerrors "github.com/muqtarM/novapipe/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseFile loads a pipeline document from disk, validates its schema, and
// returns the resulting model. Graph-level validation (duplicate names,
// unknown registry keys, unknown dependencies, cycles) is the graph
// builder's responsibility, not the parser's.
func ParseFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, novapipeerrors.NewParseError(path, 0, err)
	}
	return Parse(path, data)
}

// Parse decodes and schema-validates raw pipeline YAML. path is used only
// for error attribution.
func Parse(path string, data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, novapipeerrors.NewParseError(path, extractLine(err), err)
	}

	if err := ValidateSchema(&p); err != nil {
		return nil, err
	}

	return &p, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}
	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}
	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
