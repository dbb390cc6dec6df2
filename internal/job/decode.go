package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decode parses a record from JSON.
func Decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return &rec, nil
}

// DecodeYAML parses a record from YAML. The document is converted to JSON
// first so extra fields keep the same representation as records read from
// the spool.
func DecodeYAML(data []byte) (*Record, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml record: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("failed to parse yaml record: empty document")
	}
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert yaml record: %w", err)
	}
	return Decode(buf)
}

// DecodeFile reads a record from a .json, .yaml or .yml file.
func DecodeFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return Decode(data)
	}
}
