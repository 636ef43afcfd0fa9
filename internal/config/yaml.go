package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// decodeBody returns the file content as JSON bytes. A .yaml/.yml file is
// converted through an intermediate tree so the one strict JSON decoder
// (DisallowUnknownFields) enforces the schema for both formats.
func decodeBody(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	body, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	return body, nil
}

// stringKeys rewrites map keys to strings; yaml permits non-string keys,
// which json.Marshal refuses.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stringKeys(e)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = stringKeys(e)
		}
		return m
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	}
	return v
}
